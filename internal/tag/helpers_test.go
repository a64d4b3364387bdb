package tag

import (
	"io"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// rawFromSymbols writes symbols into a zeroed buffer starting at index at,
// dropping whatever does not fit.
func rawFromSymbols(th Thresholds, symbols []Symbol, at int) *RawBuffer {
	buf := &RawBuffer{}
	for i, sym := range symbols {
		if at+i >= BufferSize {
			break
		}
		switch sym {
		case Zero:
			buf[at+i] = th.Short
		case One:
			buf[at+i] = th.Long
		}
	}
	return buf
}

func repeat(v Symbol, n int) []Symbol {
	out := make([]Symbol, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func concat(parts ...[]Symbol) []Symbol {
	var out []Symbol
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// testCode is a card with unique id 12345 at site 42.
func testCode() Code {
	return NewCode(Fields{ManufacturerID: 0x2A5C1, SiteCode: 42, UniqueID: 12345})
}
