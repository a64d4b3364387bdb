package tag

import "fmt"

// Synth renders a tag code into a raw capture buffer the way a card in the
// field would be measured. It drives bench tests and replay fixtures.
type Synth struct {
	Thresholds Thresholds
	HalfBit    int  // samples per Manchester half bit
	Preamble   int  // samples in the start marker
	Trailer    int  // samples in the end marker
	LeadIn     int  // out-of-range samples before the preamble
	Jitter     bool // replace every third sample inside a run with the ambiguous period
}

// DefaultSynth returns a synthesizer matching the reference front end.
func DefaultSynth() Synth {
	return Synth{
		Thresholds: DefaultThresholds(),
		HalfBit:    6,
		Preamble:   20,
		Trailer:    20,
	}
}

// Symbols returns the quantized form of the frame for code: preamble,
// Manchester data and parity, end marker.
func (s Synth) Symbols(code Code) []Symbol {
	bits := make([]uint8, 0, CodeBits)
	bits = append(bits, code.Bits[:]...)
	bits = append(bits, code.Parity)

	out := make([]Symbol, 0, s.Preamble+len(bits)*2*s.HalfBit+s.Trailer)
	for i := 0; i < s.Preamble; i++ {
		out = append(out, One)
	}
	for _, half := range EncodeManchester(bits) {
		for i := 0; i < s.HalfBit; i++ {
			out = append(out, half)
		}
	}
	for i := 0; i < s.Trailer; i++ {
		out = append(out, Zero)
	}
	return out
}

// Buffer writes the frame for code into a capture buffer. Slots after the
// frame are left zero, which quantizes to Invalid.
func (s Synth) Buffer(code Code) (*RawBuffer, error) {
	symbols := s.Symbols(code)
	if need := firstSample + s.LeadIn + len(symbols); need > BufferSize {
		return nil, fmt.Errorf("frame needs %d samples, buffer holds %d", need, BufferSize)
	}

	buf := &RawBuffer{}
	pos := firstSample + s.LeadIn
	var prev Symbol = Invalid
	runLen := 0
	for _, sym := range symbols {
		if sym == prev {
			runLen++
		} else {
			runLen = 1
		}
		prev = sym

		switch {
		case s.Jitter && runLen > 1 && runLen%3 == 0:
			buf[pos] = s.Thresholds.Ambiguous
		case sym == One:
			buf[pos] = s.Thresholds.Long
		default:
			buf[pos] = s.Thresholds.Short
		}
		pos++
	}

	return buf, nil
}
