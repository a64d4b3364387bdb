package tag

import "fmt"

// BitStream holds the single-bit Manchester stream recovered from run
// lengths. It is larger than strictly needed: a run can expand to two bits
// and the parity pair may be cut short by the end marker.
type BitStream [StreamSize]Symbol

// NewBitStream returns a stream with every slot Unset.
func NewBitStream() BitStream {
	var s BitStream
	for i := range s {
		s[i] = Unset
	}
	return s
}

// Demux is the result of run-length demultiplexing.
type Demux struct {
	Stream  BitStream
	Emitted int // slots written
	Runs    int // runs examined, including the end marker
	Desyncs int // runs that were neither data nor a marker
	End     int // index after the end marker, or len(symbols)
}

// Demultiplex regroups the runs after offset into single Manchester bits.
// A run of 4-8 symbols is one bit, 9-14 is two bits, and a Zero run of 15 or
// more is the end marker. Any other run is counted as a desync and emits
// nothing. An Invalid run of data length is emitted as Invalid so the
// Manchester stage rejects the pair it lands in. Emitting past the stream
// capacity aborts the cycle.
func Demultiplex(symbols []Symbol, offset int) (Demux, error) {
	d := Demux{Stream: NewBitStream(), End: len(symbols)}
	var (
		ended    bool
		overflow bool
	)

	emit := func(v Symbol, n int) bool {
		if d.Emitted+n > StreamSize {
			overflow = true
			return false
		}
		for i := 0; i < n; i++ {
			d.Stream[d.Emitted] = v
			d.Emitted++
		}
		return true
	}

	d.End, _ = scanRuns(symbols, offset, func(run Run, next int) bool {
		d.Runs++
		switch {
		case run.isEndMarker():
			ended = true
			return false
		case next == len(symbols):
			// truncated by the end of the buffer
			return true
		case run.Length >= MinSingleRun && run.Length <= MaxSingleRun:
			return emit(run.Value, 1)
		case run.Length >= MinDoubleRun && run.Length <= MaxDoubleRun:
			return emit(run.Value, 2)
		default:
			d.Desyncs++
		}
		return true
	})

	if overflow {
		return d, fmt.Errorf("%w: more than %d bits before end marker", ErrFrameOverflow, StreamSize)
	}
	if !ended {
		return d, fmt.Errorf("%w: no end marker after offset %d (%d bits)", ErrIncompleteFrame, offset, d.Emitted)
	}
	return d, nil
}
