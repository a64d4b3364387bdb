package tag

// RawSample is the number of clock ticks between two rising edges of the
// demodulated carrier.
type RawSample uint8

// RawBuffer is one capture cycle worth of period measurements.
type RawBuffer [BufferSize]RawSample

// Reset zeroes the buffer before it is handed back to the capture producer.
func (b *RawBuffer) Reset() {
	*b = RawBuffer{}
}

// Symbol is a quantized sample or a single-bit stream slot.
type Symbol uint8

const (
	Zero Symbol = iota
	One
	Invalid // sample outside every calibrated period
	Unset   // stream slot never written
)

func (s Symbol) String() string {
	switch s {
	case Zero:
		return "0"
	case One:
		return "1"
	case Invalid:
		return "X"
	case Unset:
		return "_"
	default:
		return "?"
	}
}

// Run is a maximal stretch of identical symbols.
type Run struct {
	Value  Symbol
	Length int
}

// isStartMarker reports whether r is the preamble run that opens a frame.
func (r Run) isStartMarker() bool {
	return r.Value == One && r.Length >= MarkerRun
}

// isEndMarker reports whether r is the trailing run that closes a frame.
func (r Run) isEndMarker() bool {
	return r.Value == Zero && r.Length >= MarkerRun
}

// scanRuns walks symbols[from:] and calls visit for every run, including the
// trailing run cut off by the end of the slice. next is the index of the first
// symbol after the run. Scanning stops early when visit returns false; the
// returned index is then the next of the run that stopped it.
func scanRuns(symbols []Symbol, from int, visit func(run Run, next int) bool) (int, bool) {
	if from < 0 {
		from = 0
	}
	if from >= len(symbols) {
		return len(symbols), false
	}

	cur := Run{Value: symbols[from], Length: 1}
	for i := from + 1; i < len(symbols); i++ {
		if symbols[i] == cur.Value {
			cur.Length++
			continue
		}
		if !visit(cur, i) {
			return i, true
		}
		cur = Run{Value: symbols[i], Length: 1}
	}

	if !visit(cur, len(symbols)) {
		return len(symbols), true
	}
	return len(symbols), false
}

// Runs splits symbols[from:] into runs. The lengths always sum to
// len(symbols)-from.
func Runs(symbols []Symbol, from int) []Run {
	var runs []Run
	scanRuns(symbols, from, func(run Run, _ int) bool {
		runs = append(runs, run)
		return true
	})
	return runs
}
