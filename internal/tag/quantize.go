package tag

import "fmt"

// Thresholds are the calibrated period counts the quantizer matches exactly.
type Thresholds struct {
	Short     RawSample
	Long      RawSample
	Ambiguous RawSample
}

// DefaultThresholds returns the thresholds for the reference front end.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Short:     DefaultShortPulse,
		Long:      DefaultLongPulse,
		Ambiguous: DefaultAmbiguousPulse,
	}
}

// Validate checks that the three periods are distinct and nonzero. A zero
// threshold would match the zeroed buffer.
func (t Thresholds) Validate() error {
	if t.Short == 0 || t.Long == 0 || t.Ambiguous == 0 {
		return fmt.Errorf("thresholds must be nonzero (short=%d long=%d ambiguous=%d)", t.Short, t.Long, t.Ambiguous)
	}
	if t.Short == t.Long || t.Short == t.Ambiguous || t.Long == t.Ambiguous {
		return fmt.Errorf("thresholds must be distinct (short=%d long=%d ambiguous=%d)", t.Short, t.Long, t.Ambiguous)
	}
	return nil
}

// Quantize maps every raw period to a symbol. Element 0 is reported as
// Invalid. An ambiguous period repeats the previous quantized symbol, which
// bridges a short and a long pulse that were measured as one.
func Quantize(buf *RawBuffer, th Thresholds) []Symbol {
	symbols := make([]Symbol, len(buf))
	symbols[0] = Invalid

	for i := firstSample; i < len(buf); i++ {
		switch buf[i] {
		case th.Short:
			symbols[i] = Zero
		case th.Long:
			symbols[i] = One
		case th.Ambiguous:
			symbols[i] = symbols[i-1]
		default:
			symbols[i] = Invalid
		}
	}

	return symbols
}
