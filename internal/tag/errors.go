package tag

import "errors"

// Decode outcomes. None of them are fatal: the read loop drops the cycle and
// listens again.
var (
	ErrNoStartMarker       = errors.New("no start marker")
	ErrIncompleteFrame     = errors.New("incomplete frame")
	ErrManchesterViolation = errors.New("manchester violation")
	ErrFrameOverflow       = errors.New("frame overflow")
)

// Outcome classifies a decode cycle.
type Outcome int

const (
	OutcomeDecoded Outcome = iota
	OutcomeNoCard
	OutcomeIncomplete
	OutcomeCorrupt
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecoded:
		return "decoded"
	case OutcomeNoCard:
		return "no_card"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Classify maps a decode error to its outcome. Unknown errors count as corrupt.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeDecoded
	case errors.Is(err, ErrNoStartMarker):
		return OutcomeNoCard
	case errors.Is(err, ErrIncompleteFrame):
		return OutcomeIncomplete
	default:
		return OutcomeCorrupt
	}
}
