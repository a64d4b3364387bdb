package tag

import "fmt"

// FindStart locates the first start marker and returns the index of the
// symbol that follows it, where data parsing resumes. A marker that runs into
// the end of the buffer carries no payload and is not reported.
func FindStart(symbols []Symbol) (int, error) {
	offset, found := scanRuns(symbols, firstSample, func(run Run, next int) bool {
		return !(run.isStartMarker() && next < len(symbols))
	})
	if !found {
		return 0, fmt.Errorf("%w in %d samples", ErrNoStartMarker, len(symbols))
	}
	return offset, nil
}
