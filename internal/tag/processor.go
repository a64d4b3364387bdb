package tag

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Stats are cumulative decoder counters.
type Stats struct {
	Cycles     uint64
	NoCard     uint64
	Incomplete uint64
	Corrupt    uint64
	Decoded    uint64
	Desyncs    uint64
}

// Result carries the intermediate artifacts of one decode cycle.
type Result struct {
	Code        Code
	StartOffset int
	Demux       Demux
	Outcome     Outcome
}

// Decoder runs the quantize, locate, demultiplex and Manchester stages over a
// capture buffer. Decoding is synchronous and bounded by the buffer size.
type Decoder struct {
	logger     *logrus.Logger
	thresholds Thresholds

	mu    sync.RWMutex
	stats Stats
}

// NewDecoder creates a new decoder
func NewDecoder(thresholds Thresholds, logger *logrus.Logger) *Decoder {
	return &Decoder{
		logger:     logger,
		thresholds: thresholds,
	}
}

// Decode decodes one capture buffer. The returned error is one of the
// package sentinels, wrapped with detail.
func (d *Decoder) Decode(buf *RawBuffer) (Result, error) {
	res, err := d.decode(buf)
	res.Outcome = Classify(err)
	d.record(res)

	if err != nil && res.Outcome != OutcomeNoCard {
		d.logger.WithFields(logrus.Fields{
			"outcome":      res.Outcome.String(),
			"start_offset": res.StartOffset,
			"bits":         res.Demux.Emitted,
			"desyncs":      res.Demux.Desyncs,
		}).WithError(err).Debug("Tag read rejected")
	}

	return res, err
}

func (d *Decoder) decode(buf *RawBuffer) (Result, error) {
	var res Result

	symbols := Quantize(buf, d.thresholds)

	offset, err := FindStart(symbols)
	if err != nil {
		return res, err
	}
	res.StartOffset = offset

	res.Demux, err = Demultiplex(symbols, offset)
	if err != nil {
		return res, err
	}

	res.Code, err = DecodeManchester(&res.Demux.Stream)
	if err != nil {
		return res, err
	}

	return res, nil
}

func (d *Decoder) record(res Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Cycles++
	d.stats.Desyncs += uint64(res.Demux.Desyncs)
	switch res.Outcome {
	case OutcomeDecoded:
		d.stats.Decoded++
	case OutcomeNoCard:
		d.stats.NoCard++
	case OutcomeIncomplete:
		d.stats.Incomplete++
	default:
		d.stats.Corrupt++
	}
}

// Stats returns a snapshot of the decoder counters
func (d *Decoder) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}
