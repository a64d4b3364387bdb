package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"rfidgate/internal/access"
	"rfidgate/internal/capture"
	"rfidgate/internal/tag"
)

// ErrUnencodable is returned for codes whose first data bit is 1. The first
// half bit would merge into the start marker, so no reader could decode it.
var ErrUnencodable = errors.New("code cannot be framed")

// DecodeReplay decodes every block in a recorded capture stream and writes
// one line per block to out. When the configured allow list is non-empty
// each decoded id also gets a verdict. Nothing is actuated.
func DecodeReplay(ctx context.Context, r io.Reader, config Config, logger *logrus.Logger, out io.Writer) (tag.Stats, error) {
	if err := config.Decoder.Validate(); err != nil {
		return tag.Stats{}, fmt.Errorf("invalid decoder thresholds: %w", err)
	}
	thresholds := config.Decoder.Thresholds()

	ids, err := config.Access.UniqueIDs()
	if err != nil {
		return tag.Stats{}, err
	}
	var allow *access.AllowList
	if len(ids) > 0 {
		allow = access.NewAllowList(ids...)
	}

	decoder := tag.NewDecoder(thresholds, logger)
	source := capture.NewSource(r, true, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	buffers := make(chan *tag.RawBuffer)
	captureErr := make(chan error, 1)
	go func() {
		captureErr <- source.StartCapture(ctx, buffers)
	}()

	var writeErr error
	block := 0
	for buf := range buffers {
		block++
		res, err := decoder.Decode(buf)
		source.Release(buf)

		if writeErr != nil {
			continue
		}
		_, writeErr = fmt.Fprintln(out, describeBlock(block, res, err, allow))
		if writeErr != nil {
			cancel()
		}
	}

	if err := <-captureErr; err != nil {
		return decoder.Stats(), err
	}
	if writeErr != nil {
		return decoder.Stats(), fmt.Errorf("failed to write report: %w", writeErr)
	}
	return decoder.Stats(), nil
}

func describeBlock(block int, res tag.Result, err error, allow *access.AllowList) string {
	if err != nil {
		if res.Outcome == tag.OutcomeNoCard {
			return fmt.Sprintf("block %d: %s", block, res.Outcome)
		}
		return fmt.Sprintf("block %d: %s (%v)", block, res.Outcome, err)
	}

	fields := res.Code.Fields()
	line := fmt.Sprintf("block %d: %s code=%s manufacturer_id=%05X site_code=%d unique_id=%d",
		block, res.Outcome, res.Code.Hex(), fields.ManufacturerID, fields.SiteCode, fields.UniqueID)
	if allow != nil {
		line += " verdict=" + allow.Decide(fields.UniqueID).String()
	}
	return line
}

// EncodeBlock synthesizes the framed capture block a card with fields would
// produce on the front end.
func EncodeBlock(fields tag.Fields, thresholds tag.Thresholds) ([]byte, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid decoder thresholds: %w", err)
	}

	if fields.ManufacturerID >= 1<<tag.ManufacturerIDLength {
		return nil, fmt.Errorf("%w: manufacturer id %X exceeds %d bits", ErrUnencodable, fields.ManufacturerID, tag.ManufacturerIDLength)
	}

	code := tag.NewCode(fields)
	if code.Bits[0] != 0 {
		return nil, fmt.Errorf("%w: manufacturer id %05X has its top bit set", ErrUnencodable, fields.ManufacturerID)
	}

	synth := tag.DefaultSynth()
	synth.Thresholds = thresholds
	buf, err := synth.Buffer(code)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize block: %w", err)
	}
	return capture.EncodeBlock(buf), nil
}
