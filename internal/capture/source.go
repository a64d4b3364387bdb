package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"rfidgate/internal/tag"
)

// Capture stream constants
const (
	ReadChunkSize = 4096
	ReadTimeout   = 100 * time.Millisecond
)

// Source turns a framed front end stream into capture buffers. It owns a
// single RawBuffer. The buffer is handed to the consumer through the output
// channel and comes back through Release, so capture never writes into a
// buffer that is being decoded.
type Source struct {
	reader   io.Reader
	decoder  *FrameDecoder
	logger   *logrus.Logger
	blocking bool
	free     chan *tag.RawBuffer

	blocks  atomic.Uint64
	dropped atomic.Uint64
}

// Stats are cumulative capture counters.
type Stats struct {
	Blocks  uint64 // blocks handed to the consumer
	Dropped uint64 // blocks that arrived while the buffer was out
	Resyncs uint64 // frames abandoned mid-payload
}

// NewSource creates a capture source reading from r. A live front end keeps
// sending while a buffer is being decoded; with blocking false those blocks
// are dropped, which is the capture pause. Replay sources set blocking so
// every recorded block is decoded.
func NewSource(r io.Reader, blocking bool, logger *logrus.Logger) *Source {
	s := &Source{
		reader:   r,
		decoder:  NewFrameDecoder(logger),
		logger:   logger,
		blocking: blocking,
		free:     make(chan *tag.RawBuffer, 1),
	}
	s.free <- &tag.RawBuffer{}
	return s
}

// StartCapture reads the stream until it ends or ctx is cancelled, sending
// each completed buffer to out. out is closed on return. End of stream is
// not an error.
func (s *Source) StartCapture(ctx context.Context, out chan<- *tag.RawBuffer) error {
	defer close(out)

	if port, ok := s.reader.(TimeoutSerialPorter); ok {
		if err := port.SetReadTimeout(ReadTimeout); err != nil {
			return fmt.Errorf("failed to set read timeout: %w", err)
		}
	}

	s.logger.Info("Starting capture")

	chunk := make([]byte, ReadChunkSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := s.reader.Read(chunk)
		if n > 0 {
			for _, frame := range s.decoder.Decode(chunk[:n]) {
				if !s.handleFrame(ctx, frame, out) {
					return nil
				}
			}
		}

		if errors.Is(err, io.EOF) {
			s.logger.Info("Capture stream ended")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read capture stream: %w", err)
		}
	}
}

// handleFrame returns false when ctx was cancelled while waiting.
func (s *Source) handleFrame(ctx context.Context, frame *Frame, out chan<- *tag.RawBuffer) bool {
	if frame.Type == TypeStatus {
		s.logger.WithField("status", string(frame.Payload)).Debug("Front end status")
		return true
	}

	var buf *tag.RawBuffer
	if s.blocking {
		select {
		case buf = <-s.free:
		case <-ctx.Done():
			return false
		}
	} else {
		select {
		case buf = <-s.free:
		default:
			s.dropped.Add(1)
			return true
		}
	}

	for i, b := range frame.Payload {
		buf[i] = tag.RawSample(b)
	}

	select {
	case out <- buf:
		s.blocks.Add(1)
		return true
	case <-ctx.Done():
		return false
	}
}

// Release resets buf and returns it to the producer. Call exactly once per
// received buffer, after decoding is finished.
func (s *Source) Release(buf *tag.RawBuffer) {
	buf.Reset()
	s.free <- buf
}

// Stats returns a snapshot of the capture counters.
func (s *Source) Stats() Stats {
	return Stats{
		Blocks:  s.blocks.Load(),
		Dropped: s.dropped.Load(),
		Resyncs: s.decoder.Resyncs(),
	}
}
