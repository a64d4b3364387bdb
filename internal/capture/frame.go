package capture

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"rfidgate/internal/tag"
)

// Front end framing. Every frame starts with SyncByte followed by a type
// byte. A SyncByte inside the payload is sent twice.
const (
	SyncByte   = 0x1A
	TypeBlock  = 0x50 // 'P': one capture buffer of period counts
	TypeStatus = 0x53 // 'S': newline terminated status text

	BlockPayloadSize = tag.BufferSize
	maxStatusSize    = 256
)

var (
	errNeedMore = errors.New("need more data")
	errBroken   = errors.New("frame interrupted by sync")
)

// Frame is one decoded front end frame with its payload unescaped.
type Frame struct {
	Type    byte
	Payload []byte
}

// FrameDecoder reassembles frames from an arbitrarily chunked byte stream.
type FrameDecoder struct {
	logger  *logrus.Logger
	buffer  []byte
	resyncs atomic.Uint64
}

// NewFrameDecoder creates a new frame decoder
func NewFrameDecoder(logger *logrus.Logger) *FrameDecoder {
	return &FrameDecoder{
		logger: logger,
		buffer: make([]byte, 0, 2*BlockPayloadSize),
	}
}

// Decode appends data to the internal buffer and returns every frame that is
// now complete. Partial frames are kept for the next call.
func (d *FrameDecoder) Decode(data []byte) []*Frame {
	d.buffer = append(d.buffer, data...)

	var frames []*Frame
	for {
		frame, ok := d.next()
		if !ok {
			break
		}
		frames = append(frames, frame)
	}

	return frames
}

// Resyncs returns how many frames were abandoned because a new sync arrived
// before they were complete.
func (d *FrameDecoder) Resyncs() uint64 {
	return d.resyncs.Load()
}

func (d *FrameDecoder) next() (*Frame, bool) {
	for {
		syncIndex := -1
		for i, b := range d.buffer {
			if b == SyncByte {
				syncIndex = i
				break
			}
		}

		if syncIndex == -1 {
			d.buffer = d.buffer[:0]
			return nil, false
		}

		// Remove data before sync byte
		if syncIndex > 0 {
			d.buffer = d.buffer[syncIndex:]
		}

		if len(d.buffer) < 2 {
			return nil, false
		}

		frameType := d.buffer[1]
		switch frameType {
		case SyncByte:
			// escaped payload byte seen outside a frame
			d.buffer = d.buffer[2:]
			continue
		case TypeBlock, TypeStatus:
		default:
			d.logger.WithField("frame_type", fmt.Sprintf("0x%02x", frameType)).Debug("Unknown frame type, skipping")
			d.buffer = d.buffer[1:]
			continue
		}

		payload, n, err := unescapePayload(d.buffer[2:], frameType)
		switch {
		case errors.Is(err, errNeedMore):
			return nil, false
		case errors.Is(err, errBroken):
			d.resyncs.Add(1)
			d.logger.WithFields(logrus.Fields{
				"frame_type": fmt.Sprintf("0x%02x", frameType),
				"received":   len(payload),
			}).Debug("Frame interrupted, resyncing")
			d.buffer = d.buffer[2+n:]
			continue
		}

		d.buffer = d.buffer[2+n:]
		return &Frame{Type: frameType, Payload: payload}, true
	}
}

// unescapePayload reads one payload from src. n is the number of source
// bytes consumed, or the index of the interrupting sync when errBroken.
func unescapePayload(src []byte, frameType byte) ([]byte, int, error) {
	out := make([]byte, 0, BlockPayloadSize)

	i := 0
	for i < len(src) {
		b := src[i]
		if b == SyncByte {
			if i+1 >= len(src) {
				return nil, 0, errNeedMore
			}
			if src[i+1] != SyncByte {
				return out, i, errBroken
			}
			i++
		}
		i++
		out = append(out, b)

		switch frameType {
		case TypeBlock:
			if len(out) == BlockPayloadSize {
				return out, i, nil
			}
		case TypeStatus:
			if b == '\n' {
				return out[:len(out)-1], i, nil
			}
			if len(out) > maxStatusSize {
				return out, i, errBroken
			}
		}
	}

	return nil, 0, errNeedMore
}

// AppendFrame appends an escaped frame to dst.
func AppendFrame(dst []byte, frameType byte, payload []byte) []byte {
	dst = append(dst, SyncByte, frameType)
	for _, b := range payload {
		if b == SyncByte {
			dst = append(dst, SyncByte)
		}
		dst = append(dst, b)
	}
	return dst
}

// EncodeBlock frames a capture buffer the way the front end sends it.
func EncodeBlock(buf *tag.RawBuffer) []byte {
	payload := make([]byte, len(buf))
	for i, s := range buf {
		payload[i] = byte(s)
	}
	return AppendFrame(nil, TypeBlock, payload)
}

// EncodeStatus frames a status line.
func EncodeStatus(text string) []byte {
	return AppendFrame(nil, TypeStatus, []byte(text+"\n"))
}
