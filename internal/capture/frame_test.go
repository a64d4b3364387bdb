package capture

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rfidgate/internal/tag"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// patternBuffer fills a buffer with values that include the sync byte.
func patternBuffer() *tag.RawBuffer {
	buf := &tag.RawBuffer{}
	for i := range buf {
		buf[i] = tag.RawSample(i % 40)
	}
	return buf
}

func payloadOf(buf *tag.RawBuffer) []byte {
	out := make([]byte, len(buf))
	for i, s := range buf {
		out[i] = byte(s)
	}
	return out
}

func TestFrameDecoder_Block(t *testing.T) {
	buf := patternBuffer()
	encoded := EncodeBlock(buf)
	assert.Greater(t, len(encoded), 2+BlockPayloadSize, "sync bytes in the payload are escaped")

	frames := NewFrameDecoder(quietLogger()).Decode(encoded)
	require.Len(t, frames, 1)
	assert.Equal(t, byte(TypeBlock), frames[0].Type)
	assert.Equal(t, payloadOf(buf), frames[0].Payload)
}

func TestFrameDecoder_Chunked(t *testing.T) {
	buf := patternBuffer()
	stream := append([]byte{0x00, 0x42}, EncodeBlock(buf)...)
	stream = append(stream, EncodeStatus("reader ok")...)
	stream = append(stream, EncodeBlock(buf)...)

	tests := []struct {
		name      string
		chunkSize int
	}{
		{name: "One byte at a time", chunkSize: 1},
		{name: "Split on odd boundaries", chunkSize: 7},
		{name: "Whole stream", chunkSize: len(stream)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoder := NewFrameDecoder(quietLogger())

			var frames []*Frame
			for i := 0; i < len(stream); i += tt.chunkSize {
				end := i + tt.chunkSize
				if end > len(stream) {
					end = len(stream)
				}
				frames = append(frames, decoder.Decode(stream[i:end])...)
			}

			require.Len(t, frames, 3)
			assert.Equal(t, payloadOf(buf), frames[0].Payload)
			assert.Equal(t, byte(TypeStatus), frames[1].Type)
			assert.Equal(t, "reader ok", string(frames[1].Payload))
			assert.Equal(t, payloadOf(buf), frames[2].Payload)
			assert.Equal(t, uint64(0), decoder.Resyncs())
		})
	}
}

func TestFrameDecoder_InterruptedFrame(t *testing.T) {
	buf := patternBuffer()
	full := EncodeBlock(buf)

	stream := append([]byte{}, full[:300]...)
	stream = append(stream, full...)

	decoder := NewFrameDecoder(quietLogger())
	frames := decoder.Decode(stream)

	require.Len(t, frames, 1)
	assert.Equal(t, payloadOf(buf), frames[0].Payload)
	assert.Equal(t, uint64(1), decoder.Resyncs())
}

func TestFrameDecoder_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "No sync byte", input: []byte{0x1B, 0x50, 0x05, 0x07}},
		{name: "Unknown frame type", input: []byte{0x1A, 0x99, 0x05, 0x07}},
		{name: "Escaped byte outside a frame", input: []byte{0x1A, 0x1A, 0x05}},
		{name: "Empty input", input: []byte{}},
		{name: "Partial block", input: EncodeBlock(patternBuffer())[:500]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames := NewFrameDecoder(quietLogger()).Decode(tt.input)
			assert.Empty(t, frames)
		})
	}
}

func TestFrameDecoder_OversizedStatus(t *testing.T) {
	long := make([]byte, maxStatusSize+10)
	for i := range long {
		long[i] = 'a'
	}
	stream := AppendFrame(nil, TypeStatus, long)
	stream = append(stream, EncodeStatus("ok")...)

	decoder := NewFrameDecoder(quietLogger())
	frames := decoder.Decode(stream)

	require.Len(t, frames, 1)
	assert.Equal(t, "ok", string(frames[0].Payload))
	assert.Equal(t, uint64(1), decoder.Resyncs())
}

func TestAppendFrame_Escaping(t *testing.T) {
	got := AppendFrame(nil, TypeStatus, []byte{0x01, SyncByte, 0x02})
	assert.Equal(t, []byte{SyncByte, TypeStatus, 0x01, SyncByte, SyncByte, 0x02}, got)
}
