package tag

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamFrom(symbols []Symbol) *BitStream {
	s := NewBitStream()
	copy(s[:], symbols)
	return &s
}

func TestManchester_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1090))

	for n := 0; n < 200; n++ {
		bits := make([]uint8, CodeBits)
		for i := range bits {
			bits[i] = uint8(rng.Intn(2))
		}

		code, err := DecodeManchester(streamFrom(EncodeManchester(bits)))
		require.NoError(t, err)
		assert.Equal(t, bits[:DataBits], code.Bits[:])
		assert.True(t, code.ParityKnown)
		assert.Equal(t, bits[DataBits], code.Parity)
	}
}

func TestManchester_Encode(t *testing.T) {
	assert.Equal(t, []Symbol{One, Zero, Zero, One, One, Zero}, EncodeManchester([]uint8{1, 0, 1}))
	assert.Empty(t, EncodeManchester(nil))
}

func TestManchester_Violation(t *testing.T) {
	for _, bad := range [][2]Symbol{{One, One}, {Zero, Zero}} {
		symbols := EncodeManchester(make([]uint8, CodeBits))
		symbols[20], symbols[21] = bad[0], bad[1]

		_, err := DecodeManchester(streamFrom(symbols))
		assert.ErrorIs(t, err, ErrManchesterViolation)
		assert.Contains(t, err.Error(), "pair 10")
		assert.Equal(t, OutcomeCorrupt, Classify(err))
	}
}

func TestManchester_UnsetSlot(t *testing.T) {
	symbols := EncodeManchester(make([]uint8, CodeBits))
	stream := streamFrom(symbols)
	stream[87] = Unset

	_, err := DecodeManchester(stream)
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Contains(t, err.Error(), "slot 87")
}

func TestManchester_UnsetCheckedBeforePairs(t *testing.T) {
	// A violation early in the stream still reports as incomplete when a
	// required slot was never written.
	stream := streamFrom(EncodeManchester(make([]uint8, 10)))
	stream[0], stream[1] = One, One

	_, err := DecodeManchester(stream)
	assert.ErrorIs(t, err, ErrIncompleteFrame)
}

func TestManchester_ParityOptional(t *testing.T) {
	symbols := EncodeManchester(make([]uint8, DataBits))
	symbols = append(symbols, One) // parity pair cut by the end marker

	code, err := DecodeManchester(streamFrom(symbols))
	require.NoError(t, err)
	assert.False(t, code.ParityKnown)
	assert.Equal(t, uint8(0), code.Parity)
}
