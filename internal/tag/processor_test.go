package tag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// halfBitStart is the raw index of Manchester half bit h in a synthesized buffer.
func halfBitStart(s Synth, h int) int {
	return firstSample + s.LeadIn + s.Preamble + h*s.HalfBit
}

func TestDecoder_EndToEnd(t *testing.T) {
	synth := DefaultSynth()
	buf, err := synth.Buffer(testCode())
	require.NoError(t, err)

	// trailing noise after the end marker
	end := halfBitStart(synth, 2*CodeBits) + synth.Trailer
	for i := end; i < BufferSize; i++ {
		buf[i] = RawSample(3 + i%7)
	}

	decoder := NewDecoder(DefaultThresholds(), quietLogger())
	res, err := decoder.Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDecoded, res.Outcome)
	assert.Equal(t, testCode().Bits, res.Code.Bits)
	assert.Equal(t, uint16(12345), res.Code.UniqueID())
	assert.Equal(t, uint8(42), res.Code.SiteCode())
	assert.Equal(t, uint32(0x2A5C1), res.Code.ManufacturerID())
	assert.Equal(t, firstSample+synth.Preamble, res.StartOffset)
	assert.Equal(t, 0, res.Demux.Desyncs)
}

func TestDecoder_Jitter(t *testing.T) {
	synth := DefaultSynth()
	synth.Jitter = true
	synth.LeadIn = 37

	buf, err := synth.Buffer(testCode())
	require.NoError(t, err)

	res, err := NewDecoder(DefaultThresholds(), quietLogger()).Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(12345), res.Code.UniqueID())
}

func TestDecoder_Parity(t *testing.T) {
	tests := []struct {
		name       string
		parity     uint8
		wantKnown  bool
		wantParity uint8
	}{
		// (Zero, One): the parity pair survives in full
		{name: "Parity zero", parity: 0, wantKnown: true, wantParity: 0},
		// (One, Zero): the trailing Zero half merges into the end marker
		{name: "Parity one", parity: 1, wantKnown: false, wantParity: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := testCode()
			code.Parity = tt.parity
			buf, err := DefaultSynth().Buffer(code)
			require.NoError(t, err)

			res, err := NewDecoder(DefaultThresholds(), quietLogger()).Decode(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKnown, res.Code.ParityKnown)
			assert.Equal(t, tt.wantParity, res.Code.Parity)
		})
	}
}

func TestDecoder_ManchesterViolation(t *testing.T) {
	synth := DefaultSynth()
	buf, err := synth.Buffer(testCode())
	require.NoError(t, err)

	// Unique id 12345 puts bits 1,1,0 at code positions 30..32. Turning the
	// Zero half of bit 31 into a One makes pair 31 (One, One) while keeping
	// every run inside its bucket.
	start := halfBitStart(synth, 2*31+1)
	for i := start; i < start+synth.HalfBit; i++ {
		buf[i] = synth.Thresholds.Long
	}

	res, err := NewDecoder(DefaultThresholds(), quietLogger()).Decode(buf)
	assert.ErrorIs(t, err, ErrManchesterViolation)
	assert.Contains(t, err.Error(), "pair 31")
	assert.Equal(t, OutcomeCorrupt, res.Outcome)
}

func TestDecoder_OutOfRangeHalfBit(t *testing.T) {
	// Unique id 0x8000 makes bit 28 a lone 1: its Zero half shares a run
	// with the first half of bit 29. Garbling that half must not let the
	// stream close up around the gap and shift the later pairs.
	code := NewCode(Fields{ManufacturerID: 0x2A5C1, SiteCode: 42, UniqueID: 0x8000})

	for _, period := range []RawSample{0, 3, 9, 200} {
		synth := DefaultSynth()
		buf, err := synth.Buffer(code)
		require.NoError(t, err)

		start := halfBitStart(synth, 2*28+1)
		for i := start; i < start+synth.HalfBit; i++ {
			buf[i] = period
		}

		res, err := NewDecoder(DefaultThresholds(), quietLogger()).Decode(buf)
		require.ErrorIs(t, err, ErrManchesterViolation, "period %d", period)
		assert.Contains(t, err.Error(), "pair 28")
		assert.Equal(t, OutcomeCorrupt, res.Outcome)
		assert.Equal(t, 0, res.Demux.Desyncs)
	}
}

func TestDecoder_Truncated(t *testing.T) {
	symbols := DefaultSynth().Symbols(testCode())
	buf := rawFromSymbols(DefaultThresholds(), symbols, 700)

	res, err := NewDecoder(DefaultThresholds(), quietLogger()).Decode(buf)
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Equal(t, OutcomeIncomplete, res.Outcome)
	assert.Less(t, res.Demux.Emitted, RequiredSlots)
}

func TestDecoder_ShortFrame(t *testing.T) {
	// Valid start and end markers around too few data bits.
	th := DefaultThresholds()
	data := EncodeManchester([]uint8{0, 1, 1, 0, 1, 0, 0, 1})
	var symbols []Symbol
	symbols = append(symbols, repeat(One, 20)...)
	for _, half := range data {
		symbols = append(symbols, repeat(half, 6)...)
	}
	symbols = append(symbols, repeat(Zero, 20)...)

	res, err := NewDecoder(th, quietLogger()).Decode(rawFromSymbols(th, symbols, 1))
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	assert.Contains(t, err.Error(), "unset")
	assert.Equal(t, OutcomeIncomplete, res.Outcome)
}

func TestDecoder_NoCard(t *testing.T) {
	decoder := NewDecoder(DefaultThresholds(), quietLogger())

	res, err := decoder.Decode(&RawBuffer{})
	assert.ErrorIs(t, err, ErrNoStartMarker)
	assert.Equal(t, OutcomeNoCard, res.Outcome)
}

func TestDecoder_Stats(t *testing.T) {
	decoder := NewDecoder(DefaultThresholds(), quietLogger())

	good, err := DefaultSynth().Buffer(testCode())
	require.NoError(t, err)
	truncated := rawFromSymbols(DefaultThresholds(), DefaultSynth().Symbols(testCode()), 700)

	_, _ = decoder.Decode(good)
	_, _ = decoder.Decode(good)
	_, _ = decoder.Decode(&RawBuffer{})
	_, _ = decoder.Decode(truncated)

	stats := decoder.Stats()
	assert.Equal(t, uint64(4), stats.Cycles)
	assert.Equal(t, uint64(2), stats.Decoded)
	assert.Equal(t, uint64(1), stats.NoCard)
	assert.Equal(t, uint64(1), stats.Incomplete)
	assert.Equal(t, uint64(0), stats.Corrupt)
}

func TestSynth_BufferTooSmall(t *testing.T) {
	synth := DefaultSynth()
	synth.LeadIn = 500

	_, err := synth.Buffer(testCode())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeDecoded, Classify(nil))
	assert.Equal(t, OutcomeNoCard, Classify(ErrNoStartMarker))
	assert.Equal(t, OutcomeIncomplete, Classify(ErrIncompleteFrame))
	assert.Equal(t, OutcomeCorrupt, Classify(ErrManchesterViolation))
	assert.Equal(t, OutcomeCorrupt, Classify(ErrFrameOverflow))
	assert.Equal(t, "no_card", OutcomeNoCard.String())
}
