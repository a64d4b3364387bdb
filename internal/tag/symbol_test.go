package tag

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRuns_Accounting(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := []Symbol{Zero, One, Invalid}

	for n := 0; n < 50; n++ {
		length := 1 + rng.Intn(300)
		symbols := make([]Symbol, length)
		for i := range symbols {
			// bias towards repeats so runs of every size show up
			if i > 0 && rng.Intn(4) != 0 {
				symbols[i] = symbols[i-1]
			} else {
				symbols[i] = values[rng.Intn(len(values))]
			}
		}
		offset := rng.Intn(length)

		total := 0
		for _, run := range Runs(symbols, offset) {
			assert.Greater(t, run.Length, 0)
			total += run.Length
		}
		assert.Equal(t, length-offset, total)
	}
}

func TestRuns_Maximal(t *testing.T) {
	symbols := concat(repeat(One, 3), repeat(Zero, 5), repeat(Invalid, 1), repeat(Zero, 2))
	runs := Runs(symbols, 0)

	assert.Equal(t, []Run{
		{Value: One, Length: 3},
		{Value: Zero, Length: 5},
		{Value: Invalid, Length: 1},
		{Value: Zero, Length: 2},
	}, runs)
}

func TestRuns_OffsetPastEnd(t *testing.T) {
	assert.Empty(t, Runs(repeat(One, 4), 4))
	assert.Empty(t, Runs(nil, 0))
}

func TestSymbol_String(t *testing.T) {
	assert.Equal(t, "0", Zero.String())
	assert.Equal(t, "1", One.String())
	assert.Equal(t, "X", Invalid.String())
	assert.Equal(t, "_", Unset.String())
}
