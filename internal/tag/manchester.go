package tag

import "fmt"

// DecodeManchester turns the first 44 stream pairs into data bits. A 1 is
// sent as (One, Zero) and a 0 as (Zero, One); any other pair means the read
// is corrupt or misaligned. The parity pair is decoded when it is intact but
// never required.
func DecodeManchester(stream *BitStream) (Code, error) {
	var code Code

	for i := 0; i < RequiredSlots; i++ {
		if stream[i] == Unset {
			return code, fmt.Errorf("%w: slot %d unset", ErrIncompleteFrame, i)
		}
	}

	for i := 0; i < RequiredSlots; i += 2 {
		bit, ok := decodePair(stream[i], stream[i+1])
		if !ok {
			return code, fmt.Errorf("%w: pair %d is %s%s", ErrManchesterViolation, i/2, stream[i], stream[i+1])
		}
		code.Bits[i/2] = bit
	}

	if bit, ok := decodePair(stream[parityPairSlot], stream[parityPairSlot+1]); ok {
		code.Parity = bit
		code.ParityKnown = true
	}

	return code, nil
}

func decodePair(a, b Symbol) (uint8, bool) {
	switch {
	case a == One && b == Zero:
		return 1, true
	case a == Zero && b == One:
		return 0, true
	default:
		return 0, false
	}
}

// EncodeManchester expands bits into their two-symbol Manchester form.
func EncodeManchester(bits []uint8) []Symbol {
	out := make([]Symbol, 0, len(bits)*2)
	for _, b := range bits {
		if b&0x01 == 1 {
			out = append(out, One, Zero)
		} else {
			out = append(out, Zero, One)
		}
	}
	return out
}
