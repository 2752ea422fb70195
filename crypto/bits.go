package crypto

import (
	"fmt"
	"strings"
)

// nibbleBits maps a hex character byte to its 4-bit rendering; "" marks invalid input.
var nibbleBits [256]string

func init() {
	const symbols = "0123456789abcdef"
	for i := 0; i < len(symbols); i++ {
		nibbleBits[symbols[i]] = fmt.Sprintf("%04b", i)
	}
}

// HexToBinary expands a lowercase hex string into its bit string, four bits per character.
func HexToBinary(s string) (string, error) {
	var sb strings.Builder
	sb.Grow(len(s) * 4)
	for i := 0; i < len(s); i++ {
		bits := nibbleBits[s[i]]
		if bits == "" {
			return "", fmt.Errorf("%w: character %q at position %d", ErrInvalidHex, s[i], i)
		}
		sb.WriteString(bits)
	}
	return sb.String(), nil
}

// LeadingZeroBits returns the number of '0' bits before the first '1' bit in the
// binary expansion of a hex digest. An all-zero input counts every bit.
func LeadingZeroBits(hexDigest string) (int, error) {
	bits, err := HexToBinary(hexDigest)
	if err != nil {
		return 0, err
	}
	trimmed := strings.TrimLeft(bits, "0")
	return len(bits) - len(trimmed), nil
}
