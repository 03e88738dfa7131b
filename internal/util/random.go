// Package util provides small helpers shared across ShopPipe components.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; the output is not suitable for secrets.
func GenerateRandomHex(length int) string {
	return GenerateFromAlphabet("0123456789abcdef", length)
}

// GenerateFromAlphabet draws length characters uniformly from alphabet.
func GenerateFromAlphabet(alphabet string, length int) string {
	if length <= 0 || alphabet == "" {
		return ""
	}

	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}

	return builder.String()
}

// RandomIntInRange returns a random int in [min, max]. If max < min, min is returned.
func RandomIntInRange(min, max int) int {
	if max <= min {
		return min
	}
	return min + rand.IntN(max-min+1)
}

// GenerateCheckoutID generates a synthetic external checkout id with "sim_" prefix.
func GenerateCheckoutID() string {
	return GenerateRandomID("sim_", 16)
}
