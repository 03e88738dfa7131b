package cartrecovery

import "github.com/BTreeMap/ShopPipe/internal/util"

const (
	// DiscountCodePrefix starts every generated code.
	DiscountCodePrefix = "COMEBACK"
	// DiscountAlphabet omits characters that are easy to misread (0 O 1 I L).
	DiscountAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	// DiscountSuffixLength is the number of random characters after the prefix.
	DiscountSuffixLength = 5
)

// GenerateDiscountCode returns a human-readable code. Codes are not checked
// for collisions.
func GenerateDiscountCode() string {
	return DiscountCodePrefix + util.GenerateFromAlphabet(DiscountAlphabet, DiscountSuffixLength)
}
