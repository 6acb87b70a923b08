package captcha

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// GenerateText draws length runes from pool independently, with replacement.
func GenerateText(length int, pool []rune) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if len(pool) == 0 {
		return "", ErrEmptyPool
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(pool)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("captcha: read random: %w", err)
		}
		b.WriteRune(pool[n.Int64()])
	}
	return b.String(), nil
}
