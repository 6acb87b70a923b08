package captcha

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const (
	uppercaseLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits           = "0123456789"
)

// ConfusableChars are dropped from the pool when EXCLUDE_VISUALLY_SIMILAR is on.
const ConfusableChars = "oO0lI1"

// BuildPool derives the character pool for cfg. includeDigits overrides
// cfg.IncludeDigits so callers can build both variants up front.
//
// Exclusion runs after digits are added so confusable digits cannot come
// back through the digit set.
func BuildPool(cfg Config, includeDigits bool) ([]rune, error) {
	base := uppercaseLetters
	if cfg.CharacterPool != "" {
		base = cfg.CharacterPool
	}
	if cfg.OnlyUppercase {
		base = strings.ToUpper(base)
	}
	if includeDigits {
		base += digits
	}

	seen := make(map[rune]struct{}, len(base))
	pool := make([]rune, 0, len(base))
	for _, r := range base {
		if unicode.IsSpace(r) || !unicode.IsPrint(r) {
			continue
		}
		if cfg.ExcludeVisuallySimilar && strings.ContainsRune(ConfusableChars, r) {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		pool = append(pool, r)
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("%w: pool %q digits=%t exclude=%t", ErrEmptyPool, base, includeDigits, cfg.ExcludeVisuallySimilar)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i] < pool[j] })
	return pool, nil
}
