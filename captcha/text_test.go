package captcha

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateText(t *testing.T) {
	pool := []rune("ABC")
	text, err := GenerateText(500, pool)
	require.NoError(t, err)
	assert.Len(t, []rune(text), 500)
	for _, c := range text {
		assert.Contains(t, "ABC", string(c))
	}
	// with replacement: 500 draws from 3 runes must repeat
	assert.Greater(t, strings.Count(text, "A"), 1)
}

func TestGenerateTextSingleRunePool(t *testing.T) {
	text, err := GenerateText(4, []rune("Z"))
	require.NoError(t, err)
	assert.Equal(t, "ZZZZ", text)
}

func TestGenerateTextMultibyte(t *testing.T) {
	text, err := GenerateText(3, []rune("é"))
	require.NoError(t, err)
	assert.Equal(t, "ééé", text)
}

func TestGenerateTextInvalidInput(t *testing.T) {
	_, err := GenerateText(0, []rune("A"))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = GenerateText(-1, []rune("A"))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = GenerateText(3, nil)
	assert.ErrorIs(t, err, ErrEmptyPool)
}
