package captcha

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	c, err := NewTokenCodec(testSecret, 1000)
	require.NoError(t, err)
	return c
}

func TestTokenRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Issue("TESTTEXT", time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID)
	assert.WithinDuration(t, time.Now().Add(time.Minute), tok.ExpiresAt, 2*time.Second)

	assert.True(t, c.Redeem(tok.Value, "TESTTEXT"))
	assert.False(t, c.Redeem(tok.Value, "TESTTEXX"))
	assert.False(t, c.Redeem(tok.Value, ""))

	claims, err := c.RedeemClaims(tok.Value, "TESTTEXT")
	require.NoError(t, err)
	assert.Equal(t, tok.ID, claims.ID)
	assert.True(t, strings.HasPrefix(claims.HashedText, "pbkdf2:sha256:1000$"))
}

func TestTokenDoesNotCarryAnswer(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Issue("QXZWKJ", time.Minute)
	require.NoError(t, err)

	payload, err := base64.RawURLEncoding.DecodeString(strings.Split(tok.Value, ".")[1])
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "QXZWKJ")
	assert.Contains(t, string(payload), "hashed_text")
}

func TestTokenSaltsDiffer(t *testing.T) {
	c := newTestCodec(t)
	a, err := c.Issue("SAME", time.Minute)
	require.NoError(t, err)
	b, err := c.Issue("SAME", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a.Value, b.Value)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestTokenExpiry(t *testing.T) {
	c := newTestCodec(t)
	for _, ttl := range []time.Duration{0, -100 * time.Second} {
		tok, err := c.Issue("TEXT", ttl)
		require.NoError(t, err)
		_, err = c.RedeemClaims(tok.Value, "TEXT")
		assert.ErrorIs(t, err, ErrTokenExpired, "ttl %s", ttl)
	}
}

func TestTokenExpiryUsesClock(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now()
	c.now = func() time.Time { return now }

	tok, err := c.Issue("TEXT", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, c.Redeem(tok.Value, "TEXT"))

	now = now.Add(11 * time.Second)
	assert.False(t, c.Redeem(tok.Value, "TEXT"))
}

func TestTokenExpiryTruncatesToSeconds(t *testing.T) {
	c := newTestCodec(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 900*int(time.Millisecond), time.UTC)
	c.now = func() time.Time { return now }

	tok, err := c.Issue("TEXT", time.Second)
	require.NoError(t, err)
	assert.True(t, tok.ExpiresAt.Equal(now.Add(time.Second).Truncate(time.Second)))
	assert.False(t, tok.ExpiresAt.After(now.Add(time.Second)))
	assert.True(t, c.Redeem(tok.Value, "TEXT"))

	now = now.Add(200 * time.Millisecond)
	_, err = c.RedeemClaims(tok.Value, "TEXT")
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenTamperDetection(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Issue("TAMPER", time.Minute)
	require.NoError(t, err)

	for i := 0; i < len(tok.Value); i++ {
		b := []byte(tok.Value)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		assert.False(t, c.Redeem(string(b), "TAMPER"), "flipped byte %d", i)
	}
}

func TestTokenRejectsForeignInput(t *testing.T) {
	c := newTestCodec(t)
	other, err := NewTokenCodec("another-secret", 1000)
	require.NoError(t, err)
	foreign, err := other.Issue("TEXT", time.Minute)
	require.NoError(t, err)

	for _, in := range []string{"", "invalid.token.here", "not a token", "a.b", foreign.Value} {
		_, err := c.RedeemClaims(in, "TEXT")
		assert.ErrorIs(t, err, ErrTokenMalformed, "input %q", in)
	}
}

func TestTokenRejectsOtherAlgorithms(t *testing.T) {
	c := newTestCodec(t)
	claims := TokenClaims{
		HashedText: "pbkdf2:sha256:1$salt$00",
		RegisteredClaims: gjwt.RegisteredClaims{
			ID:        "id",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	none, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.False(t, c.Redeem(none, "TEXT"))

	hs512, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.False(t, c.Redeem(hs512, "TEXT"))
}

func TestTokenRequiresExpiry(t *testing.T) {
	c := newTestCodec(t)
	hashed, err := c.hashText("TEXT")
	require.NoError(t, err)
	claims := TokenClaims{HashedText: hashed, RegisteredClaims: gjwt.RegisteredClaims{ID: "id"}}
	signed, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	assert.False(t, c.Redeem(signed, "TEXT"))
}

func TestNewTokenCodecValidation(t *testing.T) {
	_, err := NewTokenCodec("", 1000)
	assert.ErrorIs(t, err, ErrMissingSecret)
	_, err = NewTokenCodec("k", 0)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLooksLikeToken(t *testing.T) {
	c := newTestCodec(t)
	tok, err := c.Issue("TEXT", time.Minute)
	require.NoError(t, err)

	assert.True(t, LooksLikeToken(tok.Value))
	assert.True(t, LooksLikeToken("invalid.token.here"))
	for _, s := range []string{"", "ABCDEF", "a.b", "a..c", "a.b.c.d", "a b.c.d", "a.b.c="} {
		assert.False(t, LooksLikeToken(s), "input %q", s)
	}
}
