package captcha

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

const (
	hashMethod     = "pbkdf2:sha256"
	hashSaltLength = 16
	hashKeyLength  = 32
	// upper bound on the iteration count read back from a token
	maxHashIterations = 1_000_000
)

var saltPool = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789")

// TokenClaims is the signed payload. HashedText is a salted PBKDF2 digest of
// SECRET_KEY+answer, so the answer cannot be read back from the token.
type TokenClaims struct {
	HashedText string `json:"hashed_text"`
	jwt.RegisteredClaims
}

// Token is an issued token together with the fields the service needs.
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// TokenCodec issues and redeems stateless HS256 tokens. It is safe for
// concurrent use; the secret is read-only after construction.
type TokenCodec struct {
	secret     []byte
	iterations int
	now        func() time.Time
}

// NewTokenCodec returns a codec keyed with secret.
func NewTokenCodec(secret string, iterations int) (*TokenCodec, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if iterations <= 0 || iterations > maxHashIterations {
		return nil, fmt.Errorf("%w: HASH_ITERATIONS=%d", ErrInvalidConfig, iterations)
	}
	return &TokenCodec{secret: []byte(secret), iterations: iterations, now: time.Now}, nil
}

// Issue binds text to a token that expires ttl from now. A zero or negative
// ttl yields a token that is already expired. JWT dates carry whole seconds,
// so the expiry is truncated and the effective lifetime can be up to one
// second shorter than ttl.
func (c *TokenCodec) Issue(text string, ttl time.Duration) (Token, error) {
	hashed, err := c.hashText(text)
	if err != nil {
		return Token{}, err
	}

	now := c.now()
	claims := TokenClaims{
		HashedText: hashed,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return Token{}, fmt.Errorf("captcha: sign token: %w", err)
	}
	return Token{Value: signed, ID: claims.ID, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Redeem reports whether candidate is the answer bound into token.
func (c *TokenCodec) Redeem(token, candidate string) bool {
	_, err := c.RedeemClaims(token, candidate)
	return err == nil
}

// RedeemClaims verifies the signature and expiry of token and compares the
// bound hash with candidate. The error says why redemption failed.
func (c *TokenCodec) RedeemClaims(token, candidate string) (*TokenClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &TokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !parsed.Valid || claims.HashedText == "" || claims.ID == "" {
		return nil, ErrTokenMalformed
	}

	if !c.checkHash(claims.HashedText, candidate) {
		return nil, ErrAnswerMismatch
	}
	return claims, nil
}

// hashText renders pbkdf2:sha256:<iterations>$<salt>$<hex>.
func (c *TokenCodec) hashText(text string) (string, error) {
	salt, err := GenerateText(hashSaltLength, saltPool)
	if err != nil {
		return "", err
	}
	sum := c.derive(text, salt, c.iterations)
	return hashMethod + ":" + strconv.Itoa(c.iterations) + "$" + salt + "$" + hex.EncodeToString(sum), nil
}

func (c *TokenCodec) checkHash(stored, candidate string) bool {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 {
		return false
	}
	iterRaw, ok := strings.CutPrefix(parts[0], hashMethod+":")
	if !ok {
		return false
	}
	iterations, err := strconv.Atoi(iterRaw)
	if err != nil || iterations <= 0 || iterations > maxHashIterations {
		return false
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil || len(want) != hashKeyLength {
		return false
	}
	got := c.derive(candidate, parts[1], iterations)
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (c *TokenCodec) derive(text, salt string, iterations int) []byte {
	password := make([]byte, 0, len(c.secret)+len(text))
	password = append(password, c.secret...)
	password = append(password, text...)
	return pbkdf2.Key(password, []byte(salt), iterations, hashKeyLength, sha256.New)
}

// LooksLikeToken reports whether s has the shape of an issued token: three
// non-empty base64url segments separated by dots.
func LooksLikeToken(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for i := 0; i < len(p); i++ {
			ch := p[i]
			switch {
			case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
			default:
				return false
			}
		}
	}
	return true
}
