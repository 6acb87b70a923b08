package captcha

import "errors"

// Configuration errors. They surface from New and from Create and are never
// produced by verification, which only ever answers false.
var (
	ErrMissingSecret     = errors.New("captcha: SECRET_KEY must be set")
	ErrInvalidLength     = errors.New("captcha: text length must be positive")
	ErrEmptyPool         = errors.New("captcha: character pool is empty")
	ErrUnknownFont       = errors.New("captcha: unknown font")
	ErrUnsupportedFormat = errors.New("captcha: unsupported image format")
	ErrInvalidConfig     = errors.New("captcha: invalid configuration value")
)

// Verification reasons. TokenCodec.RedeemClaims returns them so the service
// can log why a response failed; they never cross the service boundary.
var (
	ErrTokenMalformed = errors.New("captcha: malformed token")
	ErrTokenExpired   = errors.New("captcha: token expired")
	ErrAnswerMismatch = errors.New("captcha: answer mismatch")
	ErrTokenReplayed  = errors.New("captcha: token already used")
)
