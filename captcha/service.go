package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Challenge is one generated text, image and token. Text is returned for
// tests and tooling; callers verifying user input only need Token.
type Challenge struct {
	Image     string    `json:"img"`
	MIMEType  string    `json:"mime"`
	Text      string    `json:"text"`
	Token     string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DataURI returns the image as a data: URI.
func (c *Challenge) DataURI() string {
	return "data:" + c.MIMEType + ";base64," + c.Image
}

// Service creates challenges and verifies responses. It keeps no record of
// open challenges; the token is the only record. The replay guard is the
// only shared mutable state.
type Service struct {
	cfg      Config
	pool     []rune
	altPool  []rune
	altErr   error
	codec    *TokenCodec
	renderer *Renderer
	guard    ReplayGuard
	logger   *zap.Logger
}

// Option customizes a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger *zap.Logger
	guard  ReplayGuard
	now    func() time.Time
}

// WithLogger sets the logger used for server-side failure reasons.
func WithLogger(l *zap.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// WithReplayGuard overrides the guard selected by REPLAY_GUARD.
func WithReplayGuard(g ReplayGuard) Option {
	return func(o *serviceOptions) { o.guard = g }
}

// WithClock replaces time.Now for token issue, expiry checks and the
// built-in memory guard.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// New validates cfg and builds everything a challenge needs, so that
// configuration errors surface here rather than on the first request.
func New(cfg Config, opts ...Option) (*Service, error) {
	o := serviceOptions{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := BuildPool(cfg, cfg.IncludeDigits)
	if err != nil {
		return nil, err
	}
	altPool, altErr := BuildPool(cfg, !cfg.IncludeDigits)

	codec, err := NewTokenCodec(cfg.SecretKey, cfg.HashIterations)
	if err != nil {
		return nil, err
	}
	codec.now = o.now

	renderer, err := NewRenderer(cfg)
	if err != nil {
		return nil, err
	}

	guard := o.guard
	if guard == nil {
		switch cfg.ReplayGuard {
		case ReplayGuardMemory:
			mg := NewMemoryReplayGuard(cfg.ReplayGuardMaxEntries)
			mg.now = o.now
			guard = mg
		case ReplayGuardOff:
			guard = noReplayGuard{}
		default:
			return nil, fmt.Errorf("%w: REPLAY_GUARD=%s needs a guard passed with WithReplayGuard", ErrInvalidConfig, cfg.ReplayGuard)
		}
	}

	return &Service{
		cfg:      cfg,
		pool:     pool,
		altPool:  altPool,
		altErr:   altErr,
		codec:    codec,
		renderer: renderer,
		guard:    guard,
		logger:   o.logger,
	}, nil
}

// Config returns a copy of the configuration the service was built with.
func (s *Service) Config() Config {
	cfg := s.cfg
	cfg.FontSelection = append([]string(nil), s.cfg.FontSelection...)
	return cfg
}

// Pool returns a copy of the configured character pool.
func (s *Service) Pool() []rune { return append([]rune(nil), s.pool...) }

// Renderer returns the image renderer.
func (s *Service) Renderer() *Renderer { return s.renderer }

// CreateOption adjusts a single Create call.
type CreateOption func(*createOptions)

type createOptions struct {
	length    int
	digits    bool
	hasLength bool
	hasDigits bool
}

// WithLength overrides TEXT_LENGTH for one challenge.
func WithLength(n int) CreateOption {
	return func(o *createOptions) { o.length, o.hasLength = n, true }
}

// WithDigits overrides INCLUDE_DIGITS for one challenge.
func WithDigits(include bool) CreateOption {
	return func(o *createOptions) { o.digits, o.hasDigits = include, true }
}

// Create generates a challenge.
func (s *Service) Create(opts ...CreateOption) (*Challenge, error) {
	o := createOptions{length: s.cfg.TextLength, digits: s.cfg.IncludeDigits}
	for _, opt := range opts {
		opt(&o)
	}

	pool := s.pool
	if o.digits != s.cfg.IncludeDigits {
		if s.altErr != nil {
			return nil, s.altErr
		}
		pool = s.altPool
	}

	text, err := GenerateText(o.length, pool)
	if err != nil {
		return nil, err
	}
	if s.cfg.OnlyUppercase {
		text = strings.ToUpper(text)
	}

	img, err := s.renderer.RenderBase64(text)
	if err != nil {
		return nil, err
	}

	token, err := s.codec.Issue(text, s.cfg.Expire)
	if err != nil {
		return nil, err
	}

	return &Challenge{
		Image:     img,
		MIMEType:  s.renderer.Format().MIMEType(),
		Text:      text,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	}, nil
}

// Verify is VerifyContext with a background context.
func (s *Service) Verify(a, b string) bool {
	return s.VerifyContext(context.Background(), a, b)
}

// VerifyContext reports whether the answer matches the token. The arguments
// may come in either order: whichever one has the shape of a token is used
// as the token. Wrong, expired, tampered, replayed and malformed input all
// yield false.
func (s *Service) VerifyContext(ctx context.Context, a, b string) bool {
	text, token := a, b
	if LooksLikeToken(a) && !LooksLikeToken(b) {
		text, token = b, a
	}

	claims, err := s.codec.RedeemClaims(token, s.normalize(text))
	if err != nil {
		s.logger.Debug("captcha rejected", zap.Error(err))
		return false
	}

	ok, err := s.guard.Consume(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		s.logger.Warn("captcha replay guard failed", zap.String("jti", claims.ID), zap.Error(err))
		return false
	}
	if !ok {
		s.logger.Debug("captcha rejected", zap.String("jti", claims.ID), zap.Error(ErrTokenReplayed))
		return false
	}
	return true
}

func (s *Service) normalize(text string) string {
	text = strings.TrimSpace(text)
	if s.cfg.OnlyUppercase {
		text = strings.ToUpper(text)
	}
	return text
}

// IsConfigError reports whether err is one of the configuration errors.
func IsConfigError(err error) bool {
	for _, target := range []error{
		ErrMissingSecret, ErrInvalidLength, ErrEmptyPool,
		ErrUnknownFont, ErrUnsupportedFormat, ErrInvalidConfig,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
