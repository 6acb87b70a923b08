package captcha

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recognized configuration keys.
const (
	KeySecretKey              = "SECRET_KEY"
	KeyTextLength             = "TEXT_LENGTH"
	KeyIncludeDigits          = "INCLUDE_DIGITS"
	KeyExcludeVisuallySimilar = "EXCLUDE_VISUALLY_SIMILAR"
	KeyOnlyUppercase          = "ONLY_UPPERCASE"
	KeyCharacterPool          = "CHARACTER_POOL"
	KeyExpireSeconds          = "EXPIRE_SECONDS"
	KeyExpireMinutes          = "EXPIRE_MINUTES"
	KeyImageFormat            = "IMAGE_FORMAT"
	KeyJPEGQuality            = "JPEG_QUALITY"
	KeyFontSelection          = "FONT_SELECTION"
	KeyTextFontSize           = "TEXT_FONT_SIZE"
	KeyVaryFontSize           = "VARY_FONT_SIZE"
	KeyVaryFontRange          = "VARY_FONT_RANGE"
	KeyNoiseDensity           = "NOISE_DENSITY"
	KeyImageWidth             = "IMAGE_WIDTH"
	KeyImageHeight            = "IMAGE_HEIGHT"
	KeyReplayGuard            = "REPLAY_GUARD"
	KeyReplayGuardMaxEntries  = "REPLAY_GUARD_MAX_ENTRIES"
	KeyHashIterations         = "HASH_ITERATIONS"
)

// Keys lists every key ConfigFromMap understands.
var Keys = []string{
	KeySecretKey, KeyTextLength, KeyIncludeDigits, KeyExcludeVisuallySimilar,
	KeyOnlyUppercase, KeyCharacterPool, KeyExpireSeconds, KeyExpireMinutes,
	KeyImageFormat, KeyJPEGQuality, KeyFontSelection, KeyTextFontSize,
	KeyVaryFontSize, KeyVaryFontRange, KeyNoiseDensity, KeyImageWidth,
	KeyImageHeight, KeyReplayGuard, KeyReplayGuardMaxEntries, KeyHashIterations,
}

// ImageFormat is the raster encoding of a challenge image.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "PNG"
	FormatJPEG ImageFormat = "JPEG"
)

// MIMEType returns the declared content type for the format.
func (f ImageFormat) MIMEType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// Replay guard backends.
const (
	ReplayGuardMemory = "memory"
	ReplayGuardRedis  = "redis"
	ReplayGuardOff    = "off"
)

// Config is the immutable per-service configuration. Build it with
// DefaultConfig or ConfigFromMap and hand it to New by value.
type Config struct {
	SecretKey              string
	TextLength             int
	IncludeDigits          bool
	ExcludeVisuallySimilar bool
	OnlyUppercase          bool
	CharacterPool          string
	Expire                 time.Duration
	ImageFormat            ImageFormat
	JPEGQuality            int
	FontSelection          []string
	TextFontSize           int
	VaryFontSize           bool
	VaryFontRange          int
	NoiseDensity           int
	ImageWidth             int
	ImageHeight            int
	ReplayGuard            string
	ReplayGuardMaxEntries  int
	HashIterations         int
}

// DefaultConfig returns the defaults. SecretKey is intentionally empty.
func DefaultConfig() Config {
	return Config{
		TextLength:             6,
		IncludeDigits:          false,
		ExcludeVisuallySimilar: true,
		OnlyUppercase:          true,
		Expire:                 600 * time.Second,
		ImageFormat:            FormatJPEG,
		JPEGQuality:            85,
		FontSelection:          []string{"goregular"},
		TextFontSize:           30,
		VaryFontSize:           true,
		VaryFontRange:          2,
		NoiseDensity:           6,
		ImageWidth:             200,
		ImageHeight:            60,
		ReplayGuard:            ReplayGuardMemory,
		ReplayGuardMaxEntries:  100000,
		HashIterations:         20000,
	}
}

// ConfigFromMap merges overrides over DefaultConfig. Unknown keys are
// ignored; a value that does not parse is reported with ErrInvalidConfig.
func ConfigFromMap(overrides map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.apply(overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// With returns a copy of c with overrides applied.
func (c Config) With(overrides map[string]string) (Config, error) {
	out := c
	out.FontSelection = append([]string(nil), c.FontSelection...)
	if err := out.apply(overrides); err != nil {
		return Config{}, err
	}
	return out, nil
}

func (c *Config) apply(m map[string]string) error {
	var err error
	for key, raw := range m {
		v := strings.TrimSpace(raw)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case KeySecretKey:
			c.SecretKey = raw
		case KeyTextLength:
			c.TextLength, err = parseInt(key, v)
		case KeyIncludeDigits:
			c.IncludeDigits, err = parseBool(key, v)
		case KeyExcludeVisuallySimilar:
			c.ExcludeVisuallySimilar, err = parseBool(key, v)
		case KeyOnlyUppercase:
			c.OnlyUppercase, err = parseBool(key, v)
		case KeyCharacterPool:
			c.CharacterPool = raw
		case KeyExpireSeconds:
			var n int
			n, err = parseInt(key, v)
			c.Expire = time.Duration(n) * time.Second
		case KeyExpireMinutes:
			// legacy alias, loses to EXPIRE_SECONDS
			if _, ok := lookupKey(m, KeyExpireSeconds); ok {
				continue
			}
			var n int
			n, err = parseInt(key, v)
			c.Expire = time.Duration(n) * time.Minute
		case KeyImageFormat:
			c.ImageFormat, err = ParseImageFormat(v)
		case KeyJPEGQuality:
			c.JPEGQuality, err = parseInt(key, v)
		case KeyFontSelection:
			c.FontSelection = splitList(v)
		case KeyTextFontSize:
			c.TextFontSize, err = parseInt(key, v)
		case KeyVaryFontSize:
			c.VaryFontSize, err = parseBool(key, v)
		case KeyVaryFontRange:
			c.VaryFontRange, err = parseInt(key, v)
		case KeyNoiseDensity:
			c.NoiseDensity, err = parseInt(key, v)
		case KeyImageWidth:
			c.ImageWidth, err = parseInt(key, v)
		case KeyImageHeight:
			c.ImageHeight, err = parseInt(key, v)
		case KeyReplayGuard:
			c.ReplayGuard = strings.ToLower(v)
		case KeyReplayGuardMaxEntries:
			c.ReplayGuardMaxEntries, err = parseInt(key, v)
		case KeyHashIterations:
			c.HashIterations, err = parseInt(key, v)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first configuration error, if any.
func (c Config) Validate() error {
	if c.SecretKey == "" {
		return ErrMissingSecret
	}
	if c.TextLength <= 0 {
		return fmt.Errorf("%w: TEXT_LENGTH=%d", ErrInvalidLength, c.TextLength)
	}
	if c.ImageFormat != FormatPNG && c.ImageFormat != FormatJPEG {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.ImageFormat)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("%w: JPEG_QUALITY=%d", ErrInvalidConfig, c.JPEGQuality)
	}
	if c.TextFontSize <= 0 || c.VaryFontRange < 0 || c.VaryFontRange >= c.TextFontSize {
		return fmt.Errorf("%w: font size %d +/- %d", ErrInvalidConfig, c.TextFontSize, c.VaryFontRange)
	}
	if c.NoiseDensity < 0 {
		return fmt.Errorf("%w: NOISE_DENSITY=%d", ErrInvalidConfig, c.NoiseDensity)
	}
	if c.ImageWidth <= 0 || c.ImageHeight <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidConfig, c.ImageWidth, c.ImageHeight)
	}
	switch c.ReplayGuard {
	case ReplayGuardMemory, ReplayGuardRedis, ReplayGuardOff:
	default:
		return fmt.Errorf("%w: REPLAY_GUARD=%q", ErrInvalidConfig, c.ReplayGuard)
	}
	if c.ReplayGuardMaxEntries <= 0 {
		return fmt.Errorf("%w: REPLAY_GUARD_MAX_ENTRIES=%d", ErrInvalidConfig, c.ReplayGuardMaxEntries)
	}
	if c.HashIterations <= 0 {
		return fmt.Errorf("%w: HASH_ITERATIONS=%d", ErrInvalidConfig, c.HashIterations)
	}
	return nil
}

// ParseImageFormat accepts PNG or JPEG (also JPG) in any case.
func ParseImageFormat(s string) (ImageFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PNG":
		return FormatPNG, nil
	case "JPEG", "JPG":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func lookupKey(m map[string]string, want string) (string, bool) {
	for k, v := range m {
		if strings.EqualFold(strings.TrimSpace(k), want) {
			return v, true
		}
	}
	return "", false
}

func parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	return n, nil
}

func parseBool(key, v string) (bool, error) {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
