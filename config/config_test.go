package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"app": {"Port": "9000", "AllowedOrigins": ["https://a.example"], "RateLimitPerMinute": 30, "ExposeText": true},
		"redis": {"Host": "cache", "Port": 6380, "DB": 2},
		"captcha": {"SECRET_KEY": "s3cret", "TEXT_LENGTH": 8, "include_digits": true, "FONT_SELECTION": ["gomono", "gobold"]}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.AppPort)
	assert.Equal(t, []string{"https://a.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.True(t, cfg.ExposeText)
	assert.Equal(t, "cache:6380", cfg.RedisAddr())
	assert.True(t, cfg.RedisConfigured())
	assert.Equal(t, 2, cfg.RedisDB)
	assert.False(t, cfg.DatabaseConfigured())

	cc, err := cfg.CaptchaConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cc.SecretKey)
	assert.Equal(t, 8, cc.TextLength)
	assert.True(t, cc.IncludeDigits)
	assert.Equal(t, []string{"gomono", "gobold"}, cc.FontSelection)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
app:
  Port: "7000"
log:
  Level: debug
database:
  Host: db
  User: captcha
  Password: pw
  Name: stats
captcha:
  SECRET_KEY: from-yaml
  EXPIRE_SECONDS: 30
  IMAGE_FORMAT: png
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.AppPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.DatabaseConfigured())
	assert.Equal(t, "captcha:pw@tcp(db:3306)/stats?charset=utf8mb4&parseTime=True&loc=Local", cfg.DSN())

	cc, err := cfg.CaptchaConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cc.Expire)
	assert.Equal(t, "image/png", cc.ImageFormat.MIMEType())
}

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("SECRET_KEY", "from-env")
	t.Setenv("TEXT_LENGTH", "4")
	t.Setenv("APP_PORT", "8181")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://x.example, https://y.example")
	t.Setenv("CAPTCHA_EXPOSE_TEXT", "true")
	t.Setenv("DATABASE_URI", "user:pw@tcp(h:3306)/d")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "8181", cfg.AppPort)
	assert.Equal(t, "release", cfg.GinMode)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.ExposeText)
	assert.Equal(t, "user:pw@tcp(h:3306)/d", cfg.DSN())

	cc, err := cfg.CaptchaConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cc.SecretKey)
	assert.Equal(t, 4, cc.TextLength)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"captcha": {"SECRET_KEY": "file", "TEXT_LENGTH": 8}}`)
	t.Setenv("TEXT_LENGTH", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "5", cfg.Captcha["TEXT_LENGTH"])
	assert.Equal(t, "file", cfg.Captcha["SECRET_KEY"])
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	path := writeFile(t, "config.json", `{"app": {"Port": "1"}}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	path := writeFile(t, "config.json", `{"app": `)
	_, err := Load(path)
	assert.Error(t, err)
}
