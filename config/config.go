package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cppla/simplecaptcha/captcha"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when Load is called without a path.
const DefaultPath = "config/config.json"

// AppConfig holds file and environment driven configuration values.
// The secret has no default and must come from the file or the environment.
type AppConfig struct {
	AppPort            string
	AllowedOrigins     []string
	RateLimitPerMinute int
	// ExposeText adds the plaintext answer to API responses. Test setups only.
	ExposeText bool
	NoticeHTML string
	// Gin framework configuration
	GinMode string
	GinPath string
	// Redis backs the shared replay guard
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Database is optional; challenge stats are kept only when it is set
	DatabaseURI string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Captcha holds the core keys (SECRET_KEY, TEXT_LENGTH, ...) by name.
	Captcha map[string]string
}

// Load reads path (JSON, or YAML by extension), fills defaults and applies
// environment overrides.
// Precedence: config file -> defaults -> environment variable overrides
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	if path == "" {
		path = DefaultPath
	}
	if err := loadFile(path, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config: %s: %w", path, err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.Captcha[captcha.KeySecretKey] == "" {
		return AppConfig{}, errors.New("config: SECRET_KEY must be set in the captcha section or the environment")
	}
	return cfg, nil
}

// CaptchaConfig builds the core configuration from the captcha section.
func (c AppConfig) CaptchaConfig() (captcha.Config, error) {
	return captcha.ConfigFromMap(c.Captcha)
}

// RedisConfigured reports whether a redis host was given.
func (c AppConfig) RedisConfigured() bool {
	return c.RedisHost != ""
}

// RedisAddr returns host:port for the redis client.
func (c AppConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// DatabaseConfigured reports whether stats should be persisted.
func (c AppConfig) DatabaseConfigured() bool {
	return c.DatabaseURI != "" || c.DBHost != ""
}

// DSN returns the MySQL DSN, preferring DatabaseURI.
func (c AppConfig) DSN() string {
	if c.DatabaseURI != "" {
		return c.DatabaseURI
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// loadFile reads the config file into out if present. A missing file is not
// an error; a malformed one is.
func loadFile(path string, out *AppConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return err
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "Port")
		out.GinMode = getString(app, "GinMode")
		out.GinPath = getString(app, "GinPath")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.ExposeText = getBool(app, "ExposeText")
		out.NoticeHTML = getString(app, "NoticeHTML")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisHost = getString(rds, "Host")
		out.RedisPort = getInt(rds, "Port")
		out.RedisDB = getInt(rds, "DB")
		out.RedisPassword = getString(rds, "Password")
	}

	if dbs, ok := raw["database"].(map[string]any); ok {
		out.DatabaseURI = getString(dbs, "URI")
		out.DBHost = getString(dbs, "Host")
		out.DBPort = getString(dbs, "Port")
		out.DBUser = getString(dbs, "User")
		out.DBPassword = getString(dbs, "Password")
		out.DBName = getString(dbs, "Name")
	}

	if cp, ok := raw["captcha"].(map[string]any); ok {
		out.Captcha = make(map[string]string, len(cp))
		for k, v := range cp {
			out.Captcha[strings.ToUpper(k)] = scalarString(v)
		}
	}
	return nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		return scalarString(v)
	}
	return ""
}

// getInt accepts JSON numbers (float64), YAML ints and numeric strings.
func getInt(m map[string]any, key string) int {
	switch t := m[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		i, _ := strconv.Atoi(t)
		return i
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	switch t := m[key].(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

func getStringSlice(m map[string]any, key string) []string {
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	res := make([]string, 0, len(arr))
	for _, it := range arr {
		if s, ok := it.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

// scalarString renders a decoded scalar the way the env would carry it.
// Lists become comma separated (FONT_SELECTION).
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(t))
		for _, it := range t {
			parts = append(parts, scalarString(it))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(t)
	}
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.DBPort == "" {
		c.DBPort = "3306"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogPath == "" {
		c.LogPath = "logs/app.log"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.Captcha == nil {
		c.Captcha = map[string]string{}
	}
}

// applyEnvOverrides lets deployment environments override file values.
func applyEnvOverrides(c *AppConfig) {
	c.AppPort = getEnv("APP_PORT", c.AppPort)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.GinPath = getEnv("GIN_PATH", c.GinPath)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitCSV(v)
	}
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.ExposeText = getEnvBool("CAPTCHA_EXPOSE_TEXT", c.ExposeText)
	c.NoticeHTML = getEnv("NOTICE_HTML", c.NoticeHTML)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogPath = getEnv("LOG_PATH", c.LogPath)
	c.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", c.LogMaxSizeMB)
	c.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", c.LogMaxBackups)
	c.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", c.LogMaxAgeDays)
	c.LogCompress = getEnvBool("LOG_COMPRESS", c.LogCompress)

	c.RedisHost = getEnv("REDIS_HOST", c.RedisHost)
	c.RedisPort = getEnvInt("REDIS_PORT", c.RedisPort)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)

	c.DatabaseURI = getEnv("DATABASE_URI", c.DatabaseURI)
	c.DBHost = getEnv("DB_HOST", c.DBHost)
	c.DBPort = getEnv("DB_PORT", c.DBPort)
	c.DBUser = getEnv("DB_USER", c.DBUser)
	c.DBPassword = getEnv("DB_PASSWORD", c.DBPassword)
	c.DBName = getEnv("DB_NAME", c.DBName)

	for _, key := range captcha.Keys {
		if v := os.Getenv(key); v != "" {
			c.Captcha[key] = v
		}
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
