// Package config loads the service configuration from YAML, .env files and SPAREHUB_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sparehub.org/internal/auth"
)

const envPrefix = "SPAREHUB_"

// Config is built once at startup and treated as read-only afterwards.
type Config struct {
	App struct {
		// development | staging | production
		Env  string `yaml:"env"`
		Addr string `yaml:"addr"`
	} `yaml:"app"`

	Server struct {
		CORSAllowedOrigins []string      `yaml:"cors_allowed_origins"`
		ReadTimeout        time.Duration `yaml:"read_timeout"`
		WriteTimeout       time.Duration `yaml:"write_timeout"`
		IdleTimeout        time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`

	Auth struct {
		Secret          string        `yaml:"secret"`
		Issuer          string        `yaml:"issuer"`
		Audience        string        `yaml:"audience"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
		ClockSkew       time.Duration `yaml:"clock_skew"`
		DefaultRole     string        `yaml:"default_role"`
		BcryptCost      int           `yaml:"bcrypt_cost"`
		HashConcurrency int           `yaml:"hash_concurrency"`
		ResetTTL        time.Duration `yaml:"reset_ttl"`
		ResetURL        string        `yaml:"reset_url"`
		JanitorSchedule string        `yaml:"janitor_schedule"`
	} `yaml:"auth"`

	// Empty DSN selects the in-memory store.
	Database struct {
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		MaxIdleConns    int           `yaml:"max_idle_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	} `yaml:"database"`

	Mail struct {
		Mode     string `yaml:"mode"` // log | smtp
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
		TLS      string `yaml:"tls"` // auto | ssl | none
	} `yaml:"mail"`
}

// LoadEnvFiles loads .env style files into the process environment. Missing files are skipped;
// variables already set win.
func LoadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads path (optional), applies defaults and env overrides, then validates.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.applyDefaults()
	if err := c.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "production"
	}
	if c.App.Addr == "" {
		c.App.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = time.Hour
	}
	if c.Auth.ClockSkew == 0 {
		c.Auth.ClockSkew = auth.DefaultClockSkew
	}
	if c.Auth.DefaultRole == "" {
		c.Auth.DefaultRole = auth.RoleUser
	}
	if c.Auth.HashConcurrency == 0 {
		c.Auth.HashConcurrency = 4
	}
	if c.Auth.ResetTTL == 0 {
		c.Auth.ResetTTL = auth.DefaultResetTTL
	}
	if c.Auth.ResetURL == "" {
		c.Auth.ResetURL = "http://localhost:8080/reset-password"
	}
	if c.Auth.JanitorSchedule == "" {
		c.Auth.JanitorSchedule = auth.DefaultJanitorSchedule
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Mail.Mode == "" {
		c.Mail.Mode = "log"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.TLS == "" {
		c.Mail.TLS = "auto"
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(envPrefix + key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return i, true, nil
}

func getEnvDur(key string) (time.Duration, bool, error) {
	s, ok := getEnvStr(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, true, nil
}

func getEnvCSV(key string) ([]string, bool) {
	s, ok := getEnvStr(key)
	if !ok {
		return nil, false
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, true
}

// applyEnvOverrides lets SPAREHUB_* variables win over the YAML file. Malformed numbers and
// durations are reported instead of silently ignored.
func (c *Config) applyEnvOverrides() error {
	strs := map[string]*string{
		"APP_ENV":               &c.App.Env,
		"APP_ADDR":              &c.App.Addr,
		"LOG_LEVEL":             &c.Log.Level,
		"LOG_FORMAT":            &c.Log.Format,
		"AUTH_SECRET":           &c.Auth.Secret,
		"AUTH_ISSUER":           &c.Auth.Issuer,
		"AUTH_AUDIENCE":         &c.Auth.Audience,
		"AUTH_DEFAULT_ROLE":     &c.Auth.DefaultRole,
		"AUTH_RESET_URL":        &c.Auth.ResetURL,
		"AUTH_JANITOR_SCHEDULE": &c.Auth.JanitorSchedule,
		"DATABASE_DSN":          &c.Database.DSN,
		"MAIL_MODE":             &c.Mail.Mode,
		"MAIL_HOST":             &c.Mail.Host,
		"MAIL_USERNAME":         &c.Mail.Username,
		"MAIL_PASSWORD":         &c.Mail.Password,
		"MAIL_FROM":             &c.Mail.From,
		"MAIL_TLS":              &c.Mail.TLS,
	}
	for key, dst := range strs {
		if v, ok := getEnvStr(key); ok {
			*dst = v
		}
	}
	c.App.Env = strings.ToLower(c.App.Env)

	ints := map[string]*int{
		"AUTH_BCRYPT_COST":        &c.Auth.BcryptCost,
		"AUTH_HASH_CONCURRENCY":   &c.Auth.HashConcurrency,
		"DATABASE_MAX_OPEN_CONNS": &c.Database.MaxOpenConns,
		"DATABASE_MAX_IDLE_CONNS": &c.Database.MaxIdleConns,
		"MAIL_PORT":               &c.Mail.Port,
	}
	for key, dst := range ints {
		v, ok, err := getEnvInt(key)
		if err != nil {
			return fmt.Errorf("%w: %v", auth.ErrMisconfigured, err)
		}
		if ok {
			*dst = v
		}
	}

	durs := map[string]*time.Duration{
		"AUTH_TOKEN_TTL":              &c.Auth.TokenTTL,
		"AUTH_CLOCK_SKEW":             &c.Auth.ClockSkew,
		"AUTH_RESET_TTL":              &c.Auth.ResetTTL,
		"DATABASE_CONN_MAX_LIFETIME":  &c.Database.ConnMaxLifetime,
		"DATABASE_CONN_MAX_IDLE_TIME": &c.Database.ConnMaxIdleTime,
		"SERVER_SHUTDOWN_TIMEOUT":     &c.Server.ShutdownTimeout,
	}
	for key, dst := range durs {
		v, ok, err := getEnvDur(key)
		if err != nil {
			return fmt.Errorf("%w: %v", auth.ErrMisconfigured, err)
		}
		if ok {
			*dst = v
		}
	}

	if v, ok := getEnvCSV("SERVER_CORS_ALLOWED_ORIGINS"); ok {
		c.Server.CORSAllowedOrigins = v
	}
	return nil
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var problems []string
	if len(c.Auth.Secret) < 32 {
		problems = append(problems, "auth.secret (at least 32 bytes)")
	}
	if strings.TrimSpace(c.Auth.Issuer) == "" {
		problems = append(problems, "auth.issuer")
	}
	if strings.TrimSpace(c.Auth.Audience) == "" {
		problems = append(problems, "auth.audience")
	}
	if c.Auth.TokenTTL < time.Minute || c.Auth.TokenTTL > 24*time.Hour {
		problems = append(problems, "auth.token_ttl (1m..24h)")
	}
	if c.Auth.ClockSkew < 0 {
		problems = append(problems, "auth.clock_skew")
	}
	if strings.TrimSpace(c.Auth.DefaultRole) == "" {
		problems = append(problems, "auth.default_role")
	}
	if c.Auth.ResetTTL <= 0 {
		problems = append(problems, "auth.reset_ttl")
	}
	if c.Auth.HashConcurrency < 1 {
		problems = append(problems, "auth.hash_concurrency")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		problems = append(problems, "log.format (json|text)")
	}
	switch c.Mail.Mode {
	case "log":
		if !c.IsDevelopment() {
			problems = append(problems, "mail.mode (log is development only, use smtp)")
		}
	case "smtp":
		if c.Mail.Host == "" {
			problems = append(problems, "mail.host")
		}
		if c.Mail.From == "" {
			problems = append(problems, "mail.from")
		}
	default:
		problems = append(problems, "mail.mode (log|smtp)")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: missing or invalid %s", auth.ErrMisconfigured, strings.Join(problems, ", "))
	}
	return nil
}

// IsDevelopment reports whether error details may be exposed to clients.
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development" || c.App.Env == "dev"
}

// TokenConfig derives the token service settings.
func (c *Config) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:    []byte(c.Auth.Secret),
		Issuer:    c.Auth.Issuer,
		Audience:  c.Auth.Audience,
		TTL:       c.Auth.TokenTTL,
		ClockSkew: c.Auth.ClockSkew,
	}
}
