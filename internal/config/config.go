// Package config loads server configuration.
//
// LAYERING:
// Values are resolved in three passes, each overriding the last:
//  1. Defaults (Default)
//  2. An optional YAML file named by CONFIG_FILE
//  3. Environment variables
//
// Load runs all three and then Validate, so a *Config that comes out of
// Load is always usable.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// MinSecretLength matches the OAuth state signer's requirement.
const MinSecretLength = 32

type Config struct {
	Port          int    `yaml:"port"`
	Env           string `yaml:"env"`
	FrontendURL   string `yaml:"frontend_url"`
	SessionSecret string `yaml:"session_secret"`
	BcryptCost    int    `yaml:"bcrypt_cost"`
	// EnumerationDelay pads the "no such account" branch of forgot-password.
	EnumerationDelay time.Duration `yaml:"enumeration_delay"`

	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Session   SessionConfig   `yaml:"session"`
	Tokens    TokenConfig     `yaml:"tokens"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"` // sqlite
	URL    string `yaml:"url"`  // postgres DSN
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	IdleTTL     time.Duration `yaml:"idle_ttl"`
	RememberTTL time.Duration `yaml:"remember_ttl"`
	AbsoluteTTL time.Duration `yaml:"absolute_ttl"`
}

type TokenConfig struct {
	VerificationTTL time.Duration `yaml:"verification_ttl"`
	ResetTTL        time.Duration `yaml:"reset_ttl"`
}

type OAuthConfig struct {
	Google   ProviderConfig `yaml:"google"`
	LinkedIn ProviderConfig `yaml:"linkedin"`
	GitHub   ProviderConfig `yaml:"github"`
}

type ProviderConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// Enabled reports whether both credentials are present.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled is false in development setups with no relay; mail is logged instead.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// RateLimit allows Requests per Window.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

func (r RateLimit) String() string {
	return fmt.Sprintf("%d/%s", r.Requests, r.Window)
}

type RateLimitConfig struct {
	General   RateLimit `yaml:"general"`
	Signup    RateLimit `yaml:"signup"`
	Sensitive RateLimit `yaml:"sensitive"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Port:             8080,
		Env:              EnvDevelopment,
		FrontendURL:      "http://localhost:5173",
		BcryptCost:       13,
		EnumerationDelay: 100 * time.Millisecond,
		DB: DBConfig{
			Driver: DriverSQLite,
			Path:   "data/maxedcv.db",
		},
		Redis: RedisConfig{URL: "redis://localhost:6379/0"},
		Session: SessionConfig{
			MaxSessions: 3,
			IdleTTL:     24 * time.Hour,
			RememberTTL: 7 * 24 * time.Hour,
			AbsoluteTTL: 7 * 24 * time.Hour,
		},
		Tokens: TokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "Maxed CV <noreply@maxed.cv>",
		},
		RateLimit: RateLimitConfig{
			General:   RateLimit{Requests: 100, Window: time.Minute},
			Signup:    RateLimit{Requests: 3, Window: time.Minute},
			Sensitive: RateLimit{Requests: 1, Window: 5 * time.Minute},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration from defaults, CONFIG_FILE and the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	cfg.fillCallbackURLs()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envParser collects the first parse error so loadEnv reads as a flat list.
type envParser struct {
	err error
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func (p *envParser) integer(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, v, err)
		return
	}
	*dst = n
}

func (p *envParser) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, v, err)
		return
	}
	*dst = d
}

func (p *envParser) rateLimit(key string, dst *RateLimit) {
	v, ok := os.LookupEnv(key)
	if !ok || p.err != nil {
		return
	}
	rl, err := ParseRateLimit(v)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
		return
	}
	*dst = rl
}

func (c *Config) loadEnv() error {
	var p envParser

	p.integer("PORT", &c.Port)
	p.str("ENV", &c.Env)
	p.str("FRONTEND_URL", &c.FrontendURL)
	p.str("SESSION_SECRET", &c.SessionSecret)
	p.integer("BCRYPT_COST", &c.BcryptCost)
	p.duration("ENUMERATION_DELAY", &c.EnumerationDelay)

	p.str("DB_DRIVER", &c.DB.Driver)
	p.str("DB_PATH", &c.DB.Path)
	p.str("DATABASE_URL", &c.DB.URL)
	p.str("REDIS_URL", &c.Redis.URL)

	p.integer("MAX_SESSIONS", &c.Session.MaxSessions)
	p.duration("SESSION_IDLE_TTL", &c.Session.IdleTTL)
	p.duration("SESSION_REMEMBER_TTL", &c.Session.RememberTTL)
	p.duration("SESSION_ABSOLUTE_TTL", &c.Session.AbsoluteTTL)
	p.duration("VERIFICATION_TOKEN_TTL", &c.Tokens.VerificationTTL)
	p.duration("RESET_TOKEN_TTL", &c.Tokens.ResetTTL)

	p.str("GOOGLE_CLIENT_ID", &c.OAuth.Google.ClientID)
	p.str("GOOGLE_CLIENT_SECRET", &c.OAuth.Google.ClientSecret)
	p.str("GOOGLE_CALLBACK_URL", &c.OAuth.Google.CallbackURL)
	p.str("LINKEDIN_CLIENT_ID", &c.OAuth.LinkedIn.ClientID)
	p.str("LINKEDIN_CLIENT_SECRET", &c.OAuth.LinkedIn.ClientSecret)
	p.str("LINKEDIN_CALLBACK_URL", &c.OAuth.LinkedIn.CallbackURL)
	p.str("GITHUB_CLIENT_ID", &c.OAuth.GitHub.ClientID)
	p.str("GITHUB_CLIENT_SECRET", &c.OAuth.GitHub.ClientSecret)
	p.str("GITHUB_CALLBACK_URL", &c.OAuth.GitHub.CallbackURL)

	p.str("SMTP_HOST", &c.SMTP.Host)
	p.integer("SMTP_PORT", &c.SMTP.Port)
	p.str("SMTP_USER", &c.SMTP.Username)
	p.str("SMTP_PASSWORD", &c.SMTP.Password)
	p.str("EMAIL_FROM", &c.SMTP.From)

	p.rateLimit("RATE_LIMIT_GENERAL", &c.RateLimit.General)
	p.rateLimit("RATE_LIMIT_SIGNUP", &c.RateLimit.Signup)
	p.rateLimit("RATE_LIMIT_SENSITIVE", &c.RateLimit.Sensitive)

	p.str("LOG_LEVEL", &c.Log.Level)
	p.str("LOG_FORMAT", &c.Log.Format)

	return p.err
}

// fillCallbackURLs points unset callbacks at this server.
func (c *Config) fillCallbackURLs() {
	for name, p := range map[string]*ProviderConfig{
		"google":   &c.OAuth.Google,
		"linkedin": &c.OAuth.LinkedIn,
		"github":   &c.OAuth.GitHub,
	} {
		if p.CallbackURL == "" {
			p.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/%s/callback", c.Port, name)
		}
	}
}

// ParseRateLimit reads "N/window", e.g. "100/1m" or "1/5m".
func ParseRateLimit(s string) (RateLimit, error) {
	count, window, ok := strings.Cut(s, "/")
	if !ok {
		return RateLimit{}, fmt.Errorf("rate limit %q: want N/window", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil {
		return RateLimit{}, fmt.Errorf("rate limit %q: %w", s, err)
	}
	d, err := time.ParseDuration(strings.TrimSpace(window))
	if err != nil {
		return RateLimit{}, fmt.Errorf("rate limit %q: %w", s, err)
	}
	return RateLimit{Requests: n, Window: d}, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("unknown env %q", c.Env))
	}
	if len(c.SessionSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("bcrypt cost %d outside [%d, %d]", c.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.EnumerationDelay < 0 {
		errs = append(errs, errors.New("enumeration delay must not be negative"))
	}

	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.DB.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown db driver %q", c.DB.Driver))
	}
	if c.Redis.URL == "" {
		errs = append(errs, errors.New("REDIS_URL is required"))
	}

	if c.Session.MaxSessions < 1 {
		errs = append(errs, fmt.Errorf("max sessions must be at least 1, got %d", c.Session.MaxSessions))
	}
	for name, d := range map[string]time.Duration{
		"session idle ttl":       c.Session.IdleTTL,
		"session remember ttl":   c.Session.RememberTTL,
		"session absolute ttl":   c.Session.AbsoluteTTL,
		"verification token ttl": c.Tokens.VerificationTTL,
		"reset token ttl":        c.Tokens.ResetTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	for name, rl := range map[string]RateLimit{
		"general":   c.RateLimit.General,
		"signup":    c.RateLimit.Signup,
		"sensitive": c.RateLimit.Sensitive,
	} {
		if rl.Requests < 1 || rl.Window <= 0 {
			errs = append(errs, fmt.Errorf("%s rate limit %s is invalid", name, rl))
		}
	}

	if c.SMTP.Enabled() && (c.SMTP.Port <= 0 || c.SMTP.From == "") {
		errs = append(errs, errors.New("SMTP_PORT and EMAIL_FROM are required when SMTP_HOST is set"))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// IsProduction drives the cookie Secure flag.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// LogLevel parses Log.Level ("debug", "info", "warn", "error").
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return level, nil
}
