package contact

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nazarhussain/portfolio-contact/env"
)

/*
CONFIG (environment first, optional YAML file underneath):
  CONFIG_PATH               optional YAML file, ${VAR} references expanded
  LISTEN_ADDR               default ":3000"
  APP_ENV                   "development" allows every origin
  ALLOWED_ORIGINS           "https://a.com,https://b.com" (exact match)
  TEST_MODE                 log would-be sends instead of delivering
  MAIL_TRANSPORT            "smtp" (default) or "resend"
  EMAIL_SMTP_HOST           default "smtp.protonmail.ch"
  EMAIL_SMTP_PORT           default 587 (STARTTLS)
  EMAIL_SMTP_SSL            implicit TLS, default false
  EMAIL_SMTP_USER           required*, also the From address
  EMAIL_SMTP_PASSWORD       required* for smtp
  EMAIL_FROM_ADDRESS        overrides the From address
  EMAIL_FROM_NAME           default "Contact Form"
  RESEND_API_KEY            required* for resend
  RECIPIENT_EMAIL_ADDRESS   required*
  RATE_LIMIT_MAX            default 5
  RATE_LIMIT_WINDOW         default 15m
  RATE_LIMIT_REDIS_URL      share the window across instances
  GLOBAL_RATE_RPS           default 5, 0 disables
  GLOBAL_RATE_BURST         default 20
  MAX_BODY_KB               default 64

  (*) not required with TEST_MODE=true
*/

const (
	TransportSMTP   = "smtp"
	TransportResend = "resend"
)

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	SSL  bool
}

type Config struct {
	ListenAddr     string
	Development    bool
	AllowedOrigins []string
	TestMode       bool

	Transport    string
	SMTP         SMTPConfig
	ResendAPIKey string
	FromName     string
	FromAddr     string
	Recipient    string

	RateMax      int
	RateWindow   time.Duration
	RateRedisURL string
	GlobalRPS    float64
	GlobalBurst  int

	MaxBodyKB int
}

// fileConfig mirrors the optional YAML file.
type fileConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	TestMode       *bool    `yaml:"test_mode"`
	MaxBodyKB      int      `yaml:"max_body_kb"`
	Mail           struct {
		Transport    string `yaml:"transport"`
		FromName     string `yaml:"from_name"`
		FromAddress  string `yaml:"from_address"`
		Recipient    string `yaml:"recipient"`
		ResendAPIKey string `yaml:"resend_api_key"`
		SMTP         struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			SSL      *bool  `yaml:"ssl"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
		} `yaml:"smtp"`
	} `yaml:"mail"`
	RateLimit struct {
		Max         int     `yaml:"max"`
		Window      string  `yaml:"window"`
		RedisURL    string  `yaml:"redis_url"`
		GlobalRPS   float64 `yaml:"global_rps"`
		GlobalBurst int     `yaml:"global_burst"`
	} `yaml:"rate_limit"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddr: ":3000",
		Transport:  TransportSMTP,
		SMTP: SMTPConfig{
			Host: "smtp.protonmail.ch",
			Port: 587,
		},
		FromName:    "Contact Form",
		RateMax:     5,
		RateWindow:  15 * time.Minute,
		GlobalRPS:   5,
		GlobalBurst: 20,
		MaxBodyKB:   64,
	}
}

// LoadConfig builds the configuration from CONFIG_PATH (if set) and the
// environment. Missing transport settings are a startup failure unless
// TEST_MODE is on.
func LoadConfig() (*Config, error) {
	c := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		if err := c.applyFile(path); err != nil {
			return nil, err
		}
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error

	c.ListenAddr = env.Env("LISTEN_ADDR", c.ListenAddr)
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Development = strings.EqualFold(v, "development")
	}
	if origins := env.EnvList("ALLOWED_ORIGINS"); origins != nil {
		c.AllowedOrigins = origins
	}
	c.TestMode, err = env.EnvBool("TEST_MODE", c.TestMode)
	collect(err)

	c.Transport = strings.ToLower(env.Env("MAIL_TRANSPORT", c.Transport))
	c.SMTP.Host = env.Env("EMAIL_SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port, err = env.EnvInt("EMAIL_SMTP_PORT", c.SMTP.Port)
	collect(err)
	c.SMTP.SSL, err = env.EnvBool("EMAIL_SMTP_SSL", c.SMTP.SSL)
	collect(err)
	c.SMTP.User = env.Env("EMAIL_SMTP_USER", c.SMTP.User)
	c.SMTP.Pass = env.Env("EMAIL_SMTP_PASSWORD", c.SMTP.Pass)
	c.ResendAPIKey = env.Env("RESEND_API_KEY", c.ResendAPIKey)
	c.FromName = env.Env("EMAIL_FROM_NAME", c.FromName)
	c.FromAddr = env.Env("EMAIL_FROM_ADDRESS", c.FromAddr)
	if c.FromAddr == "" {
		c.FromAddr = c.SMTP.User
	}
	c.Recipient = env.Env("RECIPIENT_EMAIL_ADDRESS", c.Recipient)

	c.RateMax, err = env.EnvInt("RATE_LIMIT_MAX", c.RateMax)
	collect(err)
	c.RateWindow, err = env.EnvDuration("RATE_LIMIT_WINDOW", c.RateWindow)
	collect(err)
	c.RateRedisURL = env.Env("RATE_LIMIT_REDIS_URL", c.RateRedisURL)
	c.GlobalRPS, err = env.EnvFloat("GLOBAL_RATE_RPS", c.GlobalRPS)
	collect(err)
	c.GlobalBurst, err = env.EnvInt("GLOBAL_RATE_BURST", c.GlobalBurst)
	collect(err)
	c.MaxBodyKB, err = env.EnvInt("MAX_BODY_KB", c.MaxBodyKB)
	collect(err)

	collect(c.validate())
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var f fileConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
		return fmt.Errorf("parse config YAML: %w", err)
	}

	c.ListenAddr = firstNonEmpty(f.ListenAddr, c.ListenAddr)
	if f.Environment != "" {
		c.Development = strings.EqualFold(f.Environment, "development")
	}
	if len(f.AllowedOrigins) > 0 {
		c.AllowedOrigins = f.AllowedOrigins
	}
	if f.TestMode != nil {
		c.TestMode = *f.TestMode
	}
	if f.MaxBodyKB > 0 {
		c.MaxBodyKB = f.MaxBodyKB
	}

	m := f.Mail
	c.Transport = firstNonEmpty(m.Transport, c.Transport)
	c.FromName = firstNonEmpty(m.FromName, c.FromName)
	c.FromAddr = firstNonEmpty(m.FromAddress, c.FromAddr)
	c.Recipient = firstNonEmpty(m.Recipient, c.Recipient)
	c.ResendAPIKey = firstNonEmpty(m.ResendAPIKey, c.ResendAPIKey)
	c.SMTP.Host = firstNonEmpty(m.SMTP.Host, c.SMTP.Host)
	if m.SMTP.Port > 0 {
		c.SMTP.Port = m.SMTP.Port
	}
	if m.SMTP.SSL != nil {
		c.SMTP.SSL = *m.SMTP.SSL
	}
	c.SMTP.User = firstNonEmpty(m.SMTP.User, c.SMTP.User)
	c.SMTP.Pass = firstNonEmpty(m.SMTP.Password, c.SMTP.Pass)

	rl := f.RateLimit
	if rl.Max > 0 {
		c.RateMax = rl.Max
	}
	if rl.Window != "" {
		d, err := time.ParseDuration(rl.Window)
		if err != nil {
			return fmt.Errorf("parse rate_limit.window %q: %w", rl.Window, err)
		}
		c.RateWindow = d
	}
	c.RateRedisURL = firstNonEmpty(rl.RedisURL, c.RateRedisURL)
	if rl.GlobalRPS > 0 {
		c.GlobalRPS = rl.GlobalRPS
	}
	if rl.GlobalBurst > 0 {
		c.GlobalBurst = rl.GlobalBurst
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.RateMax <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be > 0"))
	}
	if c.RateWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.GlobalRPS < 0 || c.GlobalBurst < 0 {
		errs = append(errs, errors.New("GLOBAL_RATE_RPS and GLOBAL_RATE_BURST must be >= 0"))
	}
	if c.MaxBodyKB <= 0 {
		errs = append(errs, errors.New("MAX_BODY_KB must be > 0"))
	}

	switch c.Transport {
	case TransportSMTP, TransportResend:
	default:
		errs = append(errs, fmt.Errorf("MAIL_TRANSPORT must be %q or %q, got %q", TransportSMTP, TransportResend, c.Transport))
	}

	// Dry-run never touches the transport, so credentials are optional.
	if c.TestMode {
		return errors.Join(errs...)
	}

	if c.Recipient == "" {
		errs = append(errs, errors.New("missing env RECIPIENT_EMAIL_ADDRESS"))
	}
	if c.FromAddr == "" {
		errs = append(errs, errors.New("missing env EMAIL_SMTP_USER (or EMAIL_FROM_ADDRESS)"))
	}
	switch c.Transport {
	case TransportSMTP:
		if c.SMTP.User == "" {
			errs = append(errs, errors.New("missing env EMAIL_SMTP_USER"))
		}
		if c.SMTP.Pass == "" {
			errs = append(errs, errors.New("missing env EMAIL_SMTP_PASSWORD"))
		}
	case TransportResend:
		if c.ResendAPIKey == "" {
			errs = append(errs, errors.New("missing env RESEND_API_KEY"))
		}
	}
	return errors.Join(errs...)
}

// RetryAfterSeconds is the hint sent with a rate-limited response.
func (c *Config) RetryAfterSeconds() int {
	return int(c.RateWindow / time.Second)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
