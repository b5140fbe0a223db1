package core

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Credentials holds API authentication credentials for an exchange.
// They are never logged; String masks every field.
type Credentials struct {
	// APIKey is the public API key identifier.
	APIKey string `json:"api_key" yaml:"api_key"`
	// SecretKey is the private API key used for signing requests.
	SecretKey string `json:"secret_key" yaml:"secret_key"`
	// UserID is the account identifier some venues mix into the signature (Cex).
	UserID string `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	// Passphrase is an optional additional credential required by some exchanges.
	Passphrase string `json:"passphrase,omitempty" yaml:"passphrase,omitempty"`
}

// String implements fmt.Stringer without revealing secrets.
func (c *Credentials) String() string {
	if c == nil {
		return "Credentials{}"
	}
	return fmt.Sprintf("Credentials{APIKey:%s}", MaskKey(c.APIKey))
}

// HasKey reports whether an API key and secret are present.
func (c *Credentials) HasKey() bool {
	return c != nil && c.APIKey != "" && c.SecretKey != ""
}

// MaskKey hides all but the edges of a key for diagnostics.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// Config contains all configuration options for one venue client.
type Config struct {
	Exchange    string       `json:"exchange" yaml:"exchange" validate:"required"`
	BaseURL     string       `json:"base_url,omitempty" yaml:"base_url,omitempty" validate:"omitempty,url"`
	Credentials *Credentials `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	UserAgent   string       `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// Timeout is the maximum duration for HTTP requests.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"min=1ms"`

	// RateLimit overrides the venue's minimum interval between requests. Zero keeps the venue default.
	RateLimit time.Duration `json:"rate_limit" yaml:"rate_limit" validate:"min=0"`

	// MarketsTTL bounds how long fetched markets are reused. Zero caches for the client lifetime.
	MarketsTTL time.Duration `json:"markets_ttl" yaml:"markets_ttl" validate:"min=0"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled" yaml:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold" yaml:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold" yaml:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout" yaml:"circuit_breaker_timeout"`

	LogLevel string `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config initialized with sensible defaults for the specified exchange.
// Default values: 10s timeout, venue rate limit, markets cached for the client lifetime,
// circuit breaker with 5 failures/2 successes/30s timeout.
func DefaultConfig(exchange string) *Config {
	return &Config{
		Exchange: exchange,
		Timeout:  10 * time.Second,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		LogLevel: "info",
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return errors.New("CircuitBreakerFailThreshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return errors.New("CircuitBreakerSuccessThreshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return errors.New("CircuitBreakerTimeout must be positive when enabled")
		}
	}
	return nil
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithBaseURL points the client at another host and returns the config for chaining.
func (c *Config) WithBaseURL(url string) *Config {
	c.BaseURL = url
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithRateLimit overrides the venue request interval and returns the config for chaining.
func (c *Config) WithRateLimit(interval time.Duration) *Config {
	c.RateLimit = interval
	return c
}

// WithMarketsTTL sets the markets cache lifetime and returns the config for chaining.
func (c *Config) WithMarketsTTL(ttl time.Duration) *Config {
	c.MarketsTTL = ttl
	return c
}

// WithCircuitBreaker enables or disables the circuit breaker and returns the config for chaining.
func (c *Config) WithCircuitBreaker(enabled bool) *Config {
	c.CircuitBreakerEnabled = enabled
	return c
}

// File is the on-disk configuration: a log level and one entry per venue.
type File struct {
	LogLevel string    `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Venues   []*Config `yaml:"venues" validate:"dive"`
}

// LoadFile reads a YAML configuration file. ${VAR} references are expanded
// from the environment before decoding so secrets can live outside the file.
// Venue entries start from DefaultConfig and are validated.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseFile(raw)
}

// ParseFile decodes configuration bytes the same way LoadFile does.
func ParseFile(raw []byte) (*File, error) {
	var doc struct {
		LogLevel string      `yaml:"log_level"`
		Venues   []yaml.Node `yaml:"venues"`
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &doc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	f := &File{LogLevel: doc.LogLevel}
	for i := range doc.Venues {
		var probe struct {
			Exchange string `yaml:"exchange"`
		}
		if err := doc.Venues[i].Decode(&probe); err != nil {
			return nil, fmt.Errorf("decode venue %d: %w", i, err)
		}
		cfg := DefaultConfig(probe.Exchange)
		if err := doc.Venues[i].Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode venue %s: %w", probe.Exchange, err)
		}
		if cfg.Credentials != nil && cfg.Credentials.APIKey == "" && cfg.Credentials.SecretKey == "" {
			cfg.Credentials = nil
		}
		f.Venues = append(f.Venues, cfg)
	}

	if err := validate.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	for _, v := range f.Venues {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config for %s: %w", v.Exchange, err)
		}
	}
	return f, nil
}

// Venue returns the configuration for the named exchange.
func (f *File) Venue(name string) (*Config, bool) {
	for _, v := range f.Venues {
		if v.Exchange == name {
			return v, true
		}
	}
	return nil, false
}
