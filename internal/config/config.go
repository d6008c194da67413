// Package config loads runtime settings from an optional YAML file and
// FRONTDESK_-prefixed environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr               string
		RateLimitPerSecond int      `mapstructure:"rate_limit_per_second"`
		TrustedProxies     []string `mapstructure:"trusted_proxies"` // CIDRs or bare IPs
	} `mapstructure:"http"`

	DB struct {
		Path        string
		SlowQueryMs int `mapstructure:"slow_query_ms"`
	} `mapstructure:"db"`

	Catalog struct {
		Path string
	} `mapstructure:"catalog"`

	Email struct {
		ResendKey string `mapstructure:"resend_key"`
		From      string
		ReplyTo   string `mapstructure:"reply_to"`
	} `mapstructure:"email"`

	CSRF struct {
		Key string
	} `mapstructure:"csrf"`

	Notices struct {
		Cooldown time.Duration
	} `mapstructure:"notices"`

	Scan struct {
		Interval       time.Duration
		ThresholdsDays []int `mapstructure:"thresholds_days"`
		Workers        int
	} `mapstructure:"scan"`

	Outbox struct {
		Interval time.Duration
	} `mapstructure:"outbox"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.timezone", "America/Santiago")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit_per_second", 10)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("db.path", "frontdesk.db")
	v.SetDefault("db.slow_query_ms", 50)
	v.SetDefault("catalog.path", "")
	v.SetDefault("email.resend_key", "")
	v.SetDefault("email.from", "Front Desk <noreply@example.com>")
	v.SetDefault("email.reply_to", "")
	v.SetDefault("csrf.key", "")
	v.SetDefault("notices.cooldown", "24h")
	v.SetDefault("scan.interval", "1h")
	v.SetDefault("scan.thresholds_days", []int{3, 1})
	v.SetDefault("scan.workers", 4)
	v.SetDefault("outbox.interval", "1m")
}

// Load reads path (skipped when empty) and applies environment overrides,
// e.g. FRONTDESK_HTTP_ADDR for http.addr.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FRONTDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// IsProduction reports whether app.env is "production".
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Location resolves app.timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

// CSRFKey decodes csrf.key. An empty key returns nil.
func (c *Config) CSRFKey() ([]byte, error) {
	if c.CSRF.Key == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.CSRF.Key)
	if err != nil || len(key) != 32 {
		return nil, errors.New("csrf.key must be 64 hex characters (32 bytes)")
	}
	return key, nil
}

// TrustedProxies parses http.trusted_proxies. A bare IP is a single-address prefix.
func (c *Config) TrustedProxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.HTTP.TrustedProxies))
	for _, raw := range c.HTTP.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("http.trusted_proxies: %q is not an IP or CIDR", raw)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return prefixes, nil
}

// Validate checks ranges and cross-field rules.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("app.timezone: %w", err)
	}
	if c.HTTP.RateLimitPerSecond <= 0 {
		return errors.New("http.rate_limit_per_second must be positive")
	}
	if _, err := c.TrustedProxies(); err != nil {
		return err
	}
	if c.Notices.Cooldown <= 0 {
		return errors.New("notices.cooldown must be positive")
	}
	if c.Scan.Interval <= 0 || c.Outbox.Interval <= 0 {
		return errors.New("scan.interval and outbox.interval must be positive")
	}
	if c.Scan.Workers <= 0 {
		return errors.New("scan.workers must be positive")
	}
	for _, d := range c.Scan.ThresholdsDays {
		if d < 0 {
			return fmt.Errorf("scan.thresholds_days: %d is negative", d)
		}
	}
	if _, err := c.CSRFKey(); err != nil {
		return err
	}
	if c.IsProduction() && c.CSRF.Key == "" {
		return errors.New("csrf.key is required in production")
	}
	return nil
}
