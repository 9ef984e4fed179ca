// Package config loads pokedex configuration from a file, the environment
// and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ivnvaldz7/pokeclient"
	"github.com/ivnvaldz7/pokeclient/internal/logging"
	"github.com/ivnvaldz7/pokeclient/pokeapi"
)

// EnvPrefix prefixes every environment override, e.g. POKEDEX_CLIENT_RETRIES.
const EnvPrefix = "POKEDEX"

// Config is the top-level configuration.
type Config struct {
	Log    logging.Config `yaml:"log"`
	Client ClientConfig   `yaml:"client"`
	Server ServerConfig   `yaml:"server"`
}

// ClientConfig configures the PokeAPI client.
type ClientConfig struct {
	BaseURL       string        `yaml:"base_url"`
	UserAgent     string        `yaml:"user_agent"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	StaleTTL      time.Duration `yaml:"stale_ttl"`
	SWR           bool          `yaml:"swr"`
	Metrics       bool          `yaml:"metrics"`
}

// ServerConfig configures `pokedex serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

var defaults = map[string]interface{}{
	"log.level":             "info",
	"log.format":            "console",
	"log.file":              "",
	"client.base_url":       pokeapi.BaseURL,
	"client.user_agent":     "pokedex/" + pokeclient.Version,
	"client.max_concurrent": 6,
	"client.timeout":        "8s",
	"client.retries":        2,
	"client.retry_delay":    "400ms",
	"client.cache_ttl":      "5m",
	"client.stale_ttl":      "60m",
	"client.swr":            true,
	"client.metrics":        true,
	"server.addr":           "127.0.0.1:8080",
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads configuration. If filePath is empty, a file named "config"
// (any supported extension) is searched in the working directory; a missing
// file is not an error. Environment variables override file values.
// Load returns the file used, if any.
func Load(filePath string) (*Config, string, error) {
	v := newViper()

	if len(filePath) > 0 {
		v.SetConfigFile(filePath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if len(filePath) > 0 || !errors.As(err, &notFound) {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, v.ConfigFileUsed(), nil
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	decoderOpt := func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
		cfg.TagName = "yaml"
		cfg.WeaklyTypedInput = true
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("client.base_url %q is not an absolute URL", c.Client.BaseURL))
	}
	if c.Client.MaxConcurrent < 1 {
		errs = append(errs, errors.New("client.max_concurrent must be at least 1"))
	}
	if c.Client.Timeout <= 0 {
		errs = append(errs, errors.New("client.timeout must be positive"))
	}
	if c.Client.Retries < 0 {
		errs = append(errs, errors.New("client.retries must be non-negative"))
	}
	if c.Client.RetryDelay < 0 {
		errs = append(errs, errors.New("client.retry_delay must be non-negative"))
	}
	if c.Client.CacheTTL < 0 || c.Client.StaleTTL < 0 {
		errs = append(errs, errors.New("client.cache_ttl and client.stale_ttl must be non-negative"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must be set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Policy returns the default request policy described by c.
func (c ClientConfig) Policy() pokeclient.Policy {
	return pokeclient.Policy{
		Timeout:    c.Timeout,
		Retries:    c.Retries,
		RetryDelay: c.RetryDelay,
		CacheTTL:   c.CacheTTL,
		StaleTTL:   c.StaleTTL,
		Dedupe:     true,
		SWR:        c.SWR,
	}
}
