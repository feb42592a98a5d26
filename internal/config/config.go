// Package config loads the marketsift YAML configuration: server binding,
// cache, outbound fetching, and which adapters to register per marketplace.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

// Config is the complete runtime configuration.
type Config struct {
	Log          LogConfig                    `yaml:"log"`
	Server       ServerConfig                 `yaml:"server"`
	Redis        RedisConfig                  `yaml:"redis"`
	Fetch        FetchConfig                  `yaml:"fetch"`
	Marketplaces map[string]MarketplaceConfig `yaml:"marketplaces"`
}

// LogConfig controls the zerolog global level.
type LogConfig struct {
	Level string `yaml:"level"` // trace|debug|info|warn|error
}

// ServerConfig holds the HTTP API binding and timeouts.
type ServerConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
	IdleTimeoutSecs  int    `yaml:"idle_timeout_secs"`
}

// RedisConfig wires the optional extraction cache.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
	TTLSecs int    `yaml:"ttl_secs"`
}

// FetchConfig bounds the outbound HTTP stack shared by fetching adapters.
type FetchConfig struct {
	UserAgent    string  `yaml:"user_agent"`
	TimeoutSecs  int     `yaml:"timeout_secs"`
	PerHostRPS   float64 `yaml:"per_host_rps"`
	PerHostBurst int     `yaml:"per_host_burst"`
}

// MarketplaceConfig declares the adapters for one marketplace and an
// optional explicit fallback chain.
type MarketplaceConfig struct {
	// Chain overrides the default tier ordering. Channels listed here are
	// tried in this exact order.
	Chain    []string                 `yaml:"chain"`
	Adapters map[string]AdapterConfig `yaml:"adapters"`
}

// AdapterConfig holds one adapter's settings. Not every field applies to
// every channel; Validate checks the ones that do.
type AdapterConfig struct {
	Enabled bool `yaml:"enabled"`

	// official_api
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`

	// browser_extension and llm_extraction bridges
	BridgeURL string `yaml:"bridge_url"`

	// llm_extraction
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// Default is the configuration used when no file is given: local-only
// server, no cache, content-only adapters for every marketplace.
func Default() *Config {
	cfg := &Config{
		Log:    LogConfig{Level: "info"},
		Server: ServerConfig{Host: "127.0.0.1", Port: 8080, ReadTimeoutSecs: 10, WriteTimeoutSecs: 30, IdleTimeoutSecs: 60},
		Redis:  RedisConfig{Enabled: false, Addr: "localhost:6379", TTLSecs: 300},
		Fetch:  FetchConfig{TimeoutSecs: 15, PerHostRPS: 2, PerHostBurst: 4},
		Marketplaces: map[string]MarketplaceConfig{
			string(listing.MarketplaceEbay): {
				Adapters: map[string]AdapterConfig{
					string(sources.ChannelScraping):     {Enabled: true},
					string(sources.ChannelDataExport):   {Enabled: true},
					string(sources.ChannelEmailParsing): {Enabled: true},
				},
			},
		},
	}
	return cfg
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the closed enums and the per-channel required fields.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q is not one of trace|debug|info|warn|error", c.Log.Level)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis is enabled but addr is empty")
	}
	if c.Fetch.PerHostRPS < 0 {
		return fmt.Errorf("fetch per_host_rps must not be negative")
	}

	for name, mc := range c.Marketplaces {
		m, ok := listing.ParseMarketplace(name)
		if !ok {
			return fmt.Errorf("unknown marketplace %q", name)
		}
		for _, ch := range mc.Chain {
			if _, ok := sources.ParseChannel(ch); !ok {
				return fmt.Errorf("marketplace %s: unknown channel %q in chain", m, ch)
			}
		}
		for ch, ac := range mc.Adapters {
			channel, ok := sources.ParseChannel(ch)
			if !ok {
				return fmt.Errorf("marketplace %s: unknown adapter channel %q", m, ch)
			}
			if err := ac.validate(channel); err != nil {
				return fmt.Errorf("marketplace %s, channel %s: %w", m, channel, err)
			}
		}
	}
	return nil
}

func (a AdapterConfig) validate(channel sources.Channel) error {
	if !a.Enabled {
		return nil
	}
	switch channel {
	case sources.ChannelOfficialAPI:
		if a.BaseURL == "" {
			return fmt.Errorf("official_api requires base_url")
		}
	case sources.ChannelLLMExtraction:
		if a.BridgeURL == "" {
			return fmt.Errorf("llm_extraction requires bridge_url")
		}
	}
	return nil
}

// Duration helpers keep the *_secs ints out of call sites.

func (s ServerConfig) ReadTimeout() time.Duration  { return time.Duration(s.ReadTimeoutSecs) * time.Second }
func (s ServerConfig) WriteTimeout() time.Duration { return time.Duration(s.WriteTimeoutSecs) * time.Second }
func (s ServerConfig) IdleTimeout() time.Duration  { return time.Duration(s.IdleTimeoutSecs) * time.Second }
func (r RedisConfig) TTL() time.Duration           { return time.Duration(r.TTLSecs) * time.Second }
func (f FetchConfig) Timeout() time.Duration       { return time.Duration(f.TimeoutSecs) * time.Second }
func (a AdapterConfig) Timeout() time.Duration     { return time.Duration(a.TimeoutSecs) * time.Second }
