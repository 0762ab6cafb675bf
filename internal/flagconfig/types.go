// Package flagconfig hydrates the configuration consumed by the cmd/flagctl
// CLI wrapper: where to load the artifact and override sources from, signature
// verification material, poll/cache timing, and logging/metrics knobs. The
// core resolver package takes typed Go options directly and does not depend
// on this package.
package flagconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds every option the CLI wrapper needs to construct a resolver.
type Config struct {
	Artifact ArtifactConfig `koanf:"artifact"`
	Override OverrideConfig `koanf:"override"`
	Cache    CacheConfig    `koanf:"cache"`
	Logging  LoggingConfig  `koanf:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

// ArtifactConfig describes where the flag artifact comes from and how its
// signature is verified.
type ArtifactConfig struct {
	// Source is a local file path or an http(s) URL.
	Source string `koanf:"source"`
	// AllowedDirectory constrains file-path loads; falls back to the
	// AST_DIRECTORY environment variable when unset.
	AllowedDirectory string `koanf:"allowedDirectory"`
	// PublicKey accepts raw/base64/hex Ed25519 key material.
	PublicKey string `koanf:"publicKey"`
	// RequireSignature rejects an unsigned artifact even without a key.
	RequireSignature bool `koanf:"requireSignature"`
	// TimeoutSeconds bounds an HTTP(S) artifact fetch.
	TimeoutSeconds int `koanf:"timeoutSeconds"`
}

// OverrideConfig describes the optional emergency-override source.
type OverrideConfig struct {
	// Source is a local file path or an http(s) URL; empty disables overrides.
	Source string `koanf:"source"`
	// AllowedDirectory constrains file-path loads, mirroring Artifact's.
	AllowedDirectory string `koanf:"allowedDirectory"`
	// PollIntervalSeconds is the HTTP ETag poll cadence; default 3s.
	PollIntervalSeconds int `koanf:"pollIntervalSeconds"`
	// WatchFile additionally watches a local Source with fsnotify, a
	// supplement beyond the required HTTP poller (no effect on URL sources).
	WatchFile bool `koanf:"watchFile"`
}

// CacheConfig controls the resolver's in-memory evaluation cache.
type CacheConfig struct {
	// TTLSeconds is the evaluation-cache entry lifetime; default 300s (5m).
	TTLSeconds int `koanf:"ttlSeconds"`
}

// LoggingConfig expresses log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig controls the /metrics listener the CLI wrapper exposes.
type MetricsConfig struct {
	Address string `koanf:"address"`
}

// CacheTTL returns the configured cache TTL as a Duration, defaulting to
// 5 minutes when unset.
func (c CacheConfig) CacheTTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// PollInterval returns the configured override poll interval, defaulting to
// 3 seconds.
func (c OverrideConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ArtifactTimeout returns the configured artifact fetch timeout, defaulting
// to 30 seconds.
func (c ArtifactConfig) ArtifactTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate enforces invariants that keep the CLI wrapper predictable before
// it constructs a resolver.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("flagconfig: nil")
	}
	if strings.TrimSpace(c.Artifact.Source) == "" {
		return errors.New("flagconfig: artifact.source required")
	}
	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("flagconfig: cache.ttlSeconds invalid: %d", c.Cache.TTLSeconds)
	}
	if c.Override.PollIntervalSeconds < 0 {
		return fmt.Errorf("flagconfig: override.pollIntervalSeconds invalid: %d", c.Override.PollIntervalSeconds)
	}
	if c.Artifact.TimeoutSeconds < 0 {
		return fmt.Errorf("flagconfig: artifact.timeoutSeconds invalid: %d", c.Artifact.TimeoutSeconds)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("flagconfig: logging.level unsupported: %s", c.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "json", "text":
	default:
		return fmt.Errorf("flagconfig: logging.format unsupported: %s", c.Logging.Format)
	}
	return nil
}

// DefaultConfig returns the baseline values the loader seeds before files or
// environment variables are applied.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		Override: OverrideConfig{
			PollIntervalSeconds: 3,
		},
		Artifact: ArtifactConfig{
			TimeoutSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}
