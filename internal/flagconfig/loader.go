package flagconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader hydrates the effective configuration respecting env > file > default
// precedence.
type Loader struct {
	envPrefix string
	files     []string
}

// NewLoader prepares a config hydrator. files are applied in order after
// defaults and before environment variables.
func NewLoader(envPrefix string, files ...string) *Loader {
	return &Loader{envPrefix: envPrefix, files: files}
}

// Load assembles the effective snapshot.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	defaultCfg := DefaultConfig()
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(structToMap(defaultCfg), "."), nil); err != nil {
		return Config{}, fmt.Errorf("flagconfig: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return Config{}, ctx.Err()
		default:
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("flagconfig: file %s not found", path)
			}
			return Config{}, fmt.Errorf("flagconfig: stat %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("flagconfig: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		transform := func(s string) string {
			// Double underscores signal a nested path (ARTIFACT__SOURCE -> artifact.source).
			key := strings.TrimPrefix(s, l.envPrefix+"_")
			key = strings.ReplaceAll(key, "__", ".")
			return strings.ToLower(key)
		}
		if err := k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("flagconfig: load env: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("flagconfig: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// structToMap converts DefaultConfig into a map for the koanf confmap provider.
func structToMap(cfg Config) map[string]any {
	return map[string]any{
		"artifact": map[string]any{
			"source":           cfg.Artifact.Source,
			"allowedDirectory": cfg.Artifact.AllowedDirectory,
			"publicKey":        cfg.Artifact.PublicKey,
			"requireSignature": cfg.Artifact.RequireSignature,
			"timeoutSeconds":   cfg.Artifact.TimeoutSeconds,
		},
		"override": map[string]any{
			"source":              cfg.Override.Source,
			"allowedDirectory":    cfg.Override.AllowedDirectory,
			"pollIntervalSeconds": cfg.Override.PollIntervalSeconds,
			"watchFile":           cfg.Override.WatchFile,
		},
		"cache": map[string]any{
			"ttlSeconds": cfg.Cache.TTLSeconds,
		},
		"logging": map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
		},
		"metrics": map[string]any{
			"address": cfg.Metrics.Address,
		},
	}
}
