package flagconfig

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name: "returns defaults when artifact source set via env",
			setup: func(t *testing.T) []string {
				t.Setenv("EVALCORE_ARTIFACT__SOURCE", "/tmp/flags.bin")
				return nil
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 300, cfg.Cache.TTLSeconds)
				require.Equal(t, 3, cfg.Override.PollIntervalSeconds)
				require.Equal(t, "/tmp/flags.bin", cfg.Artifact.Source)
			},
		},
		{
			name: "merges file overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "flagctl.yaml")
				require.NoError(t, os.WriteFile(path, []byte("artifact:\n  source: /data/flags.bin\ncache:\n  ttlSeconds: 60\n"), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "/data/flags.bin", cfg.Artifact.Source)
				require.Equal(t, 60, cfg.Cache.TTLSeconds)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "flagctl.yaml")
				require.NoError(t, os.WriteFile(path, []byte("artifact:\n  source: /data/flags.bin\n"), 0o600))
				t.Setenv("EVALCORE_ARTIFACT__SOURCE", "/env/flags.bin")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "/env/flags.bin", cfg.Artifact.Source)
			},
		},
		{
			name: "missing artifact source fails validation",
			setup: func(t *testing.T) []string {
				return nil
			},
			wantErr: true,
		},
		{
			name: "missing file errors",
			setup: func(t *testing.T) []string {
				t.Setenv("EVALCORE_ARTIFACT__SOURCE", "/tmp/flags.bin")
				return []string{filepath.Join(t.TempDir(), "missing.yaml")}
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := tc.setup(t)
			loader := NewLoader("EVALCORE", files...)
			cfg, err := loader.Load(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.assert != nil {
				tc.assert(t, cfg)
			}
		})
	}
}

func TestConfigValidateRejectsNegativeDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Artifact.Source = "/tmp/flags.bin"
	cfg.Cache.TTLSeconds = -1
	require.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsUnsupportedLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Artifact.Source = "/tmp/flags.bin"
	cfg.Logging.Level = "verbose"
	require.Error(t, cfg.Validate())
}

func TestCacheTTLDefault(t *testing.T) {
	cfg := CacheConfig{}
	require.Equal(t, defaultCacheTTLSeconds, int(cfg.CacheTTL().Seconds()))
}

const defaultCacheTTLSeconds = 300
