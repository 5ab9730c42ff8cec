package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/mfleurival/movie-tool/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.TempDir = filepath.Join(base, "tmp")
	cfg.Paths.CharacterDir = filepath.Join(base, "characters")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "movietool.sock")
	cfg.MiniMax.Enabled = true
	cfg.MiniMax.APIKey = "test"
	cfg.Segmind.Enabled = true
	cfg.Segmind.APIKey = "test"
	cfg.Generation.PollInterval = 1
	cfg.Generation.MaxWaitSeconds = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithProviderKeys overrides both provider API keys on the test config.
func WithProviderKeys(minimax, segmind string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.MiniMax.APIKey = minimax
		cfg.Segmind.APIKey = segmind
	}
}
