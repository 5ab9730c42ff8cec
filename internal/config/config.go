package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	OutputDir    string `toml:"output_dir"`
	TempDir      string `toml:"temp_dir"`
	CharacterDir string `toml:"character_dir"`
	LogDir       string `toml:"log_dir"`
	SocketPath   string `toml:"socket_path"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Provider contains connection settings for one external generation service.
type Provider struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	RequestTimeout int    `toml:"request_timeout"`
	MaxAttempts    int    `toml:"max_attempts"`
	RetryBaseDelay int    `toml:"retry_base_delay"`
}

// Generation contains orchestrator tuning.
type Generation struct {
	PollInterval      int    `toml:"poll_interval"`
	MaxWaitSeconds    int    `toml:"max_wait_seconds"`
	MaxConcurrent     int    `toml:"max_concurrent"`
	DefaultDuration   int    `toml:"default_duration"`
	DefaultResolution string `toml:"default_resolution"`
}

// FFmpeg contains external transcoding tool configuration.
type FFmpeg struct {
	FFmpegBinary       string `toml:"ffmpeg_binary"`
	FFprobeBinary      string `toml:"ffprobe_binary"`
	CommandTimeout     int    `toml:"command_timeout"`
	MaxExtractedFrames int    `toml:"max_extracted_frames"`
	ThumbnailWidth     int    `toml:"thumbnail_width"`
	ThumbnailHeight    int    `toml:"thumbnail_height"`
}

// Export contains the shared export profile and pipeline tuning.
type Export struct {
	MaxWidth         int     `toml:"max_width"`
	MaxHeight        int     `toml:"max_height"`
	TargetFPS        float64 `toml:"target_fps"`
	VideoCodec       string  `toml:"video_codec"`
	AudioCodec       string  `toml:"audio_codec"`
	CRF              int     `toml:"crf"`
	Preset           string  `toml:"preset"`
	NormalizeWorkers int     `toml:"normalize_workers"`
	MinOutputBytes   int64   `toml:"min_output_bytes"`
}

// Config is the root configuration shared by every component. It is built
// once at startup and passed by reference; nothing reads ambient globals.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	MiniMax    Provider   `toml:"minimax"`
	Segmind    Provider   `toml:"segmind"`
	Generation Generation `toml:"generation"`
	FFmpeg     FFmpeg     `toml:"ffmpeg"`
	Export     Export     `toml:"export"`
}

// ProviderFor returns the provider section matching the registered client
// name. The second result is false for unknown names.
func (c *Config) ProviderFor(name string) (Provider, bool) {
	switch name {
	case "minimax":
		return c.MiniMax, true
	case "segmind":
		return c.Segmind, true
	default:
		return Provider{}, false
	}
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	return "~/.config/movietool/config.toml"
}

// Load reads the config file at path (or the default location when path is
// empty), layering file values over defaults. A missing file is not an
// error; defaults are returned with the resolved path.
func Load(path string) (*Config, string, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	}
	resolved, err := ExpandPath(resolved)
	if err != nil {
		return nil, "", err
	}

	cfg := Default()
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg.normalize()
			return &cfg, resolved, nil
		}
		return nil, "", fmt.Errorf("read config %s: %w", resolved, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, "", fmt.Errorf("parse config %s: %w", resolved, err)
	}
	cfg.normalize()
	return &cfg, resolved, nil
}

// WriteSample writes the embedded sample config to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates every configured directory.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.TempDir, c.Paths.CharacterDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ against the current user's home directory
// and returns an absolute path.
func ExpandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", errors.New("empty path")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}

func (c *Config) normalize() {
	c.Paths.OutputDir = expandOrKeep(c.Paths.OutputDir)
	c.Paths.TempDir = expandOrKeep(c.Paths.TempDir)
	c.Paths.CharacterDir = expandOrKeep(c.Paths.CharacterDir)
	c.Paths.LogDir = expandOrKeep(c.Paths.LogDir)
	c.Paths.SocketPath = expandOrKeep(c.Paths.SocketPath)
}

func expandOrKeep(path string) string {
	if strings.TrimSpace(path) == "" {
		return path
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return path
	}
	return expanded
}
