package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/logging"
	"github.com/mfleurival/movie-tool/internal/services"
)

// Profile describes the uniform output format clips are normalized to
// before concatenation.
type Profile struct {
	MaxWidth   int
	MaxHeight  int
	TargetFPS  float64
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
}

// ProfileFromConfig builds the export profile from configuration.
func ProfileFromConfig(cfg *config.Config) Profile {
	return Profile{
		MaxWidth:   cfg.Export.MaxWidth,
		MaxHeight:  cfg.Export.MaxHeight,
		TargetFPS:  cfg.Export.TargetFPS,
		VideoCodec: cfg.Export.VideoCodec,
		AudioCodec: cfg.Export.AudioCodec,
		CRF:        cfg.Export.CRF,
		Preset:     cfg.Export.Preset,
	}
}

// Transcoder drives ffmpeg and ffprobe subprocesses. Every invocation runs
// under the configured command timeout.
type Transcoder struct {
	ffmpegBinary  string
	ffprobeBinary string
	timeout       time.Duration
	maxFrames     int
	thumbWidth    int
	thumbHeight   int
	logger        *slog.Logger
}

// NewTranscoder builds a Transcoder from configuration.
func NewTranscoder(cfg *config.Config, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.FFmpeg.CommandTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Transcoder{
		ffmpegBinary:  cfg.FFmpeg.FFmpegBinary,
		ffprobeBinary: cfg.FFmpeg.FFprobeBinary,
		timeout:       timeout,
		maxFrames:     cfg.FFmpeg.MaxExtractedFrames,
		thumbWidth:    cfg.FFmpeg.ThumbnailWidth,
		thumbHeight:   cfg.FFmpeg.ThumbnailHeight,
		logger:        logging.NewComponentLogger(logger, "transcoder"),
	}
}

// runFFmpeg executes one ffmpeg invocation. Failures and timeouts carry the
// full command line and trailing output for diagnosis.
func (t *Transcoder) runFFmpeg(ctx context.Context, args []string) error {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	binary := t.ffmpegBinary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := commandContext(runCtx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := fmt.Sprintf("%s %s: %s", binary, strings.Join(args, " "), tail(string(output), 2048))
		if runCtx.Err() == context.DeadlineExceeded {
			detail = fmt.Sprintf("timed out after %s: %s", t.timeout, detail)
		}
		return services.Wrap(services.ErrTranscode, "transcoder", "run ffmpeg", detail, err)
	}
	return nil
}

// Probe inspects a video file.
func (t *Transcoder) Probe(ctx context.Context, path string) (MediaInfo, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	result, err := Inspect(runCtx, t.ffprobeBinary, path)
	if err != nil {
		return MediaInfo{}, err
	}
	return result.Info()
}

// ExtractFrame pulls a single frame at the given timestamp. Zero width or
// height leaves the frame at source resolution.
func (t *Transcoder) ExtractFrame(ctx context.Context, videoPath string, timestamp float64, outputPath string, width, height int) error {
	if err := statInput(videoPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}
	args := []string{
		"-i", videoPath,
		"-ss", formatSeconds(timestamp),
		"-vframes", "1",
		"-y",
	}
	if width > 0 && height > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args, outputPath)
	if err := t.runFFmpeg(ctx, args); err != nil {
		return err
	}
	if _, err := os.Stat(outputPath); err != nil {
		return services.Wrap(services.ErrTranscode, "transcoder", "extract frame", "output file not created", nil)
	}
	return nil
}

// ExtractFrames samples frames at the given rate into outputDir, returning
// the generated paths in order. The configured frame cap bounds the result.
func (t *Transcoder) ExtractFrames(ctx context.Context, videoPath, outputDir string, fps, startTime, duration float64) ([]string, error) {
	if err := statInput(videoPath); err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = 1
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}
	args := []string{
		"-i", videoPath,
		"-ss", formatSeconds(startTime),
		"-vf", fmt.Sprintf("fps=%s", formatSeconds(fps)),
		"-y",
	}
	if duration > 0 {
		args = append(args, "-t", formatSeconds(duration))
	}
	if t.maxFrames > 0 {
		args = append(args, "-frames:v", strconv.Itoa(t.maxFrames))
	}
	args = append(args, filepath.Join(outputDir, "frame_%04d.png"))
	if err := t.runFFmpeg(ctx, args); err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	sort.Strings(frames)
	t.logger.Debug("frames extracted", logging.String("video", videoPath), logging.Int("count", len(frames)))
	return frames, nil
}

// Normalize re-encodes a clip to the shared export profile.
func (t *Transcoder) Normalize(ctx context.Context, inputPath, outputPath string, profile Profile) error {
	if err := statInput(inputPath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	args := []string{
		"-i", inputPath,
		"-c:v", profile.VideoCodec,
		"-c:a", profile.AudioCodec,
		"-crf", strconv.Itoa(profile.CRF),
		"-preset", profile.Preset,
		"-y",
	}
	if filter := buildVideoFilter(profile); filter != "" {
		args = append(args, "-vf", filter)
	}
	args = append(args, outputPath)

	if err := t.runFFmpeg(ctx, args); err != nil {
		return err
	}
	if _, err := os.Stat(outputPath); err != nil {
		return services.Wrap(services.ErrTranscode, "transcoder", "normalize", "output file not created", nil)
	}
	return nil
}

// buildVideoFilter assembles the scale and fps filter chain for a profile.
// Scaling never upsizes and always preserves the source aspect ratio.
func buildVideoFilter(profile Profile) string {
	var filters []string
	switch {
	case profile.MaxWidth > 0 && profile.MaxHeight > 0:
		filters = append(filters, fmt.Sprintf(
			"scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease",
			profile.MaxWidth, profile.MaxHeight))
	case profile.MaxWidth > 0:
		filters = append(filters, fmt.Sprintf("scale=%d:-1", profile.MaxWidth))
	case profile.MaxHeight > 0:
		filters = append(filters, fmt.Sprintf("scale=-1:%d", profile.MaxHeight))
	}
	if profile.TargetFPS > 0 {
		filters = append(filters, fmt.Sprintf("fps=%s", formatSeconds(profile.TargetFPS)))
	}
	return strings.Join(filters, ",")
}

// Concat joins already-uniform clips with the concat demuxer and stream
// copy. Inputs must share codec, resolution, and frame rate; Normalize
// establishes that.
func (t *Transcoder) Concat(ctx context.Context, inputPaths []string, outputPath string) error {
	if len(inputPaths) == 0 {
		return services.Wrap(services.ErrValidation, "transcoder", "concat", "no inputs", nil)
	}
	for _, path := range inputPaths {
		if err := statInput(path); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	// The list name derives from the output file so concurrent jobs
	// writing into the same directory never share it.
	listPath := outputPath + ".concat.txt"
	if err := writeConcatList(listPath, inputPaths); err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}
	if err := t.runFFmpeg(ctx, args); err != nil {
		return err
	}
	if _, err := os.Stat(outputPath); err != nil {
		return services.Wrap(services.ErrTranscode, "transcoder", "concat", "output file not created", nil)
	}
	return nil
}

// writeConcatList emits the demuxer input list, one absolute path per line.
func writeConcatList(listPath string, inputPaths []string) error {
	var builder strings.Builder
	for _, path := range inputPaths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolve concat input: %w", err)
		}
		fmt.Fprintf(&builder, "file '%s'\n", abs)
	}
	if err := os.WriteFile(listPath, []byte(builder.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// Thumbnail grabs a frame from the middle of the clip at the configured
// thumbnail size.
func (t *Transcoder) Thumbnail(ctx context.Context, videoPath, outputPath string) error {
	info, err := t.Probe(ctx, videoPath)
	if err != nil {
		return err
	}
	width, height := t.thumbWidth, t.thumbHeight
	if width <= 0 || height <= 0 {
		width, height = 320, 180
	}
	return t.ExtractFrame(ctx, videoPath, info.Duration/2, outputPath, width, height)
}

func statInput(path string) error {
	if _, err := os.Stat(path); err != nil {
		return services.Wrap(services.ErrValidation, "transcoder", "stat input",
			fmt.Sprintf("video file not found: %s", path), nil)
	}
	return nil
}

// formatSeconds renders a float without trailing zeros, matching what
// ffmpeg expects for -ss/-t values.
func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
