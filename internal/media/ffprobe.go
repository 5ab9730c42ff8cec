package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mfleurival/movie-tool/internal/services"
)

var commandContext = exec.CommandContext

// ProbeResult represents the parsed output from an ffprobe inspection.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// MediaInfo is the flattened view of a probed video file that the export
// pipeline and quality analysis work from.
type MediaInfo struct {
	Duration    float64
	Width       int
	Height      int
	FPS         float64
	Bitrate     int64
	Codec       string
	Format      string
	SizeBytes   int64
	AspectRatio string
}

// Resolution renders the pixel dimensions as WxH.
func (m MediaInfo) Resolution() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

// Inspect executes ffprobe against the provided path and decodes the JSON
// response.
func Inspect(ctx context.Context, binary, path string) (ProbeResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return ProbeResult{}, services.Wrap(services.ErrValidation, "media", "probe", "empty path", nil)
	}

	cmd := commandContext(ctx, binary, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeResult{}, services.Wrap(services.ErrTranscode, "media", "probe",
			strings.TrimSpace(string(output)), err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return ProbeResult{}, services.Wrap(services.ErrTranscode, "media", "probe", "parse ffprobe output", err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// RawJSON returns the raw ffprobe JSON payload.
func (r ProbeResult) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// VideoStream returns the first video stream, if any.
func (r ProbeResult) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// AudioStreamCount returns the number of audio streams discovered.
func (r ProbeResult) AudioStreamCount() int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			count++
		}
	}
	return count
}

// Info flattens the probe result into a MediaInfo. A container without a
// video stream is a transcode error.
func (r ProbeResult) Info() (MediaInfo, error) {
	video, ok := r.VideoStream()
	if !ok {
		return MediaInfo{}, services.Wrap(services.ErrTranscode, "media", "probe", "no video stream found", nil)
	}
	codec := video.CodecName
	if codec == "" {
		codec = "unknown"
	}
	format := r.Format.FormatName
	if format == "" {
		format = "unknown"
	}
	return MediaInfo{
		Duration:    parseFloat(r.Format.Duration),
		Width:       video.Width,
		Height:      video.Height,
		FPS:         ParseFrameRate(video.RFrameRate),
		Bitrate:     parseInt64(r.Format.BitRate),
		Codec:       codec,
		Format:      format,
		SizeBytes:   parseInt64(r.Format.Size),
		AspectRatio: AspectRatio(video.Width, video.Height),
	}, nil
}

// ParseFrameRate converts ffprobe's rational r_frame_rate (for example
// "30000/1001") into frames per second. A zero denominator yields 0.
func ParseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if num, den, found := strings.Cut(value, "/"); found {
		n := parseFloat(num)
		d := parseFloat(den)
		if d == 0 || math.IsNaN(n) || math.IsNaN(d) {
			return 0
		}
		return n / d
	}
	if parsed := parseFloat(value); !math.IsNaN(parsed) {
		return parsed
	}
	return 0
}

// AspectRatio reduces pixel dimensions to their simplest ratio, for example
// 1920x1080 to "16:9". Zero dimensions stay unreduced.
func AspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return fmt.Sprintf("%d:%d", width, height)
	}
	divisor := gcd(width, height)
	return fmt.Sprintf("%d:%d", width/divisor, height/divisor)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

func parseInt64(value string) int64 {
	parsed := parseFloat(value)
	if math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return int64(parsed)
}
