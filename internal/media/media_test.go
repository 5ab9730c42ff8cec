package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/services"
)

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97002997002997},
		{"0/0", 0},
		{"25", 25},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := ParseFrameRate(tc.in); got != tc.want {
			t.Errorf("ParseFrameRate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestAspectRatio(t *testing.T) {
	cases := []struct {
		width, height int
		want          string
	}{
		{1920, 1080, "16:9"},
		{640, 480, "4:3"},
		{1080, 1920, "9:16"},
		{640, 0, "640:0"},
	}
	for _, tc := range cases {
		if got := AspectRatio(tc.width, tc.height); got != tc.want {
			t.Errorf("AspectRatio(%d, %d) = %q, want %q", tc.width, tc.height, got, tc.want)
		}
	}
}

const probeFixture = `{
	"streams": [
		{"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080, "r_frame_rate": "30/1"},
		{"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2}
	],
	"format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "12.500000", "size": "9000000", "bit_rate": "9000000"}
}`

func TestProbeResultInfo(t *testing.T) {
	var result ProbeResult
	if err := json.Unmarshal([]byte(probeFixture), &result); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	info, err := result.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("unexpected dimensions %dx%d", info.Width, info.Height)
	}
	if info.FPS != 30 {
		t.Errorf("unexpected fps %v", info.FPS)
	}
	if info.Bitrate != 9000000 {
		t.Errorf("unexpected bitrate %d", info.Bitrate)
	}
	if info.Codec != "h264" {
		t.Errorf("unexpected codec %q", info.Codec)
	}
	if info.AspectRatio != "16:9" {
		t.Errorf("unexpected aspect ratio %q", info.AspectRatio)
	}
	if info.Duration != 12.5 {
		t.Errorf("unexpected duration %v", info.Duration)
	}
	if result.AudioStreamCount() != 1 {
		t.Errorf("expected one audio stream, got %d", result.AudioStreamCount())
	}
}

func TestProbeResultInfoNoVideoStream(t *testing.T) {
	result := ProbeResult{Streams: []Stream{{CodecType: "audio"}}}
	if _, err := result.Info(); !errors.Is(err, services.ErrTranscode) {
		t.Fatalf("expected transcode error, got %v", err)
	}
}

func TestProbeResultInfoMissingBitrate(t *testing.T) {
	result := ProbeResult{
		Streams: []Stream{{CodecType: "video", Width: 640, Height: 480, RFrameRate: "15/1"}},
		Format:  Format{Duration: "8.0"},
	}
	info, err := result.Info()
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.Bitrate != 0 {
		t.Errorf("missing bitrate must read as 0, got %d", info.Bitrate)
	}
	if info.Codec != "unknown" {
		t.Errorf("missing codec must read as unknown, got %q", info.Codec)
	}
}

func TestBuildVideoFilter(t *testing.T) {
	cases := []struct {
		name    string
		profile Profile
		want    string
	}{
		{
			"both dimensions and fps",
			Profile{MaxWidth: 1920, MaxHeight: 1080, TargetFPS: 30},
			"scale='min(1920,iw)':'min(1080,ih)':force_original_aspect_ratio=decrease,fps=30",
		},
		{
			"width only",
			Profile{MaxWidth: 1280},
			"scale=1280:-1",
		},
		{
			"height only",
			Profile{MaxHeight: 720},
			"scale=-1:720",
		},
		{
			"fps only",
			Profile{TargetFPS: 24},
			"fps=24",
		},
		{
			"empty",
			Profile{},
			"",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := buildVideoFilter(tc.profile); got != tc.want {
				t.Fatalf("buildVideoFilter = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "concat.txt")
	inputs := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}
	if err := writeConcatList(listPath, inputs); err != nil {
		t.Fatalf("write concat list: %v", err)
	}
	content, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0] != "file '"+inputs[0]+"'" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
}

func TestAnalyzeQuality(t *testing.T) {
	cases := []struct {
		name       string
		info       MediaInfo
		wantScore  int
		wantRating string
	}{
		{
			"full hd high bitrate",
			MediaInfo{Width: 1920, Height: 1080, Bitrate: 9_000_000, Codec: "h264", FPS: 30},
			98, "Excellent",
		},
		{
			"low everything",
			MediaInfo{Width: 640, Height: 480, Codec: "mpeg4", FPS: 15},
			34, "Poor",
		},
		{
			"midrange vp9",
			MediaInfo{Width: 1280, Height: 720, Bitrate: 4_000_000, Codec: "vp9", FPS: 24},
			71, "Fair",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := AnalyzeQuality(tc.info)
			if report.Score != tc.wantScore {
				t.Fatalf("score = %d, want %d", report.Score, tc.wantScore)
			}
			if report.Rating != tc.wantRating {
				t.Fatalf("rating = %q, want %q", report.Rating, tc.wantRating)
			}
		})
	}
}

func TestAnalyzeQualityMissingBitrate(t *testing.T) {
	report := AnalyzeQuality(MediaInfo{Width: 1920, Height: 1080, Codec: "hevc", FPS: 60})
	if report.BitrateScore != 0 {
		t.Fatalf("missing bitrate must score 0, got %d", report.BitrateScore)
	}
	if report.Score != 70 {
		t.Fatalf("score = %d, want 70", report.Score)
	}
}

func TestValidateInfo(t *testing.T) {
	good := MediaInfo{Duration: 12, Width: 1920, Height: 1080, FPS: 30, SizeBytes: 5_000_000}
	v := ValidateInfo(good, 1024)
	if !v.Valid || len(v.Issues) != 0 || v.Status() != "valid" {
		t.Fatalf("expected clean validation, got %+v", v)
	}

	broken := MediaInfo{Duration: 0, Width: 0, Height: 0, FPS: 0, SizeBytes: 10}
	v = ValidateInfo(broken, 1024)
	if v.Valid || v.Status() != "invalid" {
		t.Fatalf("expected invalid result, got %+v", v)
	}
	if len(v.Issues) != 4 {
		t.Fatalf("expected 4 issues, got %v", v.Issues)
	}

	marginal := MediaInfo{Duration: 0.5, Width: 300, Height: 200, FPS: 12, SizeBytes: 5_000}
	v = ValidateInfo(marginal, 1024)
	if !v.Valid || v.Status() != "warning" {
		t.Fatalf("expected warning status, got %+v", v)
	}
	if len(v.Warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %v", v.Warnings)
	}
}

func TestNormalizeCommandLine(t *testing.T) {
	cfg := config.Default()
	tr := NewTranscoder(&cfg, nil)

	dir := t.TempDir()
	input := filepath.Join(dir, "in.mp4")
	output := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	var gotName string
	var gotArgs []string
	restore := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		os.WriteFile(args[len(args)-1], []byte("out"), 0o644)
		return exec.CommandContext(ctx, "true")
	}
	defer func() { commandContext = restore }()

	profile := Profile{
		MaxWidth: 1920, MaxHeight: 1080, TargetFPS: 30,
		VideoCodec: "libx264", AudioCodec: "aac", CRF: 23, Preset: "medium",
	}
	if err := tr.Normalize(context.Background(), input, output, profile); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if gotName != cfg.FFmpeg.FFmpegBinary {
		t.Errorf("unexpected binary %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-c:v libx264") || !strings.Contains(joined, "-crf 23") {
		t.Errorf("missing encode flags in %q", joined)
	}
	if !strings.Contains(joined, "force_original_aspect_ratio=decrease,fps=30") {
		t.Errorf("missing filter chain in %q", joined)
	}
	if gotArgs[len(gotArgs)-1] != output {
		t.Errorf("output must be last arg, got %q", gotArgs[len(gotArgs)-1])
	}
}

func TestConcatCommandLine(t *testing.T) {
	cfg := config.Default()
	tr := NewTranscoder(&cfg, nil)

	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	output := filepath.Join(dir, "final.mp4")
	for _, path := range []string{a, b} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write input: %v", err)
		}
	}

	var gotArgs []string
	restore := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotArgs = args
		os.WriteFile(args[len(args)-1], []byte("out"), 0o644)
		return exec.CommandContext(ctx, "true")
	}
	defer func() { commandContext = restore }()

	if err := tr.Concat(context.Background(), []string{a, b}, output); err != nil {
		t.Fatalf("concat: %v", err)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-f concat -safe 0") || !strings.Contains(joined, "-c copy") {
		t.Errorf("missing concat flags in %q", joined)
	}
}

func TestConcatListIsolatedPerOutput(t *testing.T) {
	cfg := config.Default()
	tr := NewTranscoder(&cfg, nil)

	dir := t.TempDir()
	inputsFor := func(prefix string) []string {
		paths := make([]string, 2)
		for i := range paths {
			paths[i] = filepath.Join(dir, fmt.Sprintf("%s_%d.mp4", prefix, i))
			if err := os.WriteFile(paths[i], []byte("x"), 0o644); err != nil {
				t.Fatalf("write input: %v", err)
			}
		}
		return paths
	}
	inputsA := inputsFor("a")
	inputsB := inputsFor("b")

	var mu sync.Mutex
	listByOutput := make(map[string]string)
	restore := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		listPath, output := "", args[len(args)-1]
		for i, arg := range args {
			if arg == "-i" {
				listPath = args[i+1]
			}
		}
		content, err := os.ReadFile(listPath)
		if err != nil {
			t.Errorf("read concat list: %v", err)
		}
		mu.Lock()
		listByOutput[output] = string(content)
		mu.Unlock()
		os.WriteFile(output, []byte("out"), 0o644)
		return exec.CommandContext(ctx, "true")
	}
	defer func() { commandContext = restore }()

	outputA := filepath.Join(dir, "final_a.mp4")
	outputB := filepath.Join(dir, "final_b.mp4")

	var wg sync.WaitGroup
	for _, job := range []struct {
		inputs []string
		output string
	}{{inputsA, outputA}, {inputsB, outputB}} {
		wg.Add(1)
		go func(inputs []string, output string) {
			defer wg.Done()
			if err := tr.Concat(context.Background(), inputs, output); err != nil {
				t.Errorf("concat %s: %v", output, err)
			}
		}(job.inputs, job.output)
	}
	wg.Wait()

	for output, inputs := range map[string][]string{outputA: inputsA, outputB: inputsB} {
		list := listByOutput[output]
		for _, input := range inputs {
			if !strings.Contains(list, input) {
				t.Errorf("list for %s missing its own input %s", output, input)
			}
		}
	}
	if strings.Contains(listByOutput[outputA], "b_0.mp4") || strings.Contains(listByOutput[outputB], "a_0.mp4") {
		t.Error("concat lists leaked inputs across concurrent jobs")
	}
}

func TestConcatNoInputs(t *testing.T) {
	cfg := config.Default()
	tr := NewTranscoder(&cfg, nil)
	err := tr.Concat(context.Background(), nil, filepath.Join(t.TempDir(), "out.mp4"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
