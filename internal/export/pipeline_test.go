package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/media"
	"github.com/mfleurival/movie-tool/internal/services"
	"github.com/mfleurival/movie-tool/internal/store"
)

type fakeTranscoder struct {
	mu          sync.Mutex
	normalized  []string
	concatIn    []string
	sourceOf    map[string]string
	concatByOut map[string][]string
	normalize   func(ctx context.Context, inputPath, outputPath string, profile media.Profile) error
	probe       func(ctx context.Context, path string) (media.MediaInfo, error)
}

func goodInfo() media.MediaInfo {
	return media.MediaInfo{
		Duration: 24, Width: 1920, Height: 1080, FPS: 30,
		Bitrate: 9_000_000, Codec: "h264", SizeBytes: 20_000_000,
	}
}

func (f *fakeTranscoder) Normalize(ctx context.Context, inputPath, outputPath string, profile media.Profile) error {
	if f.normalize != nil {
		if err := f.normalize(ctx, inputPath, outputPath, profile); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.normalized = append(f.normalized, inputPath)
	if f.sourceOf == nil {
		f.sourceOf = make(map[string]string)
	}
	f.sourceOf[outputPath] = inputPath
	f.mu.Unlock()
	return os.WriteFile(outputPath, []byte("normalized"), 0o644)
}

func (f *fakeTranscoder) Concat(ctx context.Context, inputPaths []string, outputPath string) error {
	f.mu.Lock()
	f.concatIn = append([]string(nil), inputPaths...)
	if f.concatByOut == nil {
		f.concatByOut = make(map[string][]string)
	}
	f.concatByOut[outputPath] = append([]string(nil), inputPaths...)
	f.mu.Unlock()
	return os.WriteFile(outputPath, []byte("final"), 0o644)
}

func (f *fakeTranscoder) Probe(ctx context.Context, path string) (media.MediaInfo, error) {
	if f.probe != nil {
		return f.probe(ctx, path)
	}
	return goodInfo(), nil
}

type testEnv struct {
	cfg *config.Config
	st  *store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Paths.TempDir = t.TempDir()

	st, err := store.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return &testEnv{cfg: &cfg, st: st}
}

func (e *testEnv) seedProject(t *testing.T, completedClips int) string {
	t.Helper()
	ctx := context.Background()
	project, err := e.st.CreateProject(ctx, "reel", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	for i := 0; i < completedClips; i++ {
		clip := &store.Clip{ProjectID: project.ID, Name: fmt.Sprintf("shot %d", i+1), Prompt: "x"}
		if err := e.st.CreateClip(ctx, clip); err != nil {
			t.Fatalf("create clip: %v", err)
		}
		videoPath := filepath.Join(e.cfg.Paths.OutputDir, clip.ID+".mp4")
		if err := os.WriteFile(videoPath, []byte("clip"), 0o644); err != nil {
			t.Fatalf("write clip file: %v", err)
		}
		if err := e.st.UpdateClipStatus(ctx, clip.ID, store.ClipCompleted, videoPath, ""); err != nil {
			t.Fatalf("complete clip: %v", err)
		}
	}
	return project.ID
}

func TestExportNoCompletedClips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	project, err := env.st.CreateProject(ctx, "empty", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	tr := &fakeTranscoder{}
	pipeline := New(env.cfg, env.st, tr, nil)
	_, err = pipeline.Export(ctx, project.ID)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(tr.normalized) != 0 || len(tr.concatIn) != 0 {
		t.Fatal("no transcoder work expected")
	}
	jobs, err := env.st.ListExportJobs(ctx, project.ID)
	if err != nil {
		t.Fatalf("list export jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no export job persisted, got %d", len(jobs))
	}
}

func TestExportHappyPath(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.seedProject(t, 3)

	tr := &fakeTranscoder{}
	pipeline := New(env.cfg, env.st, tr, nil)
	job, err := pipeline.Export(context.Background(), projectID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if job.Status != store.ExportCompleted {
		t.Fatalf("expected completed export, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.ProgressPercent != 100 {
		t.Fatalf("expected 100%% progress, got %d", job.ProgressPercent)
	}
	if len(job.ClipIDs) != 3 {
		t.Fatalf("expected 3 snapshotted clips, got %d", len(job.ClipIDs))
	}
	if !strings.Contains(job.QualityReport, `"overall_score":98`) {
		t.Fatalf("unexpected quality report %q", job.QualityReport)
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
	if len(tr.normalized) != 3 {
		t.Fatalf("expected 3 normalize calls, got %d", len(tr.normalized))
	}
	// Concat inputs must follow sequence order regardless of worker timing.
	for i, path := range tr.concatIn {
		want := fmt.Sprintf("normalized_%03d.mp4", i)
		if filepath.Base(path) != want {
			t.Fatalf("concat input %d = %s, want %s", i, filepath.Base(path), want)
		}
	}

	entries, err := os.ReadDir(env.cfg.Paths.TempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected temp dir cleaned up, found %d entries", len(entries))
	}
}

func TestExportProgressStepPercentages(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.seedProject(t, 2)

	type observation struct {
		step    string
		percent int
	}
	var observed []observation
	tr := &fakeTranscoder{}
	tr.probe = func(ctx context.Context, path string) (media.MediaInfo, error) {
		if strings.Contains(filepath.Base(path), "export_") {
			jobs, err := env.st.ListExportJobs(ctx, projectID)
			if err != nil {
				t.Errorf("list jobs: %v", err)
			} else if len(jobs) == 1 {
				observed = append(observed, observation{jobs[0].CurrentStep, jobs[0].ProgressPercent})
			}
		}
		return goodInfo(), nil
	}
	pipeline := New(env.cfg, env.st, tr, nil)
	job, err := pipeline.Export(context.Background(), projectID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if job.Status != store.ExportCompleted {
		t.Fatalf("expected completed export, got %s (%s)", job.Status, job.ErrorMessage)
	}

	// Four steps, so entering the output probe means two of them are done.
	if len(observed) != 1 {
		t.Fatalf("expected one output probe, got %d", len(observed))
	}
	if observed[0].step != "probing" || observed[0].percent != 50 {
		t.Fatalf("expected probing at 50%%, got %s at %d%%", observed[0].step, observed[0].percent)
	}
	if job.ProgressPercent != 100 {
		t.Fatalf("expected 100%% on completion, got %d", job.ProgressPercent)
	}
}

func TestConcurrentExportsIsolated(t *testing.T) {
	env := newTestEnv(t)
	projectA := env.seedProject(t, 2)
	projectB := env.seedProject(t, 2)

	tr := &fakeTranscoder{}
	pipeline := New(env.cfg, env.st, tr, nil)

	type result struct {
		job *store.ExportJob
		err error
	}
	results := make(chan result, 2)
	for _, projectID := range []string{projectA, projectB} {
		go func(id string) {
			job, err := pipeline.Export(context.Background(), id)
			results <- result{job: job, err: err}
		}(projectID)
	}

	jobs := make(map[string]*store.ExportJob, 2)
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("export: %v", r.err)
		}
		if r.job.Status != store.ExportCompleted {
			t.Fatalf("expected completed export, got %s (%s)", r.job.Status, r.job.ErrorMessage)
		}
		jobs[r.job.ProjectID] = r.job
	}

	ctx := context.Background()
	for projectID, job := range jobs {
		clips, err := env.st.ListCompletedClips(ctx, projectID)
		if err != nil {
			t.Fatalf("list clips: %v", err)
		}
		ownSources := make(map[string]bool, len(clips))
		for _, clip := range clips {
			ownSources[clip.VideoPath] = true
		}
		inputs := tr.concatByOut[job.OutputPath]
		if len(inputs) != len(clips) {
			t.Fatalf("project %s: concat got %d inputs, want %d", projectID, len(inputs), len(clips))
		}
		for _, normalized := range inputs {
			source := tr.sourceOf[normalized]
			if !ownSources[source] {
				t.Errorf("project %s: concat input %s came from foreign clip %s", projectID, normalized, source)
			}
		}
	}
}

func TestExportNormalizeFailure(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.seedProject(t, 2)

	tr := &fakeTranscoder{
		normalize: func(ctx context.Context, inputPath, outputPath string, profile media.Profile) error {
			if strings.Contains(outputPath, "normalized_001") {
				return services.Wrap(services.ErrTranscode, "transcoder", "normalize", "encode failed", nil)
			}
			return nil
		},
	}
	pipeline := New(env.cfg, env.st, tr, nil)
	job, err := pipeline.Export(context.Background(), projectID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if job.Status != store.ExportFailed {
		t.Fatalf("expected failed export, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "encode failed") {
		t.Fatalf("expected encode failure message, got %q", job.ErrorMessage)
	}
	if len(tr.concatIn) != 0 {
		t.Fatal("concat must not run after normalize failure")
	}

	entries, err := os.ReadDir(env.cfg.Paths.TempDir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatal("expected temp dir cleaned up on failure")
	}
}

func TestExportInvalidOutput(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.seedProject(t, 1)

	tr := &fakeTranscoder{
		probe: func(ctx context.Context, path string) (media.MediaInfo, error) {
			return media.MediaInfo{Duration: 0, Width: 0, Height: 0, FPS: 0, SizeBytes: 10}, nil
		},
	}
	pipeline := New(env.cfg, env.st, tr, nil)
	job, err := pipeline.Export(context.Background(), projectID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if job.Status != store.ExportFailed {
		t.Fatalf("expected failed export, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "invalid duration") {
		t.Fatalf("expected validation issues in message, got %q", job.ErrorMessage)
	}
}

func TestExportCancelledMidway(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.seedProject(t, 2)

	var pipeline *Pipeline
	tr := &fakeTranscoder{}
	tr.normalize = func(ctx context.Context, inputPath, outputPath string, profile media.Profile) error {
		// Cancel the job while normalization is in flight.
		jobs, err := env.st.ListExportJobs(context.Background(), projectID)
		if err != nil || len(jobs) == 0 {
			t.Errorf("load export job: %v", err)
			return nil
		}
		if _, err := env.st.CancelExportJob(context.Background(), jobs[0].ID); err != nil {
			t.Errorf("cancel export: %v", err)
		}
		return nil
	}
	pipeline = New(env.cfg, env.st, tr, nil)

	job, err := pipeline.Export(context.Background(), projectID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if job.Status != store.ExportCancelled {
		t.Fatalf("expected cancelled export to stay cancelled, got %s", job.Status)
	}
	if len(tr.concatIn) != 0 {
		t.Fatal("concat must not run after cancellation")
	}
}

func TestExportRejectsNonUniformClips(t *testing.T) {
	env := newTestEnv(t)
	projectID := env.seedProject(t, 2)

	tr := &fakeTranscoder{}
	tr.probe = func(ctx context.Context, path string) (media.MediaInfo, error) {
		info := goodInfo()
		if strings.Contains(path, "normalized_001") {
			info.Codec = "hevc"
		}
		return info, nil
	}
	pipeline := New(env.cfg, env.st, tr, nil)

	job, err := pipeline.Export(context.Background(), projectID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if job.Status != store.ExportFailed {
		t.Fatalf("expected failed export, got %s", job.Status)
	}
	if !strings.Contains(job.ErrorMessage, "not uniform") {
		t.Fatalf("unexpected error message: %s", job.ErrorMessage)
	}
	if len(tr.concatIn) != 0 {
		t.Fatal("concat must not run on mismatched inputs")
	}
}
