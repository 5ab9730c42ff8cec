package generation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/providers"
	"github.com/mfleurival/movie-tool/internal/services"
	"github.com/mfleurival/movie-tool/internal/store"
)

type fakeClient struct {
	name     string
	models   []providers.ModelType
	submit   func(ctx context.Context, req providers.Request) (providers.TaskHandle, error)
	poll     func(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error)
	download func(ctx context.Context, videoURL, destPath string) error
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Supports(model providers.ModelType) bool {
	for _, m := range f.models {
		if m == model {
			return true
		}
	}
	return false
}

func (f *fakeClient) Submit(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
	return f.submit(ctx, req)
}

func (f *fakeClient) Poll(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
	return f.poll(ctx, handle)
}

func (f *fakeClient) Download(ctx context.Context, videoURL, destPath string) error {
	return f.download(ctx, videoURL, destPath)
}

func writeFile(destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("mp4"), 0o644)
}

type testEnv struct {
	cfg  *config.Config
	st   *store.Store
	clip *store.Clip
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Generation.PollInterval = 1
	cfg.Generation.MaxWaitSeconds = 10

	st, err := store.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	project, err := st.CreateProject(context.Background(), "test project", "")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	clip := &store.Clip{ProjectID: project.ID, Name: "shot", Prompt: "a city at dawn"}
	if err := st.CreateClip(context.Background(), clip); err != nil {
		t.Fatalf("create clip: %v", err)
	}
	return &testEnv{cfg: &cfg, st: st, clip: clip}
}

func newOrchestrator(env *testEnv, client providers.Client) *Orchestrator {
	o := New(env.cfg, env.st, []providers.Client{client}, nil, nil)
	o.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	for name, policy := range o.policies {
		policy.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
		o.policies[name] = policy
	}
	return o
}

func TestLifecycleCompletes(t *testing.T) {
	env := newTestEnv(t)
	pollStates := []providers.TaskState{providers.StatePending, providers.StateProcessing, providers.StateCompleted}
	var polls, downloads int32

	client := &fakeClient{
		name:   "minimax",
		models: []providers.ModelType{providers.TextToVideo},
		submit: func(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
			return providers.TaskHandle{Provider: "minimax", TaskID: "task-1"}, nil
		},
		poll: func(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
			n := atomic.AddInt32(&polls, 1)
			state := pollStates[int(n)-1]
			if state == providers.StateCompleted {
				return providers.PollResult{State: state, VideoURL: "https://cdn/out.mp4"}, nil
			}
			return providers.PollResult{State: state}, nil
		},
		download: func(ctx context.Context, videoURL, destPath string) error {
			atomic.AddInt32(&downloads, 1)
			return writeFile(destPath)
		},
	}
	o := newOrchestrator(env, client)

	job, err := o.Begin(context.Background(), Params{
		ClipID:   env.clip.ID,
		Provider: "minimax",
		Model:    providers.TextToVideo,
		Prompt:   "a city at dawn",
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	o.Wait()

	final, err := env.st.GetGenerationJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if final.Status != store.JobCompleted {
		t.Fatalf("expected completed job, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if final.ExternalTaskID != "task-1" {
		t.Errorf("expected recorded task id, got %q", final.ExternalTaskID)
	}
	if atomic.LoadInt32(&polls) != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
	if atomic.LoadInt32(&downloads) != 1 {
		t.Errorf("expected exactly 1 download, got %d", downloads)
	}

	clip, err := env.st.GetClip(context.Background(), env.clip.ID)
	if err != nil {
		t.Fatalf("get clip: %v", err)
	}
	if clip.Status != store.ClipCompleted {
		t.Fatalf("expected completed clip, got %s", clip.Status)
	}
	if clip.VideoPath == "" {
		t.Fatal("expected clip video path recorded")
	}
}

func TestPollTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Generation.MaxWaitSeconds = 3
	var polls int32

	client := &fakeClient{
		name:   "minimax",
		models: []providers.ModelType{providers.TextToVideo},
		submit: func(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
			return providers.TaskHandle{TaskID: "task-1"}, nil
		},
		poll: func(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
			atomic.AddInt32(&polls, 1)
			return providers.PollResult{State: providers.StatePending}, nil
		},
		download: func(ctx context.Context, videoURL, destPath string) error {
			t.Error("download must not run after timeout")
			return nil
		},
	}
	o := newOrchestrator(env, client)

	job, err := o.Begin(context.Background(), Params{
		ClipID: env.clip.ID, Provider: "minimax", Model: providers.TextToVideo, Prompt: "x",
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	o.Wait()

	final, _ := env.st.GetGenerationJob(context.Background(), job.ID)
	if final.Status != store.JobFailed {
		t.Fatalf("expected failed job, got %s", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, services.ErrPollTimeout.Error()) {
		t.Fatalf("expected poll timeout message, got %q", final.ErrorMessage)
	}
	if atomic.LoadInt32(&polls) != 3 {
		t.Errorf("expected 3 polls with 3s budget at 1s interval, got %d", polls)
	}
}

func TestCancelHaltsPolling(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Generation.MaxWaitSeconds = 600
	firstPoll := make(chan struct{})
	var once atomic.Bool
	var polls int32

	client := &fakeClient{
		name:   "minimax",
		models: []providers.ModelType{providers.TextToVideo},
		submit: func(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
			return providers.TaskHandle{TaskID: "task-1"}, nil
		},
		poll: func(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
			atomic.AddInt32(&polls, 1)
			if once.CompareAndSwap(false, true) {
				close(firstPoll)
			}
			return providers.PollResult{State: providers.StatePending}, nil
		},
		download: func(ctx context.Context, videoURL, destPath string) error {
			t.Error("download must not run after cancel")
			return nil
		},
	}
	o := New(env.cfg, env.st, []providers.Client{client}, nil, nil)

	job, err := o.Begin(context.Background(), Params{
		ClipID: env.clip.ID, Provider: "minimax", Model: providers.TextToVideo, Prompt: "x",
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	<-firstPoll
	cancelled, err := o.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancel to take effect")
	}
	o.Wait()

	final, _ := env.st.GetGenerationJob(context.Background(), job.ID)
	if final.Status != store.JobCancelled {
		t.Fatalf("expected cancelled job, got %s", final.Status)
	}
	clip, _ := env.st.GetClip(context.Background(), env.clip.ID)
	if clip.Status != store.ClipPending {
		t.Fatalf("expected clip reset to pending, got %s", clip.Status)
	}
}

func TestCancelDuringDownloadKeepsClipPending(t *testing.T) {
	env := newTestEnv(t)
	downloadStarted := make(chan struct{})
	release := make(chan struct{})
	var once atomic.Bool

	client := &fakeClient{
		name:   "minimax",
		models: []providers.ModelType{providers.TextToVideo},
		submit: func(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
			return providers.TaskHandle{TaskID: "task-1"}, nil
		},
		poll: func(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
			return providers.PollResult{State: providers.StateCompleted, VideoURL: "https://cdn/out.mp4"}, nil
		},
		download: func(ctx context.Context, videoURL, destPath string) error {
			if once.CompareAndSwap(false, true) {
				close(downloadStarted)
			}
			<-release
			return writeFile(destPath)
		},
	}
	o := newOrchestrator(env, client)

	job, err := o.Begin(context.Background(), Params{
		ClipID: env.clip.ID, Provider: "minimax", Model: providers.TextToVideo, Prompt: "x",
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	<-downloadStarted
	cancelled, err := o.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled {
		t.Fatal("expected cancel to take effect")
	}
	close(release)
	o.Wait()

	final, _ := env.st.GetGenerationJob(context.Background(), job.ID)
	if final.Status != store.JobCancelled {
		t.Fatalf("expected cancelled job, got %s", final.Status)
	}
	clip, _ := env.st.GetClip(context.Background(), env.clip.ID)
	if clip.Status != store.ClipPending {
		t.Fatalf("expected clip to keep its post-cancel pending status, got %s", clip.Status)
	}
}

func TestSubmitRetriesThenSucceeds(t *testing.T) {
	env := newTestEnv(t)
	var submits int32

	client := &fakeClient{
		name:   "segmind",
		models: []providers.ModelType{providers.ImageToVideo},
		submit: func(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
			if atomic.AddInt32(&submits, 1) <= 2 {
				return providers.TaskHandle{}, &services.RateLimitError{RetryAfter: time.Second}
			}
			return providers.TaskHandle{Provider: "segmind", VideoURL: "https://cdn/out.mp4"}, nil
		},
		poll: func(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
			t.Error("immediate handle must skip polling")
			return providers.PollResult{}, nil
		},
		download: func(ctx context.Context, videoURL, destPath string) error {
			return writeFile(destPath)
		},
	}
	o := newOrchestrator(env, client)

	job, err := o.Begin(context.Background(), Params{
		ClipID:         env.clip.ID,
		Provider:       "segmind",
		Model:          providers.ImageToVideo,
		Prompt:         "animate",
		ReferenceImage: "/ref/frame.png",
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	o.Wait()

	final, _ := env.st.GetGenerationJob(context.Background(), job.ID)
	if final.Status != store.JobCompleted {
		t.Fatalf("expected completed job, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if atomic.LoadInt32(&submits) != 3 {
		t.Errorf("expected 3 submit attempts, got %d", submits)
	}
	if final.Attempts != 3 {
		t.Errorf("expected recorded attempts 3, got %d", final.Attempts)
	}
}

func TestRetryAttemptsFollowProviderConfig(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MiniMax.MaxAttempts = 5
	var submits int32

	client := &fakeClient{
		name:   "minimax",
		models: []providers.ModelType{providers.TextToVideo},
		submit: func(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
			atomic.AddInt32(&submits, 1)
			return providers.TaskHandle{}, &services.RateLimitError{RetryAfter: time.Second}
		},
	}
	o := newOrchestrator(env, client)

	job, err := o.Begin(context.Background(), Params{
		ClipID:   env.clip.ID,
		Provider: "minimax",
		Model:    providers.TextToVideo,
		Prompt:   "a city at dawn",
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	o.Wait()

	final, _ := env.st.GetGenerationJob(context.Background(), job.ID)
	if final.Status != store.JobFailed {
		t.Fatalf("expected failed job, got %s", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "retry") {
		t.Errorf("expected exhausted-retries error, got %q", final.ErrorMessage)
	}
	if got := atomic.LoadInt32(&submits); got != 5 {
		t.Errorf("expected 5 submit attempts from config, got %d", got)
	}
}

func TestBeginUnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	o := newOrchestrator(env, &fakeClient{name: "minimax", models: []providers.ModelType{providers.TextToVideo}})
	_, err := o.Begin(context.Background(), Params{
		ClipID: env.clip.ID, Provider: "unknown", Model: providers.TextToVideo, Prompt: "x",
	})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBeginUnsupportedModel(t *testing.T) {
	env := newTestEnv(t)
	o := newOrchestrator(env, &fakeClient{name: "segmind", models: []providers.ModelType{providers.ImageToVideo}})
	_, err := o.Begin(context.Background(), Params{
		ClipID: env.clip.ID, Provider: "segmind", Model: providers.TextToVideo, Prompt: "x",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBeginValidatesBeforeJobCreation(t *testing.T) {
	env := newTestEnv(t)
	o := newOrchestrator(env, &fakeClient{name: "minimax", models: []providers.ModelType{providers.SubjectToVideo}})
	_, err := o.Begin(context.Background(), Params{
		ClipID: env.clip.ID, Provider: "minimax", Model: providers.SubjectToVideo, Prompt: "x",
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing subject image, got %v", err)
	}
	jobs, err := env.st.ListGenerationJobs(context.Background())
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no job persisted, got %d", len(jobs))
	}
}

func TestProviderFailureMarksJobFailed(t *testing.T) {
	env := newTestEnv(t)
	client := &fakeClient{
		name:   "minimax",
		models: []providers.ModelType{providers.TextToVideo},
		submit: func(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
			return providers.TaskHandle{TaskID: "task-1"}, nil
		},
		poll: func(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
			return providers.PollResult{State: providers.StateFailed, Detail: "content policy"}, nil
		},
		download: func(ctx context.Context, videoURL, destPath string) error { return nil },
	}
	o := newOrchestrator(env, client)

	job, err := o.Begin(context.Background(), Params{
		ClipID: env.clip.ID, Provider: "minimax", Model: providers.TextToVideo, Prompt: "x",
	})
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	o.Wait()

	final, _ := env.st.GetGenerationJob(context.Background(), job.ID)
	if final.Status != store.JobFailed {
		t.Fatalf("expected failed job, got %s", final.Status)
	}
	if !strings.Contains(final.ErrorMessage, "content policy") {
		t.Fatalf("expected failure detail, got %q", final.ErrorMessage)
	}
	clip, _ := env.st.GetClip(context.Background(), env.clip.ID)
	if clip.Status != store.ClipFailed {
		t.Fatalf("expected failed clip, got %s", clip.Status)
	}
}
