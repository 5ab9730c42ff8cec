package generation

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/logging"
	"github.com/mfleurival/movie-tool/internal/media"
	"github.com/mfleurival/movie-tool/internal/providers"
	"github.com/mfleurival/movie-tool/internal/retry"
	"github.com/mfleurival/movie-tool/internal/services"
	"github.com/mfleurival/movie-tool/internal/store"
)

// Params describes one generation attempt for a clip.
type Params struct {
	ClipID          string
	Provider        string
	Model           providers.ModelType
	Prompt          string
	Duration        int
	Resolution      string
	ReferenceImage  string
	CameraMovements []string
}

// Orchestrator drives generation jobs through submit, poll, and download.
// A bounded number of jobs run concurrently; the rest wait for a slot.
type Orchestrator struct {
	store      *store.Store
	clients    map[string]providers.Client
	transcoder *media.Transcoder
	cfg        *config.Config
	logger     *slog.Logger
	policies   map[string]retry.Policy

	sem   chan struct{}
	wg    sync.WaitGroup
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds an Orchestrator. The transcoder is optional; without it clip
// thumbnails and probed metadata are skipped after download.
func New(cfg *config.Config, st *store.Store, clients []providers.Client, transcoder *media.Transcoder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	maxConcurrent := cfg.Generation.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	byName := make(map[string]providers.Client, len(clients))
	policies := make(map[string]retry.Policy, len(clients))
	for _, client := range clients {
		byName[client.Name()] = client
		policies[client.Name()] = providerPolicy(cfg, client.Name())
	}
	return &Orchestrator{
		store:      st,
		clients:    byName,
		transcoder: transcoder,
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "generation"),
		policies:   policies,
		sem:        make(chan struct{}, maxConcurrent),
		sleep:      waitContext,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// providerPolicy builds the retry policy from the provider's configured
// attempt budget and base delay. Zero values keep the defaults.
func providerPolicy(cfg *config.Config, name string) retry.Policy {
	policy := retry.Default()
	p, ok := cfg.ProviderFor(name)
	if !ok {
		return policy
	}
	if p.MaxAttempts > 0 {
		policy.MaxAttempts = p.MaxAttempts
	}
	if p.RetryBaseDelay > 0 {
		policy.BaseDelay = time.Duration(p.RetryBaseDelay) * time.Second
	}
	return policy
}

func (o *Orchestrator) policyFor(provider string) retry.Policy {
	if policy, ok := o.policies[provider]; ok {
		return policy
	}
	return retry.Default()
}

// Begin validates the request, persists a pending job, and starts the
// lifecycle in the background. The returned job is the persisted record.
func (o *Orchestrator) Begin(ctx context.Context, p Params) (*store.GenerationJob, error) {
	client, ok := o.clients[p.Provider]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "generation", "begin",
			fmt.Sprintf("provider %q not configured", p.Provider), nil)
	}
	if !client.Supports(p.Model) {
		return nil, services.Wrap(services.ErrValidation, "generation", "begin",
			fmt.Sprintf("provider %s does not support %s", p.Provider, p.Model), nil)
	}
	if p.Duration <= 0 {
		p.Duration = o.cfg.Generation.DefaultDuration
	}
	if strings.TrimSpace(p.Resolution) == "" {
		p.Resolution = o.cfg.Generation.DefaultResolution
	}
	if err := buildRequest(p).Validate(); err != nil {
		return nil, err
	}

	job := &store.GenerationJob{
		ClipID:          p.ClipID,
		Provider:        p.Provider,
		ModelType:       string(p.Model),
		Prompt:          p.Prompt,
		Duration:        p.Duration,
		Resolution:      p.Resolution,
		ReferenceImage:  p.ReferenceImage,
		CameraMovements: p.CameraMovements,
	}
	if err := o.store.CreateGenerationJob(ctx, job); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[job.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.cancels, job.ID)
			o.mu.Unlock()
			cancel()
		}()
		o.run(runCtx, client, job, p)
	}()
	return job, nil
}

// Cancel stops an active job. It reports false when the job had already
// reached a terminal state.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, error) {
	job, err := o.store.GetGenerationJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return false, nil
	}
	moved, err := o.store.TransitionGenerationJob(ctx, jobID, job.Status, store.JobCancelled)
	if err != nil {
		return false, err
	}
	if !moved {
		return false, nil
	}
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	// The clip goes back to pending so a fresh attempt can be made.
	if err := o.store.UpdateClipStatus(ctx, job.ClipID, store.ClipPending, "", ""); err != nil {
		o.logger.Warn("reset clip after cancel", logging.String(logging.FieldClipID, job.ClipID), logging.Error(err))
	}
	return true, nil
}

// Wait blocks until every running job goroutine has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) run(ctx context.Context, client providers.Client, job *store.GenerationJob, p Params) {
	ctx = services.WithJobID(ctx, job.ID)
	ctx = services.WithClipID(ctx, job.ClipID)
	log := logging.WithContext(ctx, o.logger).With(
		logging.String(logging.FieldProvider, job.Provider),
	)

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-o.sem }()

	if err := o.store.UpdateClipStatus(ctx, job.ClipID, store.ClipProcessing, "", ""); err != nil {
		log.Warn("mark clip processing", logging.Error(err))
	}

	handle, err := o.submit(ctx, client, job, p)
	if err != nil {
		o.fail(ctx, log, job, err)
		return
	}

	videoURL := handle.VideoURL
	if !handle.Immediate() {
		if moved := o.transition(ctx, log, job.ID, store.JobSubmitted, store.JobPolling); !moved {
			return
		}
		videoURL, err = o.poll(ctx, client, handle, log)
		if err != nil {
			o.fail(ctx, log, job, err)
			return
		}
	}

	destPath := filepath.Join(o.cfg.Paths.OutputDir, job.ClipID+".mp4")
	err = o.policyFor(job.Provider).Execute(ctx, func(ctx context.Context) error {
		return client.Download(ctx, videoURL, destPath)
	})
	if err != nil {
		o.fail(ctx, log, job, err)
		return
	}

	o.backfillClip(ctx, log, job.ClipID, destPath)

	// The job transitions to completed before the clip does; when a
	// cancel already landed the CAS misses and the clip keeps the
	// pending status Cancel gave it.
	job.Status = o.currentStatus(ctx, job.ID)
	if job.Status.Terminal() {
		return
	}
	if moved, err := o.store.TransitionGenerationJob(ctx, job.ID, job.Status, store.JobCompleted); err != nil || !moved {
		if err != nil {
			log.Warn("finish job", logging.Error(err))
		}
		return
	}
	if err := o.store.UpdateClipStatus(ctx, job.ClipID, store.ClipCompleted, destPath, ""); err != nil {
		log.Warn("mark clip completed", logging.Error(err))
	}
	fresh, err := o.store.GetGenerationJob(ctx, job.ID)
	if err == nil {
		fresh.VideoPath = destPath
		if err := o.store.UpdateGenerationJob(ctx, fresh); err != nil {
			log.Warn("record video path", logging.Error(err))
		}
	}
	log.Info("generation completed", logging.String("video_path", destPath))
}

// submit sends the request under the retry policy and records the external
// task reference.
func (o *Orchestrator) submit(ctx context.Context, client providers.Client, job *store.GenerationJob, p Params) (providers.TaskHandle, error) {
	var handle providers.TaskHandle
	attempts := 0
	err := o.policyFor(job.Provider).Execute(ctx, func(ctx context.Context) error {
		attempts++
		var submitErr error
		handle, submitErr = client.Submit(ctx, buildRequest(p))
		return submitErr
	})
	if err != nil {
		return providers.TaskHandle{}, err
	}

	if moved := o.transition(ctx, o.logger, job.ID, store.JobPending, store.JobSubmitted); !moved {
		return providers.TaskHandle{}, context.Canceled
	}
	fresh, getErr := o.store.GetGenerationJob(ctx, job.ID)
	if getErr == nil {
		fresh.ExternalTaskID = externalRef(handle)
		fresh.Attempts = attempts
		if err := o.store.UpdateGenerationJob(ctx, fresh); err != nil {
			o.logger.Warn("record task handle", logging.Error(err))
		}
	}
	return handle, nil
}

// poll watches the remote task until it completes, fails, or the wait
// budget runs out.
func (o *Orchestrator) poll(ctx context.Context, client providers.Client, handle providers.TaskHandle, log *slog.Logger) (string, error) {
	interval := time.Duration(o.cfg.Generation.PollInterval) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	maxWait := time.Duration(o.cfg.Generation.MaxWaitSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = 10 * time.Minute
	}
	maxPolls := int(maxWait / interval)
	if maxPolls < 1 {
		maxPolls = 1
	}

	for attempt := 0; attempt < maxPolls; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var result providers.PollResult
		err := o.policyFor(client.Name()).Execute(ctx, func(ctx context.Context) error {
			var pollErr error
			result, pollErr = client.Poll(ctx, handle)
			return pollErr
		})
		if err != nil {
			return "", err
		}

		switch result.State {
		case providers.StateCompleted:
			return result.VideoURL, nil
		case providers.StateFailed:
			return "", services.Wrap(services.ErrProvider, "generation", "poll", result.Detail, nil)
		case providers.StatePending, providers.StateProcessing:
			log.Debug("task in progress", logging.String("state", string(result.State)))
		}

		if attempt == maxPolls-1 {
			break
		}
		if err := o.sleep(ctx, interval); err != nil {
			return "", err
		}
	}
	return "", services.Wrap(services.ErrPollTimeout, "generation", "poll",
		fmt.Sprintf("no terminal state within %s", maxWait), nil)
}

// backfillClip probes the downloaded file and writes a thumbnail. Both are
// best effort; failures never fail the job.
func (o *Orchestrator) backfillClip(ctx context.Context, log *slog.Logger, clipID, videoPath string) {
	if o.transcoder == nil {
		return
	}
	info, err := o.transcoder.Probe(ctx, videoPath)
	if err != nil {
		log.Warn("probe downloaded clip", logging.Error(err))
		return
	}
	thumbnailPath := filepath.Join(o.cfg.Paths.OutputDir, clipID+"_thumb.png")
	if err := o.transcoder.Thumbnail(ctx, videoPath, thumbnailPath); err != nil {
		log.Warn("generate thumbnail", logging.Error(err))
		thumbnailPath = ""
	}
	if err := o.store.SetClipMedia(ctx, clipID, info.Duration, info.Resolution(), info.SizeBytes, thumbnailPath); err != nil {
		log.Warn("record clip metadata", logging.Error(err))
	}
}

func (o *Orchestrator) fail(ctx context.Context, log *slog.Logger, job *store.GenerationJob, cause error) {
	status := o.currentStatus(ctx, job.ID)
	if status.Terminal() {
		// Cancelled while we were working; leave the record alone.
		return
	}
	if moved, err := o.store.TransitionGenerationJob(ctx, job.ID, status, store.JobFailed); err != nil || !moved {
		return
	}
	fresh, err := o.store.GetGenerationJob(ctx, job.ID)
	if err == nil {
		fresh.ErrorMessage = cause.Error()
		if err := o.store.UpdateGenerationJob(ctx, fresh); err != nil {
			log.Warn("record failure", logging.Error(err))
		}
	}
	if err := o.store.UpdateClipStatus(ctx, job.ClipID, store.ClipFailed, "", cause.Error()); err != nil {
		log.Warn("mark clip failed", logging.Error(err))
	}
	log.Error("generation failed", logging.Error(cause))
}

func (o *Orchestrator) transition(ctx context.Context, log *slog.Logger, jobID string, from, to store.JobStatus) bool {
	moved, err := o.store.TransitionGenerationJob(ctx, jobID, from, to)
	if err != nil {
		log.Warn("job transition", logging.Error(err))
		return false
	}
	return moved
}

func (o *Orchestrator) currentStatus(ctx context.Context, jobID string) store.JobStatus {
	job, err := o.store.GetGenerationJob(ctx, jobID)
	if err != nil {
		return store.JobFailed
	}
	return job.Status
}

// buildRequest maps job parameters onto the provider request variant.
func buildRequest(p Params) providers.Request {
	switch p.Model {
	case providers.ImageToVideo:
		return providers.ImageToVideoRequest{
			ImagePath:       p.ReferenceImage,
			Prompt:          p.Prompt,
			Duration:        p.Duration,
			Resolution:      p.Resolution,
			CameraMovements: p.CameraMovements,
		}
	case providers.SubjectToVideo:
		return providers.SubjectToVideoRequest{
			SubjectImagePath: p.ReferenceImage,
			Prompt:           p.Prompt,
			Duration:         p.Duration,
			Resolution:       p.Resolution,
		}
	default:
		return providers.TextToVideoRequest{
			Prompt:          p.Prompt,
			Duration:        p.Duration,
			Resolution:      p.Resolution,
			CameraMovements: p.CameraMovements,
		}
	}
}

func externalRef(handle providers.TaskHandle) string {
	if handle.TaskID != "" {
		return handle.TaskID
	}
	return handle.FetchURL
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
