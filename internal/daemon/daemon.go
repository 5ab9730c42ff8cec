package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/export"
	"github.com/mfleurival/movie-tool/internal/fileutil"
	"github.com/mfleurival/movie-tool/internal/generation"
	"github.com/mfleurival/movie-tool/internal/logging"
	"github.com/mfleurival/movie-tool/internal/services"
	"github.com/mfleurival/movie-tool/internal/store"
)

var referenceImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// Daemon coordinates generation and export processing and enforces
// single-instance execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	orchestrator *generation.Orchestrator
	pipeline     *export.Pipeline
	logPath      string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	exports sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Summary      store.Summary
	DatabasePath string
	LockFilePath string
	SocketPath   string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, orch *generation.Orchestrator, pipeline *export.Pipeline) (*Daemon, error) {
	if cfg == nil || st == nil || logger == nil || orch == nil || pipeline == nil {
		return nil, errors.New("daemon requires config, store, logger, orchestrator, and export pipeline")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "movietool.lock")
	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        st,
		orchestrator: orch,
		pipeline:     pipeline,
		logPath:      filepath.Join(cfg.Paths.LogDir, "movietool.log"),
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and begins accepting work.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another movietool daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.running.Store(true)
	d.logger.Info("movietool daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop drains in-flight work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.orchestrator.Wait()
	d.exports.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("movietool daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// CreateProject creates a new project container.
func (d *Daemon) CreateProject(ctx context.Context, name, description string) (*store.Project, error) {
	return d.store.CreateProject(ctx, name, description)
}

// ListProjects returns every project, newest first.
func (d *Daemon) ListProjects(ctx context.Context) ([]*store.Project, error) {
	return d.store.ListProjects(ctx)
}

// AddClip creates a pending clip in the given project. A sequence of zero
// appends the clip after the project's current highest position.
func (d *Daemon) AddClip(ctx context.Context, projectID, name, prompt string, sequence int) (*store.Clip, error) {
	clip := &store.Clip{
		ProjectID:        projectID,
		Name:             name,
		Prompt:           prompt,
		SequencePosition: sequence,
	}
	if err := d.store.CreateClip(ctx, clip); err != nil {
		return nil, err
	}
	return clip, nil
}

// ListClips returns a project's clips in sequence order.
func (d *Daemon) ListClips(ctx context.Context, projectID string) ([]*store.Clip, error) {
	return d.store.ListClips(ctx, projectID)
}

// AddCharacter imports a reference image into the managed character
// directory and registers the character for subject-to-video generation.
func (d *Daemon) AddCharacter(ctx context.Context, projectID, name, description, imagePath, provider string) (*store.Character, error) {
	trimmed := strings.TrimSpace(imagePath)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "daemon", "add character", "reference image is required", nil)
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve reference image path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat reference image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("reference image %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	if _, ok := referenceImageExtensions[ext]; !ok {
		return nil, fmt.Errorf("unsupported reference image extension %q", ext)
	}

	character := &store.Character{
		ProjectID:         projectID,
		Name:              name,
		Description:       description,
		PreferredProvider: provider,
	}
	// Copy before insert so a failed copy never leaves a dangling record.
	managed := filepath.Join(d.cfg.Paths.CharacterDir, projectID, name+ext)
	if err := fileutil.CopyFileVerified(absPath, managed); err != nil {
		return nil, fmt.Errorf("import reference image: %w", err)
	}
	character.ReferenceImage = managed
	if err := d.store.CreateCharacter(ctx, character); err != nil {
		_ = os.Remove(managed)
		return nil, err
	}
	d.logger.Info("character reference imported",
		logging.String(logging.FieldProjectID, projectID),
		logging.String("character", character.ID),
		logging.String("image", managed))
	return character, nil
}

// ListCharacters returns a project's characters.
func (d *Daemon) ListCharacters(ctx context.Context, projectID string) ([]*store.Character, error) {
	return d.store.ListCharacters(ctx, projectID)
}

// Generate starts a background generation job for a clip.
func (d *Daemon) Generate(ctx context.Context, params generation.Params) (*store.GenerationJob, error) {
	if !d.running.Load() {
		return nil, errors.New("daemon is not running")
	}
	return d.orchestrator.Begin(ctx, params)
}

// CancelGeneration requests cancellation of an in-flight generation job.
func (d *Daemon) CancelGeneration(ctx context.Context, jobID string) (bool, error) {
	return d.orchestrator.Cancel(ctx, jobID)
}

// ListGenerationJobs returns generation jobs filtered by optional statuses.
func (d *Daemon) ListGenerationJobs(ctx context.Context, statuses []store.JobStatus) ([]*store.GenerationJob, error) {
	return d.store.ListGenerationJobs(ctx, statuses...)
}

// StartExport validates and snapshots an export job, then processes it in
// the background. The returned record is already in the processing state.
func (d *Daemon) StartExport(ctx context.Context, projectID string) (*store.ExportJob, error) {
	if !d.running.Load() {
		return nil, errors.New("daemon is not running")
	}
	job, clips, err := d.pipeline.Begin(ctx, projectID)
	if err != nil {
		return nil, err
	}

	runCtx := d.ctx
	d.exports.Add(1)
	go func() {
		defer d.exports.Done()
		if _, procErr := d.pipeline.Process(runCtx, job, clips); procErr != nil {
			d.logger.Error("export processing failed",
				logging.String("export_id", job.ID), logging.Error(procErr))
		}
	}()
	return d.store.GetExportJob(ctx, job.ID)
}

// CancelExport requests cancellation of an export job.
func (d *Daemon) CancelExport(ctx context.Context, jobID string) (bool, error) {
	return d.store.CancelExportJob(ctx, jobID)
}

// GetExportJob fetches one export job.
func (d *Daemon) GetExportJob(ctx context.Context, jobID string) (*store.ExportJob, error) {
	return d.store.GetExportJob(ctx, jobID)
}

// ListExports returns export jobs, optionally scoped to a project.
func (d *Daemon) ListExports(ctx context.Context, projectID string) ([]*store.ExportJob, error) {
	return d.store.ListExportJobs(ctx, projectID)
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	summary, err := d.store.Summarize(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		Summary:      summary,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		SocketPath:   d.cfg.Paths.SocketPath,
	}, nil
}
