package export

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/logging"
	"github.com/mfleurival/movie-tool/internal/media"
	"github.com/mfleurival/movie-tool/internal/services"
	"github.com/mfleurival/movie-tool/internal/store"
)

// Transcoder is the slice of media operations the pipeline needs.
type Transcoder interface {
	Normalize(ctx context.Context, inputPath, outputPath string, profile media.Profile) error
	Concat(ctx context.Context, inputPaths []string, outputPath string) error
	Probe(ctx context.Context, path string) (media.MediaInfo, error)
}

// Pipeline assembles a project's completed clips into one normalized,
// validated output file.
type Pipeline struct {
	store      *store.Store
	transcoder Transcoder
	cfg        *config.Config
	logger     *slog.Logger
}

// New builds a Pipeline.
func New(cfg *config.Config, st *store.Store, transcoder Transcoder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		store:      st,
		transcoder: transcoder,
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "export"),
	}
}

// Export runs the full pipeline for a project synchronously. A project with
// no completed clips fails validation before any job record or subprocess
// is created.
func (p *Pipeline) Export(ctx context.Context, projectID string) (*store.ExportJob, error) {
	job, clips, err := p.Begin(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, job, clips)
}

// Begin validates the project, creates the export job record, and snapshots
// the clip order. It performs no transcoding; callers follow up with Process.
func (p *Pipeline) Begin(ctx context.Context, projectID string) (*store.ExportJob, []*store.Clip, error) {
	clips, err := p.store.ListCompletedClips(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if len(clips) == 0 {
		return nil, nil, services.Wrap(services.ErrValidation, "export", "begin", "no completed clips to export", nil)
	}

	job, err := p.store.CreateExportJob(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	clipIDs := make([]string, len(clips))
	for i, clip := range clips {
		clipIDs[i] = clip.ID
	}
	if err := p.store.StartExportJob(ctx, job.ID, clipIDs); err != nil {
		return nil, nil, err
	}
	return job, clips, nil
}

// Process normalizes, concatenates, and validates the snapshotted clips,
// then returns the final job record.
func (p *Pipeline) Process(ctx context.Context, job *store.ExportJob, clips []*store.Clip) (*store.ExportJob, error) {
	log := p.logger.With(logging.String("export_id", job.ID), logging.String(logging.FieldProjectID, job.ProjectID))
	if runErr := p.run(ctx, log, job.ID, clips); runErr != nil {
		p.finish(ctx, log, job.ID, store.ExportFailed, "", "", runErr.Error())
		return p.store.GetExportJob(ctx, job.ID)
	}
	return p.store.GetExportJob(ctx, job.ID)
}

// exportSteps are reported in order; the percentage entering each step is
// the count of completed steps over the total.
var exportSteps = []string{"normalizing", "concatenating", "probing", "validating"}

func stepPercent(index int) int {
	return index * 100 / len(exportSteps)
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, jobID string, clips []*store.Clip) error {
	tempDir := filepath.Join(p.cfg.Paths.TempDir, "export_"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return fmt.Errorf("create export temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn("remove export temp dir", logging.Error(err))
		}
	}()

	p.progress(ctx, log, jobID, exportSteps[0], stepPercent(0))
	normalized, err := p.normalizeAll(ctx, tempDir, clips)
	if err != nil {
		return err
	}
	if p.cancelled(ctx, jobID) {
		return errCancelled
	}

	p.progress(ctx, log, jobID, exportSteps[1], stepPercent(1))
	if err := p.verifyUniform(ctx, normalized); err != nil {
		return err
	}
	outputPath := filepath.Join(p.cfg.Paths.OutputDir, "export_"+jobID+".mp4")
	if err := p.transcoder.Concat(ctx, normalized, outputPath); err != nil {
		return err
	}
	if p.cancelled(ctx, jobID) {
		return errCancelled
	}

	p.progress(ctx, log, jobID, exportSteps[2], stepPercent(2))
	info, err := p.transcoder.Probe(ctx, outputPath)
	if err != nil {
		return err
	}

	p.progress(ctx, log, jobID, exportSteps[3], stepPercent(3))
	validation := media.ValidateInfo(info, p.cfg.Export.MinOutputBytes)
	for _, warning := range validation.Warnings {
		log.Warn("output quality warning", logging.String("warning", warning))
	}
	if !validation.Valid {
		return services.Wrap(services.ErrValidation, "export", "validate output",
			strings.Join(validation.Issues, "; "), nil)
	}

	report := media.AnalyzeQuality(info)
	if p.cancelled(ctx, jobID) {
		return errCancelled
	}
	p.finish(ctx, log, jobID, store.ExportCompleted, outputPath, report.JSON(), "")
	log.Info("export completed",
		logging.String("output_path", outputPath),
		logging.Int("quality_score", report.Score),
		logging.String("rating", report.Rating))
	return nil
}

// normalizeAll re-encodes every clip to the export profile with a bounded
// worker pool, preserving sequence order in the returned paths. The first
// failure cancels the remaining work.
func (p *Pipeline) normalizeAll(ctx context.Context, tempDir string, clips []*store.Clip) ([]string, error) {
	workers := p.cfg.Export.NormalizeWorkers
	if workers <= 0 {
		workers = 2
	}
	if workers > len(clips) {
		workers = len(clips)
	}
	profile := media.ProfileFromConfig(p.cfg)

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outputs := make([]string, len(clips))
	errs := make([]error, len(clips))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				output := filepath.Join(tempDir, fmt.Sprintf("normalized_%03d.mp4", i))
				if err := p.transcoder.Normalize(workCtx, clips[i].VideoPath, output, profile); err != nil {
					errs[i] = err
					cancel()
					continue
				}
				outputs[i] = output
			}
		}()
	}

	for i := range clips {
		select {
		case indexes <- i:
		case <-workCtx.Done():
		}
	}
	close(indexes)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// verifyUniform confirms the normalized clips share codec, resolution, and
// frame rate. Stream-copy concat silently corrupts output otherwise.
func (p *Pipeline) verifyUniform(ctx context.Context, paths []string) error {
	var first media.MediaInfo
	for i, path := range paths {
		info, err := p.transcoder.Probe(ctx, path)
		if err != nil {
			return err
		}
		if i == 0 {
			first = info
			continue
		}
		if info.Codec != first.Codec || info.Width != first.Width ||
			info.Height != first.Height || math.Abs(info.FPS-first.FPS) > 0.01 {
			return services.Wrap(services.ErrValidation, "export", "concat",
				fmt.Sprintf("normalized clips are not uniform: %s is %s %s @ %.2f fps, expected %s %s @ %.2f fps",
					filepath.Base(path), info.Codec, info.Resolution(), info.FPS,
					first.Codec, first.Resolution(), first.FPS), nil)
		}
	}
	return nil
}

var errCancelled = services.Wrap(services.ErrValidation, "export", "run", "export cancelled", nil)

// cancelled reports whether the job was cancelled out from under us.
func (p *Pipeline) cancelled(ctx context.Context, jobID string) bool {
	done, err := p.store.ExportCancelled(ctx, jobID)
	if err != nil {
		return false
	}
	return done
}

func (p *Pipeline) progress(ctx context.Context, log *slog.Logger, jobID, step string, percent int) {
	if err := p.store.UpdateExportProgress(ctx, jobID, step, percent); err != nil {
		log.Warn("record export progress", logging.String("step", step), logging.Error(err))
	}
}

// finish records a terminal state, unless a cancel got there first.
func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, jobID string, status store.ExportStatus, outputPath, qualityReport, errDetail string) {
	if p.cancelled(ctx, jobID) {
		return
	}
	if err := p.store.FinishExportJob(ctx, jobID, status, outputPath, qualityReport, errDetail); err != nil {
		log.Warn("finish export job", logging.Error(err))
	}
}
