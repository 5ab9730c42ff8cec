package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mfleurival/movie-tool/internal/services"
)

const jobColumns = `id, clip_id, provider, model_type, prompt, duration, resolution, reference_image,
	camera_movements, status, external_task_id, attempts, video_path, error_message, created_at, updated_at`

func scanGenerationJob(row interface{ Scan(...any) error }) (*GenerationJob, error) {
	var j GenerationJob
	var status, movements, created, updated string
	if err := row.Scan(&j.ID, &j.ClipID, &j.Provider, &j.ModelType, &j.Prompt, &j.Duration, &j.Resolution,
		&j.ReferenceImage, &movements, &status, &j.ExternalTaskID, &j.Attempts, &j.VideoPath, &j.ErrorMessage,
		&created, &updated); err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	if movements != "" {
		if err := json.Unmarshal([]byte(movements), &j.CameraMovements); err != nil {
			return nil, fmt.Errorf("decode camera movements: %w", err)
		}
	}
	return &j, nil
}

// CreateGenerationJob inserts a new job after verifying the invariant that a
// clip has at most one non-terminal generation job.
func (s *Store) CreateGenerationJob(ctx context.Context, j *GenerationJob) error {
	if j == nil {
		return errors.New("job required")
	}
	if strings.TrimSpace(j.ClipID) == "" {
		return services.Wrap(services.ErrValidation, "store", "create generation job", "clip id required", nil)
	}
	ctx = ensureContext(ctx)
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	movements, err := json.Marshal(j.CameraMovements)
	if err != nil {
		return fmt.Errorf("encode camera movements: %w", err)
	}
	now := nowUTC()
	j.CreatedAt = parseTime(now)
	j.UpdatedAt = parseTime(now)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin job tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var open int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM generation_jobs WHERE clip_id = ? AND status NOT IN (?, ?, ?)`,
			j.ClipID, string(JobCompleted), string(JobFailed), string(JobCancelled)).Scan(&open); err != nil {
			return fmt.Errorf("count open jobs: %w", err)
		}
		if open > 0 {
			return services.Wrap(services.ErrValidation, "store", "create generation job",
				"clip already has an active generation job", nil)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO generation_jobs (id, clip_id, provider, model_type, prompt, duration, resolution,
			 reference_image, camera_movements, status, external_task_id, attempts, video_path, error_message,
			 created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			j.ID, j.ClipID, j.Provider, j.ModelType, j.Prompt, j.Duration, j.Resolution,
			j.ReferenceImage, string(movements), string(j.Status), j.ExternalTaskID, j.Attempts,
			j.VideoPath, j.ErrorMessage, now, now); err != nil {
			return fmt.Errorf("insert generation job: %w", err)
		}
		return tx.Commit()
	})
}

// GetGenerationJob fetches a generation job by id.
func (s *Store) GetGenerationJob(ctx context.Context, id string) (*GenerationJob, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, id)
	job, err := scanGenerationJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "store", "get generation job", id, nil)
		}
		return nil, fmt.Errorf("scan generation job: %w", err)
	}
	return job, nil
}

// UpdateGenerationJob persists mutable job fields.
func (s *Store) UpdateGenerationJob(ctx context.Context, j *GenerationJob) error {
	if j == nil || j.ID == "" {
		return errors.New("job with id required")
	}
	now := nowUTC()
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE generation_jobs SET status = ?, external_task_id = ?, attempts = ?, video_path = ?,
		 error_message = ?, updated_at = ? WHERE id = ?`,
		string(j.Status), j.ExternalTaskID, j.Attempts, j.VideoPath, j.ErrorMessage, now, j.ID)
	if err != nil {
		return fmt.Errorf("update generation job: %w", err)
	}
	j.UpdatedAt = parseTime(now)
	return nil
}

// TransitionGenerationJob updates the status only when the job currently has
// the expected status, returning false when another writer got there first.
// Cancellation uses this to avoid resurrecting terminal jobs.
func (s *Store) TransitionGenerationJob(ctx context.Context, id string, from, to JobStatus) (bool, error) {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE generation_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), nowUTC(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("transition generation job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListGenerationJobs returns jobs filtered by status; an empty filter
// returns everything, newest first.
func (s *Store) ListGenerationJobs(ctx context.Context, statuses ...JobStatus) ([]*GenerationJob, error) {
	query := `SELECT ` + jobColumns + ` FROM generation_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query generation jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*GenerationJob
	for rows.Next() {
		job, err := scanGenerationJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan generation job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Summarize aggregates job and clip counts for the status surface.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	ctx = ensureContext(ctx)
	var summary Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT
		 (SELECT COUNT(1) FROM generation_jobs WHERE status IN (?, ?)),
		 (SELECT COUNT(1) FROM generation_jobs WHERE status = ?),
		 (SELECT COUNT(1) FROM export_jobs WHERE status IN (?, ?)),
		 (SELECT COUNT(1) FROM clips WHERE status = ?),
		 (SELECT COUNT(1) FROM clips WHERE status = ?)`,
		string(JobSubmitted), string(JobPolling),
		string(JobPending),
		string(ExportPending), string(ExportProcessing),
		string(ClipCompleted), string(ClipFailed),
	).Scan(&summary.ActiveGenerations, &summary.PendingGenerations, &summary.ActiveExports,
		&summary.CompletedClips, &summary.FailedClips)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize: %w", err)
	}
	return summary, nil
}
