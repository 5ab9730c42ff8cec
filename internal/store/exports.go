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

const exportColumns = `id, project_id, clip_ids, status, progress_percent, current_step,
	output_path, quality_report, error_message, created_at, updated_at`

func scanExportJob(row interface{ Scan(...any) error }) (*ExportJob, error) {
	var j ExportJob
	var status, clipIDs, created, updated string
	if err := row.Scan(&j.ID, &j.ProjectID, &clipIDs, &status, &j.ProgressPercent, &j.CurrentStep,
		&j.OutputPath, &j.QualityReport, &j.ErrorMessage, &created, &updated); err != nil {
		return nil, err
	}
	j.Status = ExportStatus(status)
	j.CreatedAt = parseTime(created)
	j.UpdatedAt = parseTime(updated)
	if clipIDs != "" {
		if err := json.Unmarshal([]byte(clipIDs), &j.ClipIDs); err != nil {
			return nil, fmt.Errorf("decode clip ids: %w", err)
		}
	}
	return &j, nil
}

// CreateExportJob inserts a pending export job for a project.
func (s *Store) CreateExportJob(ctx context.Context, projectID string) (*ExportJob, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create export job", "project id required", nil)
	}
	job := &ExportJob{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Status:    ExportPending,
	}
	now := nowUTC()
	job.CreatedAt = parseTime(now)
	job.UpdatedAt = parseTime(now)
	_, err := s.execWithRetry(ensureContext(ctx),
		`INSERT INTO export_jobs (id, project_id, clip_ids, status, progress_percent, current_step,
		 output_path, quality_report, error_message, created_at, updated_at)
		 VALUES (?, ?, '[]', ?, 0, '', '', '', '', ?, ?)`,
		job.ID, job.ProjectID, string(job.Status), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert export job: %w", err)
	}
	return job, nil
}

// GetExportJob fetches an export job by id.
func (s *Store) GetExportJob(ctx context.Context, id string) (*ExportJob, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+exportColumns+` FROM export_jobs WHERE id = ?`, id)
	job, err := scanExportJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "store", "get export job", id, nil)
		}
		return nil, fmt.Errorf("scan export job: %w", err)
	}
	return job, nil
}

// StartExportJob snapshots the clip sequence and moves the job to
// processing. The snapshot is immutable from this point on.
func (s *Store) StartExportJob(ctx context.Context, id string, clipIDs []string) error {
	encoded, err := json.Marshal(clipIDs)
	if err != nil {
		return fmt.Errorf("encode clip ids: %w", err)
	}
	_, err = s.execWithRetry(ensureContext(ctx),
		`UPDATE export_jobs SET status = ?, clip_ids = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(ExportProcessing), string(encoded), nowUTC(), id, string(ExportPending))
	if err != nil {
		return fmt.Errorf("start export job: %w", err)
	}
	return nil
}

// UpdateExportProgress records the current step label and percentage.
func (s *Store) UpdateExportProgress(ctx context.Context, id, step string, percent int) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE export_jobs SET current_step = ?, progress_percent = ?, updated_at = ? WHERE id = ?`,
		step, percent, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("update export progress: %w", err)
	}
	return nil
}

// FinishExportJob records the terminal state of an export.
func (s *Store) FinishExportJob(ctx context.Context, id string, status ExportStatus, outputPath, qualityReport, errDetail string) error {
	percent := 100
	if status != ExportCompleted {
		percent = -1 // keep existing
	}
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE export_jobs SET status = ?, output_path = ?, quality_report = ?, error_message = ?,
		 progress_percent = CASE WHEN ? >= 0 THEN ? ELSE progress_percent END, updated_at = ?
		 WHERE id = ?`,
		string(status), outputPath, qualityReport, errDetail, percent, percent, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("finish export job: %w", err)
	}
	return nil
}

// CancelExportJob marks a pending or processing export cancelled. Returns
// false when the job was already terminal.
func (s *Store) CancelExportJob(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE export_jobs SET status = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(ExportCancelled), nowUTC(), id, string(ExportPending), string(ExportProcessing))
	if err != nil {
		return false, fmt.Errorf("cancel export job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel rows affected: %w", err)
	}
	return affected == 1, nil
}

// ExportCancelled reports whether the job has been cancelled out from under
// a running pipeline.
func (s *Store) ExportCancelled(ctx context.Context, id string) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT status FROM export_jobs WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("read export status: %w", err)
	}
	return ExportStatus(status) == ExportCancelled, nil
}

// ListExportJobs returns a project's export jobs, newest first. An empty
// projectID returns every job.
func (s *Store) ListExportJobs(ctx context.Context, projectID string) ([]*ExportJob, error) {
	query := `SELECT ` + exportColumns + ` FROM export_jobs`
	var args []any
	if strings.TrimSpace(projectID) != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query export jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ExportJob
	for rows.Next() {
		job, err := scanExportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
