package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mfleurival/movie-tool/internal/services"
)

const clipColumns = `id, project_id, COALESCE(character_id, ''), name, prompt, sequence_position, status,
	video_path, thumbnail_path, duration, resolution, file_size, error_message, created_at, updated_at`

func scanClip(row interface{ Scan(...any) error }) (*Clip, error) {
	var c Clip
	var status, created, updated string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.CharacterID, &c.Name, &c.Prompt, &c.SequencePosition, &status,
		&c.VideoPath, &c.ThumbnailPath, &c.Duration, &c.Resolution, &c.FileSize, &c.ErrorMessage, &created, &updated); err != nil {
		return nil, err
	}
	c.Status = ClipStatus(status)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// CreateClip inserts a clip. When SequencePosition is zero or negative the
// next free position for the project is assigned (max + 1).
func (s *Store) CreateClip(ctx context.Context, c *Clip) error {
	if c == nil {
		return errors.New("clip required")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		return services.Wrap(services.ErrValidation, "store", "create clip", "project id required", nil)
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "store", "create clip", "prompt required", nil)
	}
	ctx = ensureContext(ctx)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = ClipPending
	}
	now := nowUTC()
	c.CreatedAt = parseTime(now)
	c.UpdatedAt = parseTime(now)

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin clip tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		position := c.SequencePosition
		if position <= 0 {
			if err := tx.QueryRowContext(ctx,
				`SELECT COALESCE(MAX(sequence_position), 0) + 1 FROM clips WHERE project_id = ?`,
				c.ProjectID).Scan(&position); err != nil {
				return fmt.Errorf("next sequence position: %w", err)
			}
		}
		var characterID any
		if c.CharacterID != "" {
			characterID = c.CharacterID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO clips (id, project_id, character_id, name, prompt, sequence_position, status,
			 video_path, thumbnail_path, duration, resolution, file_size, error_message, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ProjectID, characterID, c.Name, c.Prompt, position, string(c.Status),
			c.VideoPath, c.ThumbnailPath, c.Duration, c.Resolution, c.FileSize, c.ErrorMessage, now, now); err != nil {
			return fmt.Errorf("insert clip: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit clip: %w", err)
		}
		c.SequencePosition = position
		return nil
	})
}

// GetClip fetches a clip by id.
func (s *Store) GetClip(ctx context.Context, id string) (*Clip, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
	clip, err := scanClip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "store", "get clip", id, nil)
		}
		return nil, fmt.Errorf("scan clip: %w", err)
	}
	return clip, nil
}

// UpdateClipStatus transitions a clip, optionally recording the media
// reference or error detail. Empty mediaRef/errDetail leave the stored
// values untouched.
func (s *Store) UpdateClipStatus(ctx context.Context, id string, status ClipStatus, mediaRef, errDetail string) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE clips SET status = ?,
		 video_path = CASE WHEN ? != '' THEN ? ELSE video_path END,
		 error_message = CASE WHEN ? != '' THEN ? ELSE error_message END,
		 updated_at = ?
		 WHERE id = ?`,
		string(status), mediaRef, mediaRef, errDetail, errDetail, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("update clip status: %w", err)
	}
	return nil
}

// SetClipMedia backfills probed media metadata and the thumbnail reference
// after a successful download.
func (s *Store) SetClipMedia(ctx context.Context, id string, duration float64, resolution string, fileSize int64, thumbnailPath string) error {
	_, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE clips SET duration = ?, resolution = ?, file_size = ?,
		 thumbnail_path = CASE WHEN ? != '' THEN ? ELSE thumbnail_path END,
		 updated_at = ?
		 WHERE id = ?`,
		duration, resolution, fileSize, thumbnailPath, thumbnailPath, nowUTC(), id)
	if err != nil {
		return fmt.Errorf("set clip media: %w", err)
	}
	return nil
}

// ListCompletedClips returns a project's completed clips ordered by
// sequence position ascending.
func (s *Store) ListCompletedClips(ctx context.Context, projectID string) ([]*Clip, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+clipColumns+` FROM clips
		 WHERE project_id = ? AND status = ?
		 ORDER BY sequence_position ASC`,
		projectID, string(ClipCompleted))
	if err != nil {
		return nil, fmt.Errorf("query completed clips: %w", err)
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip row: %w", err)
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}

// ListClips returns every clip of a project in sequence order.
func (s *Store) ListClips(ctx context.Context, projectID string) ([]*Clip, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+clipColumns+` FROM clips WHERE project_id = ? ORDER BY sequence_position ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer rows.Close()

	var clips []*Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip row: %w", err)
		}
		clips = append(clips, clip)
	}
	return clips, rows.Err()
}
