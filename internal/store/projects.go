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

// CreateProject inserts a new project and returns it.
func (s *Store) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "store", "create project", "name required", nil)
	}
	now := nowUTC()
	project := &Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      "active",
		CreatedAt:   parseTime(now),
		UpdatedAt:   parseTime(now),
	}
	_, err := s.execWithRetry(ensureContext(ctx),
		`INSERT INTO projects (id, name, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		project.ID, project.Name, project.Description, project.Status, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert project: %w", err)
	}
	return project, nil
}

// GetProject fetches a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, name, description, status, created_at, updated_at FROM projects WHERE id = ?`, id)
	var p Project
	var created, updated string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "store", "get project", id, nil)
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// ListProjects returns every project, newest first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, name, description, status, created_at, updated_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		var created, updated string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.CreatedAt = parseTime(created)
		p.UpdatedAt = parseTime(updated)
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

// CreateCharacter inserts a character belonging to a project.
func (s *Store) CreateCharacter(ctx context.Context, c *Character) error {
	if c == nil {
		return errors.New("character required")
	}
	if strings.TrimSpace(c.ProjectID) == "" || strings.TrimSpace(c.Name) == "" {
		return services.Wrap(services.ErrValidation, "store", "create character", "project id and name required", nil)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.PreferredProvider == "" {
		c.PreferredProvider = "minimax"
	}
	now := nowUTC()
	c.CreatedAt = parseTime(now)
	c.UpdatedAt = parseTime(now)
	_, err := s.execWithRetry(ensureContext(ctx),
		`INSERT INTO characters (id, project_id, name, description, reference_image, preferred_provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.ProjectID, c.Name, c.Description, c.ReferenceImage, c.PreferredProvider, now, now)
	if err != nil {
		return fmt.Errorf("insert character: %w", err)
	}
	return nil
}

// GetCharacter fetches a character by id.
func (s *Store) GetCharacter(ctx context.Context, id string) (*Character, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT id, project_id, name, description, reference_image, preferred_provider, created_at, updated_at
		 FROM characters WHERE id = ?`, id)
	var c Character
	var created, updated string
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.ReferenceImage, &c.PreferredProvider, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, services.Wrap(services.ErrNotFound, "store", "get character", id, nil)
		}
		return nil, fmt.Errorf("scan character: %w", err)
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// ListCharacters returns a project's characters ordered by name.
func (s *Store) ListCharacters(ctx context.Context, projectID string) ([]*Character, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, project_id, name, description, reference_image, preferred_provider, created_at, updated_at
		 FROM characters WHERE project_id = ? ORDER BY name`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var characters []*Character
	for rows.Next() {
		var c Character
		var created, updated string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Description, &c.ReferenceImage, &c.PreferredProvider, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		c.CreatedAt = parseTime(created)
		c.UpdatedAt = parseTime(updated)
		characters = append(characters, &c)
	}
	return characters, rows.Err()
}
