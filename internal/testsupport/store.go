package testsupport

import (
	"context"
	"testing"

	"github.com/mfleurival/movie-tool/internal/config"
	"github.com/mfleurival/movie-tool/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewProject creates a project for tests using the provided store.
func NewProject(t testing.TB, st *store.Store, name string) *store.Project {
	t.Helper()

	project, err := st.CreateProject(context.Background(), name, "")
	if err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}
	return project
}

// NewClip creates a pending clip in the given project.
func NewClip(t testing.TB, st *store.Store, projectID, name, prompt string) *store.Clip {
	t.Helper()

	clip := &store.Clip{
		ProjectID: projectID,
		Name:      name,
		Prompt:    prompt,
	}
	if err := st.CreateClip(context.Background(), clip); err != nil {
		t.Fatalf("store.CreateClip: %v", err)
	}
	return clip
}
