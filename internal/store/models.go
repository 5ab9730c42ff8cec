package store

import (
	"strings"
	"time"
)

// ClipStatus represents the lifecycle of a clip.
type ClipStatus string

const (
	ClipPending    ClipStatus = "pending"
	ClipProcessing ClipStatus = "processing"
	ClipCompleted  ClipStatus = "completed"
	ClipFailed     ClipStatus = "failed"
)

// JobStatus represents the lifecycle of a generation job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSubmitted JobStatus = "submitted"
	JobPolling   JobStatus = "polling"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Active reports whether the job occupies a concurrency slot.
func (s JobStatus) Active() bool {
	return s == JobSubmitted || s == JobPolling
}

// ExportStatus represents the lifecycle of an export job.
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
	ExportCancelled  ExportStatus = "cancelled"
)

// Terminal reports whether the export can no longer change state.
func (s ExportStatus) Terminal() bool {
	switch s {
	case ExportCompleted, ExportFailed, ExportCancelled:
		return true
	}
	return false
}

// ParseJobStatus converts a string into a known JobStatus.
func ParseJobStatus(value string) (JobStatus, bool) {
	normalized := JobStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case JobPending, JobSubmitted, JobPolling, JobCompleted, JobFailed, JobCancelled:
		return normalized, true
	}
	return "", false
}

// Project is a container for characters, clips, and export jobs.
type Project struct {
	ID          string
	Name        string
	Description string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Character holds a reusable subject reference for s2v generation.
type Character struct {
	ID                string
	ProjectID         string
	Name              string
	Description       string
	ReferenceImage    string
	PreferredProvider string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clip is one generated video segment belonging to a project, identified by
// its sequence position. A clip is mutated only by its owning generation job.
type Clip struct {
	ID               string
	ProjectID        string
	CharacterID      string
	Name             string
	Prompt           string
	SequencePosition int
	Status           ClipStatus
	VideoPath        string
	ThumbnailPath    string
	Duration         float64
	Resolution       string
	FileSize         int64
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GenerationJob tracks one clip's generation attempt through submission,
// polling, and download.
type GenerationJob struct {
	ID              string
	ClipID          string
	Provider        string
	ModelType       string
	Prompt          string
	Duration        int
	Resolution      string
	ReferenceImage  string
	CameraMovements []string
	Status          JobStatus
	ExternalTaskID  string
	Attempts        int
	VideoPath       string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExportJob assembles a project's completed clips into one output artifact.
// ClipIDs is snapshotted when processing starts and never mutated afterwards.
type ExportJob struct {
	ID              string
	ProjectID       string
	ClipIDs         []string
	Status          ExportStatus
	ProgressPercent int
	CurrentStep     string
	OutputPath      string
	QualityReport   string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Summary aggregates job counts for the status surface.
type Summary struct {
	ActiveGenerations  int
	PendingGenerations int
	ActiveExports      int
	CompletedClips     int
	FailedClips        int
}
