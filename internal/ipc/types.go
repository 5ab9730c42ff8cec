package ipc

import (
	"time"

	"github.com/mfleurival/movie-tool/internal/store"
)

// ProjectInfo is the wire form of a project record.
type ProjectInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// CharacterInfo is the wire form of a character record.
type CharacterInfo struct {
	ID                string `json:"id"`
	ProjectID         string `json:"project_id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	ReferenceImage    string `json:"reference_image"`
	PreferredProvider string `json:"preferred_provider"`
}

// ClipInfo is the wire form of a clip record.
type ClipInfo struct {
	ID               string  `json:"id"`
	ProjectID        string  `json:"project_id"`
	Name             string  `json:"name"`
	Prompt           string  `json:"prompt"`
	SequencePosition int     `json:"sequence_position"`
	Status           string  `json:"status"`
	VideoPath        string  `json:"video_path"`
	ThumbnailPath    string  `json:"thumbnail_path"`
	Duration         float64 `json:"duration"`
	Resolution       string  `json:"resolution"`
	FileSize         int64   `json:"file_size"`
	ErrorMessage     string  `json:"error_message"`
	UpdatedAt        string  `json:"updated_at"`
}

// JobInfo is the wire form of a generation job record.
type JobInfo struct {
	ID             string `json:"id"`
	ClipID         string `json:"clip_id"`
	Provider       string `json:"provider"`
	ModelType      string `json:"model_type"`
	Status         string `json:"status"`
	ExternalTaskID string `json:"external_task_id"`
	Attempts       int    `json:"attempts"`
	VideoPath      string `json:"video_path"`
	ErrorMessage   string `json:"error_message"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ExportInfo is the wire form of an export job record.
type ExportInfo struct {
	ID              string `json:"id"`
	ProjectID       string `json:"project_id"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	CurrentStep     string `json:"current_step"`
	OutputPath      string `json:"output_path"`
	QualityReport   string `json:"quality_report"`
	ErrorMessage    string `json:"error_message"`
	ClipCount       int    `json:"clip_count"`
	UpdatedAt       string `json:"updated_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func fromProject(p *store.Project) ProjectInfo {
	return ProjectInfo{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		CreatedAt:   formatTime(p.CreatedAt),
	}
}

func fromCharacter(c *store.Character) CharacterInfo {
	return CharacterInfo{
		ID:                c.ID,
		ProjectID:         c.ProjectID,
		Name:              c.Name,
		Description:       c.Description,
		ReferenceImage:    c.ReferenceImage,
		PreferredProvider: c.PreferredProvider,
	}
}

func fromClip(c *store.Clip) ClipInfo {
	return ClipInfo{
		ID:               c.ID,
		ProjectID:        c.ProjectID,
		Name:             c.Name,
		Prompt:           c.Prompt,
		SequencePosition: c.SequencePosition,
		Status:           string(c.Status),
		VideoPath:        c.VideoPath,
		ThumbnailPath:    c.ThumbnailPath,
		Duration:         c.Duration,
		Resolution:       c.Resolution,
		FileSize:         c.FileSize,
		ErrorMessage:     c.ErrorMessage,
		UpdatedAt:        formatTime(c.UpdatedAt),
	}
}

func fromJob(j *store.GenerationJob) JobInfo {
	return JobInfo{
		ID:             j.ID,
		ClipID:         j.ClipID,
		Provider:       j.Provider,
		ModelType:      j.ModelType,
		Status:         string(j.Status),
		ExternalTaskID: j.ExternalTaskID,
		Attempts:       j.Attempts,
		VideoPath:      j.VideoPath,
		ErrorMessage:   j.ErrorMessage,
		CreatedAt:      formatTime(j.CreatedAt),
		UpdatedAt:      formatTime(j.UpdatedAt),
	}
}

func fromExport(j *store.ExportJob) ExportInfo {
	return ExportInfo{
		ID:              j.ID,
		ProjectID:       j.ProjectID,
		Status:          string(j.Status),
		ProgressPercent: j.ProgressPercent,
		CurrentStep:     j.CurrentStep,
		OutputPath:      j.OutputPath,
		QualityReport:   j.QualityReport,
		ErrorMessage:    j.ErrorMessage,
		ClipCount:       len(j.ClipIDs),
		UpdatedAt:       formatTime(j.UpdatedAt),
	}
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime and store summary information.
type StatusResponse struct {
	Running            bool   `json:"running"`
	ActiveGenerations  int    `json:"active_generations"`
	PendingGenerations int    `json:"pending_generations"`
	ActiveExports      int    `json:"active_exports"`
	CompletedClips     int    `json:"completed_clips"`
	FailedClips        int    `json:"failed_clips"`
	DatabasePath       string `json:"database_path"`
	LockPath           string `json:"lock_path"`
	SocketPath         string `json:"socket_path"`
}

// ProjectCreateRequest creates a new project.
type ProjectCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ProjectCreateResponse contains the created project.
type ProjectCreateResponse struct {
	Project ProjectInfo `json:"project"`
}

// ProjectListRequest lists all projects.
type ProjectListRequest struct{}

// ProjectListResponse contains project entries.
type ProjectListResponse struct {
	Projects []ProjectInfo `json:"projects"`
}

// CharacterAddRequest registers a character with a reference image.
type CharacterAddRequest struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImagePath   string `json:"image_path"`
	Provider    string `json:"provider"`
}

// CharacterAddResponse contains the registered character.
type CharacterAddResponse struct {
	Character CharacterInfo `json:"character"`
}

// CharacterListRequest lists a project's characters.
type CharacterListRequest struct {
	ProjectID string `json:"project_id"`
}

// CharacterListResponse contains character entries.
type CharacterListResponse struct {
	Characters []CharacterInfo `json:"characters"`
}

// ClipAddRequest creates a pending clip. Sequence zero means append.
type ClipAddRequest struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Prompt    string `json:"prompt"`
	Sequence  int    `json:"sequence"`
}

// ClipAddResponse contains the created clip.
type ClipAddResponse struct {
	Clip ClipInfo `json:"clip"`
}

// ClipListRequest lists a project's clips in sequence order.
type ClipListRequest struct {
	ProjectID string `json:"project_id"`
}

// ClipListResponse contains clip entries.
type ClipListResponse struct {
	Clips []ClipInfo `json:"clips"`
}

// GenerateRequest starts a generation job for a clip.
type GenerateRequest struct {
	ClipID          string   `json:"clip_id"`
	Provider        string   `json:"provider"`
	Model           string   `json:"model"`
	Prompt          string   `json:"prompt"`
	Duration        int      `json:"duration"`
	Resolution      string   `json:"resolution"`
	ReferenceImage  string   `json:"reference_image"`
	CameraMovements []string `json:"camera_movements"`
}

// GenerateResponse contains the started job.
type GenerateResponse struct {
	Job JobInfo `json:"job"`
}

// GenerateCancelRequest cancels an in-flight generation job.
type GenerateCancelRequest struct {
	JobID string `json:"job_id"`
}

// GenerateCancelResponse reports whether the job was cancelled.
type GenerateCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// JobListRequest filters generation jobs by status.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
}

// JobListResponse contains generation job entries.
type JobListResponse struct {
	Jobs []JobInfo `json:"jobs"`
}

// ExportStartRequest assembles a project's completed clips.
type ExportStartRequest struct {
	ProjectID string `json:"project_id"`
}

// ExportStartResponse contains the started export job.
type ExportStartResponse struct {
	Job ExportInfo `json:"job"`
}

// ExportCancelRequest cancels an export job.
type ExportCancelRequest struct {
	JobID string `json:"job_id"`
}

// ExportCancelResponse reports whether the export was cancelled.
type ExportCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ExportListRequest lists export jobs, optionally scoped to a project.
type ExportListRequest struct {
	ProjectID string `json:"project_id"`
}

// ExportListResponse contains export job entries.
type ExportListResponse struct {
	Jobs []ExportInfo `json:"jobs"`
}

// ExportDescribeRequest fetches a single export job by id.
type ExportDescribeRequest struct {
	JobID string `json:"job_id"`
}

// ExportDescribeResponse contains a single export job.
type ExportDescribeResponse struct {
	Job ExportInfo `json:"job"`
}
