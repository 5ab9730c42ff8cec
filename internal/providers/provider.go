package providers

import (
	"context"
	"strings"

	"github.com/mfleurival/movie-tool/internal/services"
)

// ModelType identifies a generation mode a provider may support.
type ModelType string

const (
	TextToVideo    ModelType = "t2v"
	ImageToVideo   ModelType = "i2v"
	SubjectToVideo ModelType = "s2v"
)

// ParseModelType converts a stored string into a known ModelType.
func ParseModelType(value string) (ModelType, bool) {
	normalized := ModelType(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case TextToVideo, ImageToVideo, SubjectToVideo:
		return normalized, true
	}
	return "", false
}

// Request is one of the typed generation request variants. Validate runs
// before any network activity and returns validation-tagged errors.
type Request interface {
	Model() ModelType
	Validate() error
}

// TextToVideoRequest generates a clip from a prompt alone.
type TextToVideoRequest struct {
	Prompt          string
	Duration        int
	Resolution      string
	CameraMovements []string
}

func (r TextToVideoRequest) Model() ModelType { return TextToVideo }

func (r TextToVideoRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "provider", "validate request", "prompt required for t2v", nil)
	}
	return nil
}

// ImageToVideoRequest animates a source image, optionally guided by a prompt.
type ImageToVideoRequest struct {
	ImagePath       string
	Prompt          string
	NegativePrompt  string
	Duration        int
	Resolution      string
	AspectRatio     string
	CameraMovements []string
}

func (r ImageToVideoRequest) Model() ModelType { return ImageToVideo }

func (r ImageToVideoRequest) Validate() error {
	if strings.TrimSpace(r.ImagePath) == "" {
		return services.Wrap(services.ErrValidation, "provider", "validate request", "image path required for i2v", nil)
	}
	return nil
}

// SubjectToVideoRequest generates a clip featuring a consistent character
// drawn from a reference image.
type SubjectToVideoRequest struct {
	SubjectImagePath string
	Prompt           string
	Duration         int
	Resolution       string
}

func (r SubjectToVideoRequest) Model() ModelType { return SubjectToVideo }

func (r SubjectToVideoRequest) Validate() error {
	if strings.TrimSpace(r.SubjectImagePath) == "" {
		return services.Wrap(services.ErrValidation, "provider", "validate request", "subject image required for s2v", nil)
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return services.Wrap(services.ErrValidation, "provider", "validate request", "prompt required for s2v", nil)
	}
	return nil
}

// TaskHandle identifies a submitted generation task. Exactly one of TaskID
// or FetchURL is set for tasks that require polling; VideoURL is set when
// the provider returned the finished artifact synchronously.
type TaskHandle struct {
	Provider string
	TaskID   string
	FetchURL string
	VideoURL string
}

// Immediate reports whether the task finished at submission time and needs
// no polling.
func (h TaskHandle) Immediate() bool { return h.VideoURL != "" }

// TaskState is the normalized progress of a remote generation task.
type TaskState string

const (
	StatePending    TaskState = "pending"
	StateProcessing TaskState = "processing"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
)

// PollResult is one observation of a remote task.
type PollResult struct {
	State    TaskState
	VideoURL string
	Detail   string
}

// Client is the uniform surface every generation provider exposes. One
// client instance serves one configured provider account.
type Client interface {
	Name() string
	Supports(model ModelType) bool
	Submit(ctx context.Context, req Request) (TaskHandle, error)
	Poll(ctx context.Context, handle TaskHandle) (PollResult, error)
	Download(ctx context.Context, videoURL, destPath string) error
}
