package minimax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mfleurival/movie-tool/internal/providers"
	"github.com/mfleurival/movie-tool/internal/services"
)

const (
	providerName = "minimax"

	modelStandard = "video-01"
	modelDirector = "video-01-director"

	minDuration = 6
	maxDuration = 10
)

// cameraMovements is the full set of director instructions the service
// accepts. Anything else is dropped before the prompt is built.
var cameraMovements = map[string]struct{}{
	"Truck left":    {},
	"Truck right":   {},
	"Pan left":      {},
	"Pan right":     {},
	"Push in":       {},
	"Pull out":      {},
	"Pedestal up":   {},
	"Pedestal down": {},
	"Tilt up":       {},
	"Tilt down":     {},
	"Zoom in":       {},
	"Zoom out":      {},
	"Shake":         {},
	"Tracking shot": {},
	"Static shot":   {},
}

// Client talks to the MiniMax video generation API. It supports t2v, i2v,
// and s2v, switching to the director model when camera movements are given.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ providers.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a MiniMax client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, providerName, "new client", "api key required", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, providerName, "new client", "base url required", nil)
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Supports reports model availability; MiniMax covers all three modes.
func (c *Client) Supports(model providers.ModelType) bool {
	switch model {
	case providers.TextToVideo, providers.ImageToVideo, providers.SubjectToVideo:
		return true
	}
	return false
}

// ClampDuration forces a requested duration into the service's 6-10 second
// window.
func ClampDuration(seconds int) int {
	if seconds < minDuration {
		return minDuration
	}
	if seconds > maxDuration {
		return maxDuration
	}
	return seconds
}

// FilterCameraMovements drops movement instructions the service does not
// recognize, preserving the order of the accepted ones.
func FilterCameraMovements(movements []string) []string {
	var valid []string
	for _, movement := range movements {
		if _, ok := cameraMovements[movement]; ok {
			valid = append(valid, movement)
		}
	}
	return valid
}

// directorPrompt appends bracketed movement instructions to the prompt.
func directorPrompt(prompt string, movements []string) string {
	instructions := make([]string, len(movements))
	for i, movement := range movements {
		instructions[i] = "[" + movement + "]"
	}
	return fmt.Sprintf("%s. %s", prompt, strings.Join(instructions, ", "))
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit validates and submits a generation request, returning a handle for
// polling. The duration is clamped before the payload is built.
func (c *Client) Submit(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
	if err := req.Validate(); err != nil {
		return providers.TaskHandle{}, err
	}
	switch r := req.(type) {
	case providers.TextToVideoRequest:
		return c.submitText(ctx, r)
	case providers.ImageToVideoRequest:
		return c.submitImage(ctx, r)
	case providers.SubjectToVideoRequest:
		return c.submitSubject(ctx, r)
	}
	return providers.TaskHandle{}, services.Wrap(services.ErrValidation, providerName, "submit",
		fmt.Sprintf("unsupported model %s", req.Model()), nil)
}

func (c *Client) submitText(ctx context.Context, req providers.TextToVideoRequest) (providers.TaskHandle, error) {
	prompt := req.Prompt
	model := modelStandard
	if movements := FilterCameraMovements(req.CameraMovements); len(movements) > 0 {
		model = modelDirector
		prompt = directorPrompt(prompt, movements)
	}
	payload := map[string]any{
		"model":      model,
		"prompt":     prompt,
		"duration":   ClampDuration(req.Duration),
		"resolution": req.Resolution,
	}
	return c.submitJSON(ctx, payload)
}

func (c *Client) submitImage(ctx context.Context, req providers.ImageToVideoRequest) (providers.TaskHandle, error) {
	prompt := req.Prompt
	model := modelStandard
	movements := FilterCameraMovements(req.CameraMovements)
	if len(movements) > 0 && prompt != "" {
		model = modelDirector
		prompt = directorPrompt(prompt, movements)
	}
	fields := map[string]string{
		"model":      model,
		"duration":   strconv.Itoa(ClampDuration(req.Duration)),
		"resolution": req.Resolution,
	}
	if prompt != "" {
		fields["prompt"] = prompt
	}
	return c.submitMultipart(ctx, fields, "image", req.ImagePath)
}

func (c *Client) submitSubject(ctx context.Context, req providers.SubjectToVideoRequest) (providers.TaskHandle, error) {
	fields := map[string]string{
		"model":      modelStandard,
		"prompt":     req.Prompt,
		"duration":   strconv.Itoa(ClampDuration(req.Duration)),
		"resolution": req.Resolution,
	}
	return c.submitMultipart(ctx, fields, "subject_image", req.SubjectImagePath)
}

func (c *Client) submitJSON(ctx context.Context, payload map[string]any) (providers.TaskHandle, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.TaskHandle{}, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/video/generations", bytes.NewReader(body))
	if err != nil {
		return providers.TaskHandle{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return c.doSubmit(req)
}

func (c *Client) submitMultipart(ctx context.Context, fields map[string]string, fileField, filePath string) (providers.TaskHandle, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return providers.TaskHandle{}, services.Wrap(services.ErrValidation, providerName, "submit",
				fmt.Sprintf("reference image not found: %s", filePath), nil)
		}
		return providers.TaskHandle{}, fmt.Errorf("read reference image: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return providers.TaskHandle{}, fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := writer.CreateFormFile(fileField, filepath.Base(filePath))
	if err != nil {
		return providers.TaskHandle{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return providers.TaskHandle{}, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return providers.TaskHandle{}, fmt.Errorf("close form writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/video/generations", &buf)
	if err != nil {
		return providers.TaskHandle{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.doSubmit(req)
}

func (c *Client) doSubmit(req *http.Request) (providers.TaskHandle, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.TaskHandle{}, providers.NetworkError(providerName, "submit", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.TaskHandle{}, providers.NetworkError(providerName, "submit", err)
	}
	if resp.StatusCode != http.StatusOK {
		return providers.TaskHandle{}, providers.ResponseError(providerName, "submit", resp, body)
	}

	var decoded submitResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return providers.TaskHandle{}, services.Wrap(services.ErrProvider, providerName, "submit", "malformed response", err)
	}
	if decoded.TaskID == "" {
		return providers.TaskHandle{}, services.Wrap(services.ErrProvider, providerName, "submit", "no task_id in response", nil)
	}
	return providers.TaskHandle{Provider: providerName, TaskID: decoded.TaskID}, nil
}

type pollResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    string `json:"error"`
}

// Poll reads the current state of a submitted task.
func (c *Client) Poll(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
	if handle.TaskID == "" {
		return providers.PollResult{}, services.Wrap(services.ErrValidation, providerName, "poll", "task id required", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/video/generations/"+handle.TaskID, nil)
	if err != nil {
		return providers.PollResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.PollResult{}, providers.NetworkError(providerName, "poll", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.PollResult{}, providers.NetworkError(providerName, "poll", err)
	}
	if resp.StatusCode != http.StatusOK {
		return providers.PollResult{}, providers.ResponseError(providerName, "poll", resp, body)
	}

	var decoded pollResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return providers.PollResult{}, services.Wrap(services.ErrProvider, providerName, "poll", "malformed response", err)
	}

	switch decoded.Status {
	case "pending":
		return providers.PollResult{State: providers.StatePending}, nil
	case "processing":
		return providers.PollResult{State: providers.StateProcessing}, nil
	case "completed":
		if decoded.VideoURL == "" {
			return providers.PollResult{}, services.Wrap(services.ErrProvider, providerName, "poll",
				"completed task has no video url", nil)
		}
		return providers.PollResult{State: providers.StateCompleted, VideoURL: decoded.VideoURL}, nil
	case "failed":
		detail := decoded.Error
		if detail == "" {
			detail = "unknown error"
		}
		return providers.PollResult{State: providers.StateFailed, Detail: detail}, nil
	}
	return providers.PollResult{}, services.Wrap(services.ErrUnknownStatus, providerName, "poll",
		fmt.Sprintf("status %q", decoded.Status), nil)
}

// Download streams the finished clip to destPath.
func (c *Client) Download(ctx context.Context, videoURL, destPath string) error {
	return providers.DownloadFile(ctx, c.httpClient, providerName, videoURL, destPath)
}
