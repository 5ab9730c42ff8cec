package segmind

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mfleurival/movie-tool/internal/providers"
	"github.com/mfleurival/movie-tool/internal/services"
)

const (
	providerName = "segmind"

	videoEndpoint = "/v1/kling-video-v1"

	defaultDuration    = 5
	defaultAspectRatio = "16:9"
	defaultCFGScale    = 0.5
)

// Client talks to the Segmind kling image-to-video API. The service accepts
// only i2v requests; the source image travels base64-encoded in the JSON
// payload. Submissions either return the finished artifact immediately or a
// fetch URL to poll.
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

// New creates a Segmind client.
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

// Supports reports model availability; Segmind only does image-to-video.
func (c *Client) Supports(model providers.ModelType) bool {
	return model == providers.ImageToVideo
}

type submitResponse struct {
	Status      string          `json:"status"`
	Output      json.RawMessage `json:"output"`
	FetchResult string          `json:"fetch_result"`
	ETA         float64         `json:"eta"`
	Error       string          `json:"error"`
}

// Submit encodes the source image and posts the generation request. The
// returned handle is immediate when the service answered with the finished
// artifact, otherwise it carries the fetch URL to poll.
func (c *Client) Submit(ctx context.Context, req providers.Request) (providers.TaskHandle, error) {
	if err := req.Validate(); err != nil {
		return providers.TaskHandle{}, err
	}
	r, ok := req.(providers.ImageToVideoRequest)
	if !ok {
		return providers.TaskHandle{}, services.Wrap(services.ErrValidation, providerName, "submit",
			fmt.Sprintf("model %s not supported", req.Model()), nil)
	}

	encoded, err := encodeImage(r.ImagePath)
	if err != nil {
		return providers.TaskHandle{}, err
	}

	duration := r.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	aspectRatio := r.AspectRatio
	if aspectRatio == "" {
		aspectRatio = defaultAspectRatio
	}
	payload := map[string]any{
		"image":           encoded,
		"prompt":          r.Prompt,
		"negative_prompt": r.NegativePrompt,
		"duration":        duration,
		"aspect_ratio":    aspectRatio,
		"cfg_scale":       defaultCFGScale,
		"seed":            -1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return providers.TaskHandle{}, fmt.Errorf("encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+videoEndpoint, bytes.NewReader(body))
	if err != nil {
		return providers.TaskHandle{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return providers.TaskHandle{}, providers.NetworkError(providerName, "submit", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.TaskHandle{}, providers.NetworkError(providerName, "submit", err)
	}
	if resp.StatusCode >= 400 {
		return providers.TaskHandle{}, providers.ResponseError(providerName, "submit", resp, respBody)
	}

	var decoded submitResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return providers.TaskHandle{}, services.Wrap(services.ErrProvider, providerName, "submit", "malformed response", err)
	}

	if url := firstOutput(decoded.Output); url != "" {
		return providers.TaskHandle{Provider: providerName, VideoURL: url}, nil
	}
	if decoded.FetchResult != "" {
		return providers.TaskHandle{Provider: providerName, FetchURL: decoded.FetchResult}, nil
	}
	return providers.TaskHandle{}, services.Wrap(services.ErrProvider, providerName, "submit",
		"response has neither output nor fetch_result", nil)
}

// Poll checks a fetch URL. HTTP 202 means the job is still running; 200
// carries the finished artifact.
func (c *Client) Poll(ctx context.Context, handle providers.TaskHandle) (providers.PollResult, error) {
	if handle.Immediate() {
		return providers.PollResult{State: providers.StateCompleted, VideoURL: handle.VideoURL}, nil
	}
	if handle.FetchURL == "" {
		return providers.PollResult{}, services.Wrap(services.ErrValidation, providerName, "poll", "fetch url required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.FetchURL, nil)
	if err != nil {
		return providers.PollResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return providers.PollResult{}, providers.NetworkError(providerName, "poll", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return providers.PollResult{}, providers.NetworkError(providerName, "poll", err)
	}

	switch resp.StatusCode {
	case http.StatusAccepted:
		return providers.PollResult{State: providers.StateProcessing}, nil
	case http.StatusOK:
		var decoded submitResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return providers.PollResult{}, services.Wrap(services.ErrProvider, providerName, "poll", "malformed response", err)
		}
		if decoded.Error != "" {
			return providers.PollResult{State: providers.StateFailed, Detail: decoded.Error}, nil
		}
		url := firstOutput(decoded.Output)
		if url == "" {
			return providers.PollResult{}, services.Wrap(services.ErrProvider, providerName, "poll",
				"completed job has no output", nil)
		}
		return providers.PollResult{State: providers.StateCompleted, VideoURL: url}, nil
	}
	return providers.PollResult{}, providers.ResponseError(providerName, "poll", resp, body)
}

// Download streams the finished clip to destPath.
func (c *Client) Download(ctx context.Context, videoURL, destPath string) error {
	return providers.DownloadFile(ctx, c.httpClient, providerName, videoURL, destPath)
}

// encodeImage reads and base64-encodes the source image.
func encodeImage(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", services.Wrap(services.ErrValidation, providerName, "submit",
				fmt.Sprintf("source image not found: %s", path), nil)
		}
		return "", fmt.Errorf("read source image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(content), nil
}

// firstOutput unpacks the output field, which arrives as either a single
// URL or a list of URLs.
func firstOutput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if json.Unmarshal(raw, &single) == nil {
		return single
	}
	var many []string
	if json.Unmarshal(raw, &many) == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}
