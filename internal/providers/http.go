package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mfleurival/movie-tool/internal/services"
)

// ResponseError classifies a non-success provider response. 429 becomes a
// rate-limit error carrying any Retry-After hint; every other 4xx/5xx is a
// definitive provider rejection.
func ResponseError(component, operation string, resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return services.Wrap(services.ErrRateLimited, component, operation, "", &services.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Detail:     apiErrorMessage(body, resp.StatusCode),
		})
	}
	return services.Wrap(services.ErrProvider, component, operation, "", &services.ProviderStatusError{
		StatusCode: resp.StatusCode,
		Message:    apiErrorMessage(body, resp.StatusCode),
	})
}

// NetworkError tags a transport-level failure as retryable.
func NetworkError(component, operation string, err error) error {
	return services.Wrap(services.ErrNetwork, component, operation, "", err)
}

// parseRetryAfter understands both the delta-seconds and HTTP-date forms.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

// apiErrorMessage digs a human-readable message out of the common provider
// error envelopes, falling back to the HTTP status.
func apiErrorMessage(body []byte, statusCode int) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var message string
		if json.Unmarshal(envelope.Error, &message) == nil && message != "" {
			return message
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}

// DownloadFile streams a generated artifact to destPath, creating parent
// directories as needed. A 4xx response is a provider rejection; transport
// failures and 5xx responses stay retryable.
func DownloadFile(ctx context.Context, client *http.Client, component, videoURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return services.Wrap(services.ErrValidation, component, "download", "build request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return NetworkError(component, "download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		marker := services.ErrNetwork
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			marker = services.ErrProvider
		}
		return services.Wrap(marker, component, "download", fmt.Sprintf("HTTP %d from %s", resp.StatusCode, videoURL), nil)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create download file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(destPath)
		return NetworkError(component, "download", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync download file: %w", err)
	}
	return nil
}
