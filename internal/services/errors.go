package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNetwork marks connection-level failures that are safe to retry.
	ErrNetwork = errors.New("network error")
	// ErrRateLimited marks HTTP 429 responses; always retryable.
	ErrRateLimited = errors.New("rate limited")
	// ErrProvider marks definitive upstream rejections (bad request, auth,
	// unsupported model). Never retried.
	ErrProvider = errors.New("provider error")
	// ErrValidation marks caller-input failures caught before any network call.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing or malformed configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrTranscode marks a media subprocess failure or timeout.
	ErrTranscode = errors.New("transcode error")
	// ErrPollTimeout marks a generation task that never reached a terminal
	// state within the maximum wait.
	ErrPollTimeout = errors.New("poll timeout")
	// ErrUnknownStatus marks an unrecognized provider status value. Treated as
	// a defect signal, never retried.
	ErrUnknownStatus = errors.New("unknown provider status")
	// ErrRetryExhausted wraps the last retryable cause after the attempt
	// budget runs out.
	ErrRetryExhausted = errors.New("retry exhausted")
	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the retry policy may attempt the operation again.
// Only transient transport failures and rate limiting qualify; everything
// else propagates immediately.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited)
}

// RateLimitError carries an upstream wait hint alongside the rate-limit
// classification. errors.Is(err, ErrRateLimited) holds for values of this type.
type RateLimitError struct {
	RetryAfter time.Duration
	Detail     string
}

func (e *RateLimitError) Error() string {
	if strings.TrimSpace(e.Detail) == "" {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: %s", ErrRateLimited.Error(), e.Detail)
}

// Is makes the value match the ErrRateLimited sentinel.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterHint extracts a provider-supplied wait hint, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

// ProviderStatusError carries the HTTP status code of a definitive upstream
// rejection. errors.Is(err, ErrProvider) holds for values of this type.
type ProviderStatusError struct {
	StatusCode int
	Message    string
}

func (e *ProviderStatusError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "request rejected"
	}
	return fmt.Sprintf("%s: HTTP %d: %s", ErrProvider.Error(), e.StatusCode, msg)
}

// Is makes the value match the ErrProvider sentinel.
func (e *ProviderStatusError) Is(target error) bool {
	return target == ErrProvider
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
