package minimax

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mfleurival/movie-tool/internal/providers"
	"github.com/mfleurival/movie-tool/internal/services"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New("test-key", server.URL, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func writeTempImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.png")
	if err := os.WriteFile(path, []byte("png bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestClampDuration(t *testing.T) {
	cases := []struct{ in, want int }{
		{3, 6}, {6, 6}, {8, 8}, {10, 10}, {15, 10}, {0, 6},
	}
	for _, tc := range cases {
		if got := ClampDuration(tc.in); got != tc.want {
			t.Errorf("ClampDuration(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFilterCameraMovements(t *testing.T) {
	got := FilterCameraMovements([]string{"Pan left", "Barrel roll", "Zoom in", "pan left"})
	want := []string{"Pan left", "Zoom in"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilterCameraMovements = %v, want %v", got, want)
	}
}

func TestSubmitTextToVideo(t *testing.T) {
	var received map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-42"})
	}))

	handle, err := client.Submit(context.Background(), providers.TextToVideoRequest{
		Prompt:          "a city at dawn",
		Duration:        3,
		Resolution:      "1080p",
		CameraMovements: []string{"Pan left", "Invalid move", "Zoom in"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if handle.TaskID != "task-42" {
		t.Fatalf("expected task-42, got %q", handle.TaskID)
	}
	if received["model"] != "video-01-director" {
		t.Errorf("expected director model, got %v", received["model"])
	}
	if received["prompt"] != "a city at dawn. [Pan left], [Zoom in]" {
		t.Errorf("unexpected prompt %q", received["prompt"])
	}
	if received["duration"] != float64(6) {
		t.Errorf("expected clamped duration 6, got %v", received["duration"])
	}
}

func TestSubmitTextNoMovementsUsesStandardModel(t *testing.T) {
	var received map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-1"})
	}))

	_, err := client.Submit(context.Background(), providers.TextToVideoRequest{Prompt: "hills", Duration: 8})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if received["model"] != "video-01" {
		t.Errorf("expected standard model, got %v", received["model"])
	}
	if received["prompt"] != "hills" {
		t.Errorf("prompt must stay untouched, got %q", received["prompt"])
	}
}

func TestSubmitImageToVideoMultipart(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "video-01" {
			t.Errorf("unexpected model %q", r.FormValue("model"))
		}
		if r.FormValue("duration") != "10" {
			t.Errorf("expected clamped duration 10, got %q", r.FormValue("duration"))
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			file.Close()
			if header.Filename != "ref.png" {
				t.Errorf("unexpected filename %q", header.Filename)
			}
		}
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-7"})
	}))

	handle, err := client.Submit(context.Background(), providers.ImageToVideoRequest{
		ImagePath: writeTempImage(t),
		Duration:  30,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if handle.TaskID != "task-7" {
		t.Fatalf("expected task-7, got %q", handle.TaskID)
	}
}

func TestSubmitSubjectToVideo(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if _, _, err := r.FormFile("subject_image"); err != nil {
			t.Errorf("expected subject_image part: %v", err)
		}
		if r.FormValue("prompt") != "walks through rain" {
			t.Errorf("unexpected prompt %q", r.FormValue("prompt"))
		}
		json.NewEncoder(w).Encode(map[string]string{"task_id": "task-9"})
	}))

	_, err := client.Submit(context.Background(), providers.SubjectToVideoRequest{
		SubjectImagePath: writeTempImage(t),
		Prompt:           "walks through rain",
		Duration:         6,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitMissingImageFailsBeforeNetwork(t *testing.T) {
	requests := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))

	_, err := client.Submit(context.Background(), providers.ImageToVideoRequest{
		ImagePath: filepath.Join(t.TempDir(), "missing.png"),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if requests != 0 {
		t.Fatalf("expected no network call, saw %d", requests)
	}
}

func TestSubmitMissingTaskID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}))

	_, err := client.Submit(context.Background(), providers.TextToVideoRequest{Prompt: "x"})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "slow down"}})
	}))

	_, err := client.Submit(context.Background(), providers.TextToVideoRequest{Prompt: "x"})
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestPollStates(t *testing.T) {
	cases := []struct {
		name     string
		response map[string]string
		want     providers.TaskState
	}{
		{"pending", map[string]string{"status": "pending"}, providers.StatePending},
		{"processing", map[string]string{"status": "processing"}, providers.StateProcessing},
		{"completed", map[string]string{"status": "completed", "video_url": "https://cdn/a.mp4"}, providers.StateCompleted},
		{"failed", map[string]string{"status": "failed", "error": "nsfw"}, providers.StateFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/video/generations/task-1" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				json.NewEncoder(w).Encode(tc.response)
			}))
			result, err := client.Poll(context.Background(), providers.TaskHandle{Provider: "minimax", TaskID: "task-1"})
			if err != nil {
				t.Fatalf("poll: %v", err)
			}
			if result.State != tc.want {
				t.Fatalf("expected state %s, got %s", tc.want, result.State)
			}
			if tc.want == providers.StateCompleted && result.VideoURL == "" {
				t.Fatal("completed result missing video url")
			}
			if tc.want == providers.StateFailed && result.Detail != "nsfw" {
				t.Fatalf("expected failure detail, got %q", result.Detail)
			}
		})
	}
}

func TestPollUnknownStatus(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "paused"})
	}))
	_, err := client.Poll(context.Background(), providers.TaskHandle{TaskID: "task-1"})
	if !errors.Is(err, services.ErrUnknownStatus) {
		t.Fatalf("expected unknown status error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("unknown status must not be retryable")
	}
}

func TestPollCompletedWithoutURL(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "completed"})
	}))
	_, err := client.Poll(context.Background(), providers.TaskHandle{TaskID: "task-1"})
	if !errors.Is(err, services.ErrProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New("", "https://api.example.com"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, err := New("key", " "); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
