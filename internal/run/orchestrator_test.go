package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/skypro1111/storyreel/internal/attachment"
	"github.com/skypro1111/storyreel/internal/pipeline"
)

type fakeService struct {
	generate func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error)
	fetchLog func(ctx context.Context, runID string) (string, bool, error)

	mu       sync.Mutex
	fetchIDs []string
}

func (f *fakeService) Generate(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
	return f.generate(ctx, sub)
}

func (f *fakeService) FetchLog(ctx context.Context, runID string) (string, bool, error) {
	f.mu.Lock()
	f.fetchIDs = append(f.fetchIDs, runID)
	f.mu.Unlock()

	if f.fetchLog == nil {
		return "", false, nil
	}
	return f.fetchLog(ctx, runID)
}

func (f *fakeService) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetchIDs)
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []Run
}

func (r *fakeRecorder) Record(ctx context.Context, run Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func submittable() attachment.Snapshot {
	return attachment.Snapshot{
		Text:  "Hello world",
		Photo: &attachment.File{Name: "me.jpg", Data: []byte("jpeg"), MIMEType: "image/jpeg"},
		Voice: &attachment.File{Name: "voice.wav", Data: []byte("RIFF"), MIMEType: "audio/wav"},
	}
}

func newTestOrchestrator(t *testing.T, svc Service, interval time.Duration) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(svc, Config{PollInterval: interval}, testLogger(), nil, nil)
	t.Cleanup(o.Close)
	return o
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func newPipelineClient(t *testing.T, handler http.Handler) *pipeline.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := pipeline.NewClient(pipeline.Config{BaseURL: srv.URL, RequestTimeout: time.Second})
	if err != nil {
		t.Fatalf("Failed to create pipeline client: %v", err)
	}
	return client
}

func TestSubmitEndToEnd(t *testing.T) {
	var form map[string][]string
	var files map[string]bool

	mux := http.NewServeMux()
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse form: %v", err)
		}
		form = r.MultipartForm.Value
		files = make(map[string]bool)
		for name := range r.MultipartForm.File {
			files[name] = true
		}
		io.WriteString(w, `{"video_url":"http://x/final.mp4","run_id":"abc"}`)
	})
	mux.HandleFunc("/logs/abc", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"log":"Pipeline complete\n"}`)
	})

	rec := &fakeRecorder{}
	o := NewOrchestrator(newPipelineClient(t, mux), Config{PollInterval: time.Hour}, testLogger(), nil, rec)
	defer o.Close()

	run, err := o.Submit(context.Background(), submittable(), "noir", 6)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if run.Status != StatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", run.Status)
	}
	if run.ResultURL != "http://x/final.mp4" {
		t.Errorf("Expected result URL http://x/final.mp4, got %s", run.ResultURL)
	}
	if run.LogText != "Pipeline complete\n" {
		t.Errorf("Expected final log text, got %q", run.LogText)
	}
	if run.Error != nil {
		t.Errorf("Expected no error, got %+v", run.Error)
	}

	want := map[string]string{
		"text":             "Hello world",
		"style":            "noir",
		"number_of_scenes": "6",
		"run_id":           run.ID,
	}
	for name, value := range want {
		if v := form[name]; len(v) != 1 || v[0] != value {
			t.Errorf("Field %s = %v, want %q", name, v, value)
		}
	}
	if !files["photo"] || !files["voice"] || files["file"] {
		t.Errorf("Unexpected file parts %v", files)
	}

	if len(rec.runs) != 1 || rec.runs[0].ID != run.ID {
		t.Errorf("Expected finished run to be recorded, got %+v", rec.runs)
	}
}

func TestSubmitStatusProgression(t *testing.T) {
	var o *Orchestrator
	var duringGenerate, duringFinalFetch Status

	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			duringGenerate = o.Snapshot().Status
			return &pipeline.GenerateResponse{VideoURL: "http://x/final.mp4", RunID: "abc"}, nil
		},
		fetchLog: func(ctx context.Context, runID string) (string, bool, error) {
			duringFinalFetch = o.Snapshot().Status
			return "done", true, nil
		},
	}
	o = newTestOrchestrator(t, svc, time.Hour)

	if s := o.Snapshot().Status; s != StatusIdle {
		t.Errorf("Expected initial status idle, got %s", s)
	}

	run, err := o.Submit(context.Background(), submittable(), "", 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if duringGenerate != StatusSubmitting {
		t.Errorf("Expected submitting while generating, got %s", duringGenerate)
	}
	if duringFinalFetch != StatusInProgress {
		t.Errorf("Expected in_progress during final log fetch, got %s", duringFinalFetch)
	}
	if run.Status != StatusSucceeded {
		t.Errorf("Expected succeeded, got %s", run.Status)
	}
	if svc.fetchIDs[0] != "abc" {
		t.Errorf("Expected final fetch keyed by returned run ID abc, got %s", svc.fetchIDs[0])
	}
	if run.FinishedAt.Before(run.StartedAt) {
		t.Error("FinishedAt precedes StartedAt")
	}
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"detail", http.StatusInternalServerError, `{"detail":"upstream timeout"}`, KindPipeline, "upstream timeout"},
		{"no detail", http.StatusInternalServerError, `{}`, KindPipeline, "Pipeline failed."},
		{"missing video url", http.StatusOK, `{"run_id":"abc"}`, KindMalformedResponse, malformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newPipelineClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			o := newTestOrchestrator(t, client, time.Hour)

			run, err := o.Submit(context.Background(), submittable(), "noir", 6)
			if err != nil {
				t.Fatalf("Submit returned error: %v", err)
			}
			if run.Status != StatusFailed {
				t.Fatalf("Expected failed, got %s", run.Status)
			}
			if run.Error == nil || run.Error.Kind != tt.kind || run.Error.Message != tt.message {
				t.Errorf("Expected error {%s %q}, got %+v", tt.kind, tt.message, run.Error)
			}
			if run.ResultURL != "" {
				t.Errorf("Expected no result URL, got %s", run.ResultURL)
			}
		})
	}
}

func TestSubmitNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client, err := pipeline.NewClient(pipeline.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	o := newTestOrchestrator(t, client, time.Hour)

	run, err := o.Submit(context.Background(), submittable(), "", 0)
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if run.Status != StatusFailed || run.Error == nil || run.Error.Kind != KindNetwork {
		t.Fatalf("Expected network failure, got %+v", run)
	}
	if run.Error.Message != "Unable to reach the pipeline service. Is it running?" {
		t.Errorf("Unexpected message %q", run.Error.Message)
	}
}

func TestSubmitNotSubmittable(t *testing.T) {
	calls := 0
	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			calls++
			return nil, errors.New("unexpected call")
		},
	}
	o := newTestOrchestrator(t, svc, time.Hour)

	a := submittable()
	a.Voice = nil

	run, err := o.Submit(context.Background(), a, "", 0)
	if !errors.Is(err, ErrNotSubmittable) {
		t.Errorf("Expected ErrNotSubmittable, got %v", err)
	}
	if run.Status != StatusIdle || run.ID != "" {
		t.Errorf("Expected untouched idle run, got %+v", run)
	}
	if calls != 0 {
		t.Errorf("Expected no request, got %d", calls)
	}
}

func TestSubmitWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			<-release
			return &pipeline.GenerateResponse{VideoURL: "http://x/final.mp4"}, nil
		},
	}
	o := newTestOrchestrator(t, svc, time.Hour)

	done := make(chan Run)
	go func() {
		run, _ := o.Submit(context.Background(), submittable(), "", 0)
		done <- run
	}()

	waitFor(t, "submitting status", func() bool { return o.Snapshot().Status == StatusSubmitting })
	first := o.Snapshot()

	run, err := o.Submit(context.Background(), submittable(), "manga", 3)
	if !errors.Is(err, ErrRunInFlight) {
		t.Errorf("Expected ErrRunInFlight, got %v", err)
	}
	if run.ID != first.ID || run.Style != first.Style {
		t.Errorf("Expected unchanged snapshot, got %+v", run)
	}

	close(release)
	final := <-done
	if final.ID != first.ID || final.Status != StatusSucceeded {
		t.Errorf("Unexpected final run %+v", final)
	}
}

func TestSubmitReplacesFinishedRun(t *testing.T) {
	n := 0
	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			n++
			if n == 1 {
				return nil, &pipeline.PipelineError{StatusCode: 500, Detail: "boom"}
			}
			return &pipeline.GenerateResponse{VideoURL: "http://x/final.mp4"}, nil
		},
	}
	o := newTestOrchestrator(t, svc, time.Hour)

	first, _ := o.Submit(context.Background(), submittable(), "", 0)
	if first.Status != StatusFailed {
		t.Fatalf("Expected first run to fail, got %s", first.Status)
	}

	second, err := o.Submit(context.Background(), submittable(), "", 0)
	if err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}
	if second.Error != nil || second.Status != StatusSucceeded {
		t.Errorf("Expected clean succeeded run, got %+v", second)
	}
}

func TestPollingUpdatesLog(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	fetchErr := false

	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			<-release
			return &pipeline.GenerateResponse{VideoURL: "http://x/final.mp4"}, nil
		},
	}
	svc.fetchLog = func(ctx context.Context, runID string) (string, bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if fetchErr {
			return "", false, &pipeline.PipelineError{StatusCode: http.StatusNotFound}
		}
		return "step 1\n", true, nil
	}
	o := newTestOrchestrator(t, svc, 5*time.Millisecond)

	done := make(chan Run)
	go func() {
		run, _ := o.Submit(context.Background(), submittable(), "", 0)
		done <- run
	}()

	waitFor(t, "first log", func() bool { return o.Snapshot().LogText == "step 1\n" })

	mu.Lock()
	fetchErr = true
	mu.Unlock()

	seen := svc.fetches()
	waitFor(t, "failing fetches", func() bool { return svc.fetches() >= seen+2 })

	if text := o.Snapshot().LogText; text != "step 1\n" {
		t.Errorf("Expected log text unchanged after failed fetch, got %q", text)
	}

	close(release)
	run := <-done
	if run.LogText != "step 1\n" {
		t.Errorf("Expected final log text kept, got %q", run.LogText)
	}
}

func TestPollingStopsAfterFinish(t *testing.T) {
	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			time.Sleep(20 * time.Millisecond)
			return &pipeline.GenerateResponse{VideoURL: "http://x/final.mp4"}, nil
		},
	}
	o := newTestOrchestrator(t, svc, 2*time.Millisecond)

	if _, err := o.Submit(context.Background(), submittable(), "", 0); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	seen := svc.fetches()
	time.Sleep(30 * time.Millisecond)

	if got := svc.fetches(); got != seen {
		t.Errorf("Expected no fetches after the run finished, got %d more", got-seen)
	}
}

func TestCloseStopsPolling(t *testing.T) {
	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			<-ctx.Done()
			return nil, fmt.Errorf("%w: %w", pipeline.ErrNetwork, ctx.Err())
		},
	}
	o := NewOrchestrator(svc, Config{PollInterval: 2 * time.Millisecond}, testLogger(), nil, nil)

	done := make(chan Run)
	go func() {
		run, _ := o.Submit(context.Background(), submittable(), "", 0)
		done <- run
	}()

	waitFor(t, "a log fetch", func() bool { return svc.fetches() > 0 })

	o.Close()
	seen := svc.fetches()
	run := <-done

	time.Sleep(20 * time.Millisecond)
	if got := svc.fetches(); got != seen {
		t.Errorf("Expected no fetches after Close, got %d more", got-seen)
	}
	if run.Status != StatusFailed || run.Error == nil || run.Error.Message != cancelledMessage {
		t.Errorf("Expected cancelled failure, got %+v", run)
	}

	if _, err := o.Submit(context.Background(), submittable(), "", 0); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	svc := &fakeService{
		generate: func(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error) {
			return &pipeline.GenerateResponse{VideoURL: "http://x/final.mp4"}, nil
		},
	}
	o := NewOrchestrator(svc, Config{PollInterval: time.Hour}, testLogger(), nil, nil)

	ch := o.Subscribe()
	if first := <-ch; first.Status != StatusIdle {
		t.Errorf("Expected initial idle snapshot, got %s", first.Status)
	}

	if _, err := o.Submit(context.Background(), submittable(), "", 0); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	latest := <-ch
	if latest.Status != StatusSucceeded {
		t.Errorf("Expected latest snapshot succeeded, got %s", latest.Status)
	}

	o.Close()
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed after Close")
	}
}

func TestNewRunID(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	id := NewRunID(ts)

	re := regexp.MustCompile(`^run_20250314_092653_[0-9a-f]{6}$`)
	if !re.MatchString(id) {
		t.Errorf("Unexpected run ID %s", id)
	}
	if NewRunID(ts) == id {
		t.Error("Expected distinct run IDs for the same second")
	}
}
