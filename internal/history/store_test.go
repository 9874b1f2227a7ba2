package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/skypro1111/storyreel/internal/run"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r := run.Run{
		ID:         "run_20250101_120000_abcdef",
		Status:     run.StatusFailed,
		Style:      "noir",
		SceneCount: 6,
		LogText:    "step 1\n",
		Error:      &run.ErrorDescriptor{Kind: run.KindPipeline, Message: "upstream timeout"},
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
	}

	if err := s.Record(ctx, r); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != run.StatusFailed || got.Style != "noir" || got.SceneCount != 6 {
		t.Errorf("Unexpected run %+v", got)
	}
	if got.Error == nil || got.Error.Message != "upstream timeout" {
		t.Errorf("Expected error descriptor to survive, got %+v", got.Error)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("Expected start %v, got %v", started, got.StartedAt)
	}

	if _, err := s.Get(ctx, "run_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecordReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := run.Run{ID: "run_1", Status: run.StatusInProgress, StartedAt: time.Now()}
	if err := s.Record(ctx, r); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	r.Status = run.StatusSucceeded
	r.ResultURL = "http://x/final.mp4"
	if err := s.Record(ctx, r); err != nil {
		t.Fatalf("Second record failed: %v", err)
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != run.StatusSucceeded || runs[0].ResultURL != "http://x/final.mp4" {
		t.Errorf("Expected updated run, got %+v", runs[0])
	}
}

func TestRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run_a", "run_b", "run_c"} {
		r := run.Run{ID: id, Status: run.StatusSucceeded, StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record %s failed: %v", id, err)
		}
	}

	runs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run_c" || runs[1].ID != "run_b" {
		t.Errorf("Expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}

	if err := s.Record(ctx, run.Run{}); err == nil {
		t.Error("Expected error recording a run without ID")
	}
}
