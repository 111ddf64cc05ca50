package rewardjobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type resetRecorder struct {
	calls int
	err   error
}

func (r *resetRecorder) ResetMonthlyPatronage(context.Context) (int64, error) {
	r.calls++
	return 7, r.err
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nullWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func TestSchedulerRegistersJobs(t *testing.T) {
	store := &resetRecorder{}
	s, err := New(store, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := len(s.cron.Entries()); got != 1 {
		t.Fatalf("entries = %d, want 1", got)
	}
}

func TestResetPatronageRuns(t *testing.T) {
	store := &resetRecorder{}
	s, err := New(store, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.resetPatronage()
	if store.calls != 1 {
		t.Fatalf("calls = %d, want 1", store.calls)
	}

	// A store failure is logged, never panicked on.
	store.err = errors.New("db down")
	s.resetPatronage()
	if store.calls != 2 {
		t.Fatalf("calls = %d, want 2", store.calls)
	}
}
