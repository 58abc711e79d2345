package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRunner struct {
	resolved string
	err      error
	panic    bool
}

func (f *fakeRunner) Run(ctx context.Context, release string) (string, error) {
	if f.panic {
		panic("boom")
	}
	if f.err != nil {
		return "", f.err
	}
	if f.resolved != "" {
		return f.resolved, nil
	}
	return release, nil
}

func waitForStatus(t *testing.T, r *Registry, id string, want Status) Run {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		run, ok := r.Get(id)
		if !ok {
			t.Fatalf("run %s not found", id)
		}
		if run.Status == want {
			return run
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("run %s never reached status %s", id, want)
	return Run{}
}

func TestEnqueueReturnsImmediatelyAndCompletes(t *testing.T) {
	runner := &fakeRunner{resolved: "2024-01"}
	r := NewRegistry(runner)

	id := r.Enqueue("")
	if id == "" {
		t.Fatal("Enqueue() returned empty id")
	}

	run := waitForStatus(t, r, id, StatusCompleted)
	if run.Release != "2024-01" {
		t.Errorf("Release = %q, want 2024-01", run.Release)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt not set on completed run")
	}
}

func TestEnqueueRecordsFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("download failed")}
	r := NewRegistry(runner)

	id := r.Enqueue("2024-02")
	run := waitForStatus(t, r, id, StatusFailed)
	if run.Error != "download failed" {
		t.Errorf("Error = %q, want %q", run.Error, "download failed")
	}
}

func TestEnqueueRecoversFromPanic(t *testing.T) {
	runner := &fakeRunner{panic: true}
	r := NewRegistry(runner)

	id := r.Enqueue("2024-03")
	run := waitForStatus(t, r, id, StatusFailed)
	if run.Error == "" {
		t.Error("expected a non-empty error after a panicking run")
	}
}

func TestGetUnknownRun(t *testing.T) {
	r := NewRegistry(&fakeRunner{})
	if _, ok := r.Get("does-not-exist"); ok {
		t.Error("Get() should report ok=false for an unknown id")
	}
}

func TestEnqueueTwiceProducesDistinctRunIDs(t *testing.T) {
	r := NewRegistry(&fakeRunner{})

	id1 := r.Enqueue("2024-04")
	waitForStatus(t, r, id1, StatusCompleted)

	id2 := r.Enqueue("2024-04")
	waitForStatus(t, r, id2, StatusCompleted)

	if id1 == id2 {
		t.Error("two enqueues of the same release produced the same run id")
	}
}
