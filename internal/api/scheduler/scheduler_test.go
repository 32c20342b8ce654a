package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"agrimandi/internal/pkg/queue"
)

type fakeReconciler struct {
	calls atomic.Int64
	err   error
}

func (f *fakeReconciler) CheckBelowMSP(ctx context.Context) (int, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return 1, nil
}

func newTestScheduler(rec Reconciler, workers, capacity int) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &Scheduler{
		logger:     logger,
		reconciler: rec,
		interval:   time.Hour,
		queue:      queue.NewQueue(logger, workers, capacity),
	}
	return s
}

func TestTriggerNow_RunsReconciliation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fakeReconciler{}
	s := newTestScheduler(rec, 1, 10)
	s.queue.Start(ctx)

	if !s.TriggerNow() {
		t.Fatalf("expected enqueue to succeed")
	}

	waitForCalls(t, &rec.calls, 1)
}

func TestTriggerNow_QueueFullDropsPass(t *testing.T) {
	rec := &fakeReconciler{}
	s := newTestScheduler(rec, 1, 1)
	// 不启动 worker，先塞满队列
	if !s.TriggerNow() {
		t.Fatalf("fill queue: expected success")
	}

	if s.TriggerNow() {
		t.Fatalf("expected enqueue to fail when queue is full")
	}
}

func TestEnqueuePass_ReconcilerErrorCounted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &fakeReconciler{err: errors.New("boom")}
	s := newTestScheduler(rec, 1, 10)
	s.queue.Start(ctx)

	s.enqueuePass()
	waitForCalls(t, &rec.calls, 1)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if s.queue.Stats().Failed == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected failed count 1, got %d", s.queue.Stats().Failed)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	rec := &fakeReconciler{}
	s := NewScheduler(slog.New(slog.NewTextHandler(io.Discard, nil)), rec, time.Hour, 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// Run 启动时立即派发一轮
	waitForCalls(t, &rec.calls, 1)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not stop after cancel")
	}
}

func waitForCalls(t *testing.T, calls *atomic.Int64, want int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if calls.Load() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected at least %d reconciliation calls, got %d", want, calls.Load())
}
