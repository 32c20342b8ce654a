package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestQueue(workers, capacity int) *Queue {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewQueue(logger, workers, capacity)
}

func TestQueue_Basic(t *testing.T) {
	q := newTestQueue(3, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(func(ctx context.Context) error {
			completed.Add(1)
			return nil
		})
		if !ok {
			t.Fatalf("enqueue job %d failed", i)
		}
	}

	q.Shutdown()

	if completed.Load() != 5 {
		t.Fatalf("expected 5 completed jobs, got %d", completed.Load())
	}
	if stats := q.Stats(); stats.Enqueued != 5 || stats.Succeeded != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestQueue_ErrorHandler(t *testing.T) {
	q := newTestQueue(2, 5)

	var errorCount atomic.Int32
	q.SetErrorHandler(func(err error, job Job) {
		errorCount.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error { return nil })
	q.Enqueue(func(ctx context.Context) error { return errors.New("task failed") })

	q.Shutdown()

	stats := q.Stats()
	if stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if errorCount.Load() != 1 {
		t.Fatalf("expected 1 error callback, got %d", errorCount.Load())
	}
}

func TestQueue_PanicDoesNotKillWorker(t *testing.T) {
	q := newTestQueue(1, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error {
		panic("intentional panic")
	})

	var executed atomic.Bool
	q.Enqueue(func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	q.Shutdown()

	if stats := q.Stats(); stats.Panics != 1 {
		t.Fatalf("expected 1 panic recorded, got %d", stats.Panics)
	}
	if !executed.Load() {
		t.Fatalf("worker should survive a panicking job")
	}
}

func TestQueue_FullDropsJob(t *testing.T) {
	q := newTestQueue(1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	blockChan := make(chan struct{})

	// 第 1 个任务占住唯一的 worker
	q.Enqueue(func(ctx context.Context) error {
		<-blockChan
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	// 再填满 2 个容量
	q.Enqueue(func(ctx context.Context) error { return nil })
	q.Enqueue(func(ctx context.Context) error { return nil })

	// 这条应该被丢弃
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("expected enqueue to fail when queue is full")
	}

	close(blockChan)
	q.Shutdown()

	if stats := q.Stats(); stats.Dropped < 1 {
		t.Fatalf("expected at least 1 dropped job, got %d", stats.Dropped)
	}
}

func TestQueue_ShutdownDrainsPending(t *testing.T) {
	q := newTestQueue(3, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		q.Enqueue(func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			completed.Add(1)
			return nil
		})
	}

	q.Shutdown()

	if completed.Load() != 10 {
		t.Fatalf("expected all 10 jobs to finish before shutdown returns, got %d", completed.Load())
	}
	// 关闭后拒绝新任务
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatalf("closed queue must reject jobs")
	}
}

func TestQueue_EnqueueDuringShutdownDoesNotPanic(t *testing.T) {
	// Enqueue 检查 closed 之后、发送之前通道被关闭会 panic，
	// 多轮并发入队叠加关闭来覆盖这个窗口。
	for round := 0; round < 100; round++ {
		q := newTestQueue(2, 4)

		ctx, cancel := context.WithCancel(context.Background())
		q.Start(ctx)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 200; i++ {
				q.Enqueue(func(ctx context.Context) error { return nil })
			}
		}()

		q.Shutdown()
		<-done
		cancel()

		// 关闭后入队只能拒绝，不能 panic
		if q.Enqueue(func(ctx context.Context) error { return nil }) {
			t.Fatalf("closed queue must reject jobs")
		}
	}
}

func TestQueue_ShutdownWithTimeout(t *testing.T) {
	q := newTestQueue(2, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	for i := 0; i < 3; i++ {
		q.Enqueue(func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		})
	}

	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if err := q.ShutdownWithTimeout(time.Second); err == nil {
		t.Fatalf("expected error on double shutdown")
	}
}

func TestQueue_ShutdownTimeoutExpires(t *testing.T) {
	q := newTestQueue(1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	release := make(chan struct{})
	defer close(release)
	q.Enqueue(func(ctx context.Context) error {
		<-release
		return nil
	})
	time.Sleep(50 * time.Millisecond)

	if err := q.ShutdownWithTimeout(100 * time.Millisecond); err == nil {
		t.Fatalf("expected timeout error while job is stuck")
	}
}
