package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Job 表示一个可执行的异步任务。
type Job func(ctx context.Context) error

// ErrorHandler 任务失败时的回调。
type ErrorHandler func(err error, job Job)

// Queue 是带固定 worker 池的内存任务队列。
//
// 调度器用它承载周期性的对账任务：入队非阻塞，队列满直接丢弃
// （对账幂等，丢一轮等下一轮即可），关闭时等在途任务跑完。
type Queue struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	wg     sync.WaitGroup
	closed atomic.Bool
	// closeMu 让 close(jobs) 与 Enqueue 的发送互斥，
	// 否则检查 closed 之后、发送之前通道可能已被关闭。
	closeMu sync.RWMutex

	stats queueStats
}

// queueStats 内部计数器，worker 并发更新。
type queueStats struct {
	Enqueued  atomic.Int64
	Processed atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64
	Dropped   atomic.Int64
	Panics    atomic.Int64
}

// Stats 是计数器的普通值快照，可安全拷贝。
type Stats struct {
	Enqueued  int64 // 入队总数
	Processed int64 // 处理完成总数
	Succeeded int64 // 成功数
	Failed    int64 // 失败数
	Dropped   int64 // 队列满丢弃数
	Panics    int64 // panic 恢复次数
}

// NewQueue 创建任务队列，workers 与 capacity 最小为 1。
func NewQueue(logger *slog.Logger, workers int, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// SetErrorHandler 设置任务失败回调，须在 Start 之前调用。
func (q *Queue) SetErrorHandler(handler ErrorHandler) {
	q.errorHandler = handler
}

// Start 启动 worker 池，直到 ctx 被取消或队列关闭。
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("queue worker stopped", slog.Int("worker_id", id))
			return

		case job, ok := <-q.jobs:
			if !ok {
				q.logger.Debug("queue worker exit, channel closed", slog.Int("worker_id", id))
				return
			}
			if job != nil {
				q.run(ctx, job, id)
			}
		}
	}
}

// run 执行单个任务。panic 只打日志并计数，不能带崩 worker。
func (q *Queue) run(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			q.stats.Panics.Add(1)
			q.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	err := job(ctx)
	q.stats.Processed.Add(1)

	if err != nil {
		q.stats.Failed.Add(1)
		q.logger.Warn("job failed",
			slog.Int("worker_id", workerID),
			slog.String("error", err.Error()))

		if q.errorHandler != nil {
			q.errorHandler(err, job)
		}
	} else {
		q.stats.Succeeded.Add(1)
	}
}

// Enqueue 非阻塞入队，队列已满或已关闭时返回 false。
func (q *Queue) Enqueue(job Job) bool {
	if job == nil {
		return false
	}

	q.closeMu.RLock()
	defer q.closeMu.RUnlock()

	if q.closed.Load() {
		q.logger.Warn("queue closed, reject job")
		return false
	}

	select {
	case q.jobs <- job:
		q.stats.Enqueued.Add(1)
		return true
	default:
		q.stats.Dropped.Add(1)
		q.logger.Warn("queue full, drop job",
			slog.Int("capacity", cap(q.jobs)),
			slog.Int("pending", len(q.jobs)))
		return false
	}
}

// Shutdown 关闭队列并等所有在途任务完成：
// 先拒绝新任务，再关通道，最后等 worker 退出。
func (q *Queue) Shutdown() {
	if q.closed.CompareAndSwap(false, true) {
		q.closeMu.Lock()
		close(q.jobs)
		q.closeMu.Unlock()
		q.logger.Info("queue shutdown, waiting for workers")
		q.wg.Wait()
		q.logger.Info("queue shutdown done")
	}
}

// ShutdownWithTimeout 同 Shutdown，但最多等 timeout。
func (q *Queue) ShutdownWithTimeout(timeout time.Duration) error {
	if !q.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("queue already closed")
	}

	q.closeMu.Lock()
	close(q.jobs)
	q.closeMu.Unlock()
	q.logger.Info("queue shutdown with timeout",
		slog.String("timeout", timeout.String()))

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue shutdown done")
		return nil
	case <-time.After(timeout):
		q.logger.Error("queue shutdown timeout")
		return fmt.Errorf("shutdown timeout after %s", timeout)
	}
}

// Stats 返回计数器快照。
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.stats.Enqueued.Load(),
		Processed: q.stats.Processed.Load(),
		Succeeded: q.stats.Succeeded.Load(),
		Failed:    q.stats.Failed.Load(),
		Dropped:   q.stats.Dropped.Load(),
		Panics:    q.stats.Panics.Load(),
	}
}

// Len 返回当前待处理任务数。
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Cap 返回队列容量。
func (q *Queue) Cap() int {
	return cap(q.jobs)
}
