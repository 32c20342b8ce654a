package scheduler

import (
	"context"
	"log/slog"
	"time"

	"agrimandi/internal/pkg/queue"
)

// Reconciler 执行一轮低于 MSP 的提醒对账，返回新生成的提醒数。
type Reconciler interface {
	CheckBelowMSP(ctx context.Context) (int, error)
}

// Scheduler 周期性地把 MSP 对账任务派发到 Worker Pool。
//
// 对账本身是幂等的（条件插入），一轮没跑完下一轮又开始、
// 或管理员手动触发叠加定时触发，都不会产生重复提醒。
type Scheduler struct {
	logger     *slog.Logger
	reconciler Reconciler
	interval   time.Duration
	queue      *queue.Queue
}

// NewScheduler 创建一个新的调度器实例。
//
// 参数:
//
//	logger: 日志记录器
//	reconciler: 对账执行器
//	interval: 对账间隔
//	workers: Worker Pool 大小（0 表示默认 10）
//	capacity: 队列容量（0 表示默认 200）
func NewScheduler(logger *slog.Logger, reconciler Reconciler, interval time.Duration, workers int, capacity int) *Scheduler {
	if workers <= 0 {
		workers = 10
	}
	if capacity <= 0 {
		capacity = 200
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	q := queue.NewQueue(logger, workers, capacity)
	q.SetErrorHandler(func(err error, job queue.Job) {
		logger.Error("msp reconciliation failed",
			slog.String("error", err.Error()))
	})

	return &Scheduler{
		logger:     logger,
		reconciler: reconciler,
		interval:   interval,
		queue:      q,
	}
}

// Run 启动调度循环，直到 ctx 被取消。
//
// 首次立即对账一轮，之后按 interval 周期触发；
// 每分钟打印一次队列统计。
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("msp scheduler started",
		slog.String("interval", s.interval.String()),
		slog.Int("queue_capacity", s.queue.Cap()))

	s.queue.Start(ctx)

	s.enqueuePass()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(1 * time.Minute)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("msp scheduler stopping")
			if err := s.queue.ShutdownWithTimeout(30 * time.Second); err != nil {
				s.logger.Error("queue shutdown timeout", slog.String("error", err.Error()))
			}
			s.logger.Info("msp scheduler stopped")
			return

		case <-ticker.C:
			s.enqueuePass()

		case <-statsTicker.C:
			s.printQueueStats()
		}
	}
}

// TriggerNow 立即派发一轮对账（管理员手动触发），队列满时返回 false。
func (s *Scheduler) TriggerNow() bool {
	return s.enqueuePass()
}

func (s *Scheduler) enqueuePass() bool {
	ok := s.queue.Enqueue(func(ctx context.Context) error {
		created, err := s.reconciler.CheckBelowMSP(ctx)
		if err != nil {
			return err
		}
		s.logger.Info("msp reconciliation pass finished",
			slog.Int("alerts_created", created))
		return nil
	})
	if !ok {
		s.logger.Warn("msp reconciliation pass dropped, queue full")
	}
	return ok
}

func (s *Scheduler) printQueueStats() {
	stats := s.queue.Stats()
	s.logger.Info("scheduler queue stats",
		slog.Int64("enqueued", stats.Enqueued),
		slog.Int64("processed", stats.Processed),
		slog.Int64("succeeded", stats.Succeeded),
		slog.Int64("failed", stats.Failed),
		slog.Int64("dropped", stats.Dropped),
		slog.Int("pending", s.queue.Len()))
}
