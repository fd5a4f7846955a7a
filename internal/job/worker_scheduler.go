package job

import (
	"context"
	"log"
	"time"

	"pubqueue/internal/config"
	"pubqueue/internal/worker"
)

// WorkerScheduler 进程内定时触发任务
//
// 没有外部 cron 的部署环境下，按固定间隔触发一次完整的 worker 运行。
// 与 HTTP 触发可以共存：条目级的条件状态更新保证两边不会重复发布。
type WorkerScheduler struct {
	w        *worker.Worker
	cfg      *config.Config
	stopCh   chan struct{}
	interval time.Duration
}

func NewWorkerScheduler(w *worker.Worker, cfg *config.Config) *WorkerScheduler {
	interval := time.Duration(cfg.Worker.SchedulerIntervalS) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &WorkerScheduler{
		w:        w,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
		interval: interval,
	}
}

func (s *WorkerScheduler) Start(ctx context.Context) {
	log.Printf("[WorkerScheduler] 定时触发任务启动，间隔 %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WorkerScheduler] 收到停止信号，任务退出")
			return
		case <-s.stopCh:
			log.Println("[WorkerScheduler] 任务停止")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *WorkerScheduler) Stop() {
	close(s.stopCh)
}

func (s *WorkerScheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx,
		time.Duration(s.cfg.Worker.MaxProcessingTimeMs)*time.Millisecond)
	defer cancel()

	result := s.w.Run(runCtx, worker.Options{})
	if result.TotalProcessed > 0 {
		log.Printf("[WorkerScheduler] 本轮处理 %d 个条目: succeeded=%d failed=%d",
			result.TotalProcessed, result.TotalSucceeded, result.TotalFailed)
	}
}
