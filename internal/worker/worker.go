package worker

import (
	"context"
	"log"
	"time"

	"pubqueue/internal/config"
	"pubqueue/internal/publisher"
)

// Options 单次运行参数
type Options struct {
	Platform string `json:"platform,omitempty"` // 为空表示处理所有平台
	Limit    int    `json:"limit,omitempty"`    // 单次运行条目上限，受配置封顶
}

// Worker 发布队列编排器
//
// 按固定顺序执行三个阶段：到期提升 -> 队列发布 -> 失败重试。
// 提升必须先于发布，使本轮新到期的条目能在同一次运行中被发布；
// 重试放在最后，避免挤占新调度条目的配额。
// Worker 自身不跨运行持有任何状态，所有变更都落在 Store 中。
type Worker struct {
	store    Store
	executor publisher.Executor
	cfg      config.WorkerConfig
	now      func() time.Time
}

func New(store Store, executor publisher.Executor, cfg config.WorkerConfig) *Worker {
	if cfg.MaxItemsPerRun <= 0 {
		cfg.MaxItemsPerRun = 20
	}
	if cfg.PublishLimit <= 0 {
		cfg.PublishLimit = 10
	}
	if cfg.MaxProcessingTimeMs <= 0 {
		cfg.MaxProcessingTimeMs = 120000
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = 5
	}
	return &Worker{
		store:    store,
		executor: executor,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run 执行一次完整的 worker 运行
//
// 任一阶段的存储层故障只影响该阶段（报告零进度），不会中断后续阶段。
func (w *Worker) Run(ctx context.Context, opts Options) *Result {
	limit := opts.Limit
	if limit <= 0 || limit > w.cfg.MaxItemsPerRun {
		limit = w.cfg.MaxItemsPerRun
	}

	publishLimit := limit
	if publishLimit > w.cfg.PublishLimit {
		publishLimit = w.cfg.PublishLimit
	}

	start := w.now()
	deadline := start.Add(time.Duration(w.cfg.MaxProcessingTimeMs) * time.Millisecond)

	result := &Result{}
	result.addPhase(w.runScheduledPhase(ctx, opts.Platform, limit, deadline))
	result.addPhase(w.runPublishPhase(ctx, PhaseQueued, opts.Platform, publishLimit, deadline))
	result.addPhase(w.runPublishPhase(ctx, PhaseRetry, opts.Platform, publishLimit, deadline))
	result.TotalDurationMs = w.now().Sub(start).Milliseconds()

	log.Printf("[Worker] 运行完成: processed=%d succeeded=%d failed=%d duration=%dms",
		result.TotalProcessed, result.TotalSucceeded, result.TotalFailed, result.TotalDurationMs)

	return result
}
