package worker

import (
	"context"
	"log"
	"time"

	"pubqueue/internal/model"
)

// runScheduledPhase 阶段一：到期提升
//
// 把 scheduled_for 已到期的 pending 条目提升为 queued。
// 条件更新以 status = pending 为守卫，乐观锁失败计入 failed
// 但不视为错误：条目未被改动，下一轮自然会被重新考虑。
func (w *Worker) runScheduledPhase(ctx context.Context, platform string, limit int, deadline time.Time) PhaseResult {
	start := w.now()
	res := PhaseResult{Name: PhaseScheduled}
	defer func() {
		res.DurationMs = w.now().Sub(start).Milliseconds()
	}()

	now := w.now()
	items, err := w.store.SelectEligible(ctx, model.EligibleCriteria{
		Status:          model.StatusPending,
		Platform:        platform,
		ScheduledBefore: &now,
		OrderBy:         model.OrderByScheduledFor,
		Limit:           limit,
	})
	if err != nil {
		log.Printf("[Worker] scheduled 阶段查询失败: %v", err)
		return res
	}

	for i, item := range items {
		if w.now().After(deadline) {
			res.Skipped += len(items) - i
			log.Printf("[Worker] scheduled 阶段超出时间预算，跳过剩余 %d 个条目", len(items)-i)
			break
		}

		queuedAt := w.now()
		ok, err := w.store.ConditionalTransition(ctx, item.ID, model.StatusPending, model.StatusQueued,
			map[string]interface{}{"queued_at": queuedAt})
		res.Processed++
		if err != nil {
			log.Printf("[Worker] 提升条目失败: id=%s, err=%v", item.ID, err)
			res.Failed++
			continue
		}
		if !ok {
			// 已被并发运行的实例提升，留待下一轮
			res.Failed++
			continue
		}
		res.Succeeded++
	}

	return res
}

// runPublishPhase 阶段二/三：队列发布与失败重试
//
// 两个阶段共用同一套单条目状态机（标记开始 -> 发布 -> 标记完成/失败），
// 只是选取条件不同：queued 阶段按优先级取 queued 条目，retry 阶段取
// retry_after 已到期的 pending 条目。
// 单个条目的失败不会中断批次中后续条目的处理。
func (w *Worker) runPublishPhase(ctx context.Context, phase, platform string, limit int, deadline time.Time) PhaseResult {
	start := w.now()
	res := PhaseResult{Name: phase}
	defer func() {
		res.DurationMs = w.now().Sub(start).Milliseconds()
	}()

	criteria := model.EligibleCriteria{
		Platform: platform,
		Limit:    limit,
	}
	switch phase {
	case PhaseQueued:
		criteria.Status = model.StatusQueued
		criteria.OrderBy = model.OrderByPriority
	case PhaseRetry:
		now := w.now()
		criteria.Status = model.StatusPending
		criteria.RetryBefore = &now
		criteria.OrderBy = model.OrderByRetryAfter
	default:
		log.Printf("[Worker] 未知阶段: %s", phase)
		return res
	}

	items, err := w.store.SelectEligible(ctx, criteria)
	if err != nil {
		log.Printf("[Worker] %s 阶段查询失败: %v", phase, err)
		return res
	}

	for i, item := range items {
		if w.now().After(deadline) {
			res.Skipped += len(items) - i
			log.Printf("[Worker] %s 阶段超出时间预算，跳过剩余 %d 个条目", phase, len(items)-i)
			break
		}
		w.publishItem(ctx, item, &res)
	}

	return res
}

// publishItem 单条目发布状态机
//
// 1. 标记开始（乐观锁守卫，失败则静默跳过，绝不调用执行器）
// 2. 调用发布执行器
// 3. 成功：publishing -> published；失败：分类错误后 publishing -> failed，
//    可重试且未超次数上限时降级回 pending 并按退避策略设置 retry_after。
func (w *Worker) publishItem(ctx context.Context, item *model.PublishingQueueItem, res *PhaseResult) {
	started, err := w.store.MarkStarted(ctx, item.ID, item.Status)
	if err != nil {
		log.Printf("[Worker] 标记开始失败: id=%s, err=%v", item.ID, err)
		res.Processed++
		res.Failed++
		return
	}
	if !started {
		// 条目已不在期望状态（被并发实例抢走或被取消），跳过
		res.Skipped++
		return
	}

	pubResult, pubErr := w.executor.Publish(ctx, item)
	if pubErr != nil {
		cls := Classify(pubErr)

		var retryAfter *time.Time
		if cls.Retryable && item.RetryCount+1 < w.cfg.MaxRetryCount {
			t := w.now().Add(RetryDelay(cls.Type, item.RetryCount))
			retryAfter = &t
		}

		if err := w.store.MarkFailed(ctx, item.ID, cls.Type, pubErr.Error(), retryAfter); err != nil {
			log.Printf("[Worker] 标记失败状态失败: id=%s, err=%v", item.ID, err)
		}
		log.Printf("[Worker] 条目发布失败: id=%s, platform=%s, type=%s, err=%v",
			item.ID, item.Platform, cls.Type, pubErr)
		res.Processed++
		res.Failed++
		return
	}

	if err := w.store.MarkCompleted(ctx, item.ID, pubResult); err != nil {
		log.Printf("[Worker] 标记完成失败: id=%s, err=%v", item.ID, err)
		res.Processed++
		res.Failed++
		return
	}

	log.Printf("[Worker] 条目发布成功: id=%s, platform=%s, url=%s", item.ID, item.Platform, pubResult.URL)
	res.Processed++
	res.Succeeded++
}
