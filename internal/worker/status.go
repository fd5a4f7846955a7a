package worker

import (
	"context"
	"fmt"

	"pubqueue/internal/model"
)

// 状态查询时每个通道最多返回的样例条目数
const statusSampleLimit = 10

// LaneStatus 单个通道的就绪情况
type LaneStatus struct {
	Count int64                        `json:"count"`
	Items []*model.PublishingQueueItem `json:"items"`
}

// QueueStatus 三个阶段各自的就绪条目统计
type QueueStatus struct {
	Scheduled LaneStatus `json:"scheduled"`
	Queued    LaneStatus `json:"queued"`
	Retry     LaneStatus `json:"retry"`
}

// Status 查询当前各阶段就绪的条目数量与样例
func (w *Worker) Status(ctx context.Context, platform string) (*QueueStatus, error) {
	now := w.now()

	scheduled := model.EligibleCriteria{
		Status:          model.StatusPending,
		Platform:        platform,
		ScheduledBefore: &now,
		OrderBy:         model.OrderByScheduledFor,
		Limit:           statusSampleLimit,
	}
	queued := model.EligibleCriteria{
		Status:   model.StatusQueued,
		Platform: platform,
		OrderBy:  model.OrderByPriority,
		Limit:    statusSampleLimit,
	}
	retry := model.EligibleCriteria{
		Status:      model.StatusPending,
		Platform:    platform,
		RetryBefore: &now,
		OrderBy:     model.OrderByRetryAfter,
		Limit:       statusSampleLimit,
	}

	status := &QueueStatus{}
	lanes := []struct {
		criteria model.EligibleCriteria
		lane     *LaneStatus
	}{
		{scheduled, &status.Scheduled},
		{queued, &status.Queued},
		{retry, &status.Retry},
	}

	for _, l := range lanes {
		count, err := w.store.CountEligible(ctx, l.criteria)
		if err != nil {
			return nil, fmt.Errorf("统计就绪条目失败: %w", err)
		}
		items, err := w.store.SelectEligible(ctx, l.criteria)
		if err != nil {
			return nil, fmt.Errorf("查询就绪条目失败: %w", err)
		}
		l.lane.Count = count
		l.lane.Items = items
	}

	return status, nil
}
