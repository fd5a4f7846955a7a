package worker

import (
	"context"
	"time"

	"pubqueue/internal/model"
	"pubqueue/internal/publisher"
)

// Store 队列存储接口
//
// worker 核心只依赖这个窄接口，不关心底层持久化技术。
// 所有状态变更必须是条件更新（乐观锁）：只有当前状态与期望一致时才生效，
// 这是多个 worker 实例并发运行时防止重复处理的唯一并发控制手段。
type Store interface {
	// SelectEligible 按条件查询待处理条目，软删除条目必须被排除
	SelectEligible(ctx context.Context, c model.EligibleCriteria) ([]*model.PublishingQueueItem, error)

	// CountEligible 统计满足条件的条目数量
	CountEligible(ctx context.Context, c model.EligibleCriteria) (int64, error)

	// ConditionalTransition 条件状态流转
	// 仅当条目当前状态等于 fromStatus 时更新为 toStatus（连同 extra 字段），
	// 返回 false 表示乐观锁失败（已被其他进程处理）。
	ConditionalTransition(ctx context.Context, id, fromStatus, toStatus string, extra map[string]interface{}) (bool, error)

	// MarkStarted 标记条目开始发布（fromStatus -> publishing，记录 started_at）
	// 返回 false 表示条目已不在期望状态，调用方不得再执行发布。
	MarkStarted(ctx context.Context, id, fromStatus string) (bool, error)

	// MarkCompleted 标记发布成功（publishing -> published，记录 completed_at 和发布 URL）
	MarkCompleted(ctx context.Context, id string, result *publisher.Result) error

	// MarkFailed 标记发布失败（publishing -> failed，记录错误分类和信息）
	// retryAfter 非空时继续降级 failed -> pending 并设置 retry_after，
	// 使条目进入重试通道。
	MarkFailed(ctx context.Context, id, errorType, errorMessage string, retryAfter *time.Time) error
}
