package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"pubqueue/internal/model"
	"pubqueue/internal/publisher"

	"gorm.io/gorm"
)

var (
	ErrItemNotFound    = errors.New("队列条目不存在")
	ErrStatusInvalid   = errors.New("状态流转不合法")
	ErrPlatformInvalid = errors.New("平台取值不合法")
)

// QueueRepository 发布队列存储
//
// 实现 worker 的 Store 接口。所有状态变更都是条件更新
// （UPDATE ... WHERE id = ? AND status = ?），RowsAffected 为 0
// 即乐观锁失败；这是防止多实例重复处理的唯一并发控制手段。
type QueueRepository struct {
	db         *gorm.DB
	eventTopic string
}

func NewQueueRepository(db *gorm.DB, eventTopic string) *QueueRepository {
	return &QueueRepository{db: db, eventTopic: eventTopic}
}

func (r *QueueRepository) Create(ctx context.Context, item *model.PublishingQueueItem) error {
	if !model.IsValidPlatform(item.Platform) {
		return ErrPlatformInvalid
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *QueueRepository) GetByID(ctx context.Context, id string) (*model.PublishingQueueItem, error) {
	var item model.PublishingQueueItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *QueueRepository) ListByOrganization(ctx context.Context, organizationID string, page, pageSize int) ([]*model.PublishingQueueItem, int64, error) {
	var items []*model.PublishingQueueItem
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PublishingQueueItem{}).
		Where("organization_id = ?", organizationID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// SoftDelete 软删除条目，此后对所有阶段查询不可见
func (r *QueueRepository) SoftDelete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PublishingQueueItem{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

// eligibleQuery 按条件拼装阶段查询，软删除条目由 gorm.DeletedAt 自动排除
func (r *QueueRepository) eligibleQuery(ctx context.Context, c model.EligibleCriteria) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&model.PublishingQueueItem{}).
		Where("status = ?", c.Status)

	if c.Platform != "" {
		query = query.Where("platform = ?", c.Platform)
	}
	if c.ScheduledBefore != nil {
		// retry_after 非空说明条目在重试通道，提升查询必须排除，
		// 否则残留的 scheduled_for 会让条目绕过退避窗口被立即重发
		query = query.Where("scheduled_for IS NOT NULL AND scheduled_for <= ? AND retry_after IS NULL", *c.ScheduledBefore)
	}
	if c.RetryBefore != nil {
		query = query.Where("retry_after IS NOT NULL AND retry_after <= ?", *c.RetryBefore)
	}
	return query
}

func (r *QueueRepository) SelectEligible(ctx context.Context, c model.EligibleCriteria) ([]*model.PublishingQueueItem, error) {
	query := r.eligibleQuery(ctx, c)

	switch c.OrderBy {
	case model.OrderByScheduledFor:
		query = query.Order("scheduled_for ASC")
	case model.OrderByPriority:
		// 同优先级按 id 升序，保证排序稳定
		query = query.Order("priority DESC").Order("id ASC")
	case model.OrderByRetryAfter:
		query = query.Order("retry_after ASC")
	}

	if c.Limit > 0 {
		query = query.Limit(c.Limit)
	}

	var items []*model.PublishingQueueItem
	err := query.Find(&items).Error
	return items, err
}

func (r *QueueRepository) CountEligible(ctx context.Context, c model.EligibleCriteria) (int64, error) {
	var count int64
	err := r.eligibleQuery(ctx, c).Count(&count).Error
	return count, err
}

// ConditionalTransition 条件状态流转
//
// 仅当条目当前状态等于 fromStatus 时生效，extra 中的字段随状态一起更新。
// 返回 false 表示乐观锁失败（条目已被其他进程改动），不是错误。
func (r *QueueRepository) ConditionalTransition(ctx context.Context, id, fromStatus, toStatus string, extra map[string]interface{}) (bool, error) {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return false, ErrStatusInvalid
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&model.PublishingQueueItem{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkStarted 标记条目进入发布中（fromStatus -> publishing）
func (r *QueueRepository) MarkStarted(ctx context.Context, id, fromStatus string) (bool, error) {
	now := time.Now()
	return r.ConditionalTransition(ctx, id, fromStatus, model.StatusPublishing,
		map[string]interface{}{"started_at": &now})
}

// MarkCompleted 标记发布成功并在同一事务内写入 outbox 事件
func (r *QueueRepository) MarkCompleted(ctx context.Context, id string, pubResult *publisher.Result) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.PublishingQueueItem
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		now := time.Now()
		result := tx.Model(&model.PublishingQueueItem{}).
			Where("id = ? AND status = ?", id, model.StatusPublishing).
			Updates(map[string]interface{}{
				"status":            model.StatusPublished,
				"completed_at":      &now,
				"published_url":     pubResult.URL,
				"platform_response": pubResult.PlatformResponse,
				"error_type":        "",
				"error_message":     "",
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStatusInvalid
		}

		return r.createEvent(tx, &item, model.EventItemPublished, pubResult.URL, "", "", item.RetryCount, now)
	})
}

// MarkFailed 标记发布失败并在同一事务内写入 outbox 事件
//
// retryAfter 非空时继续降级 failed -> pending 并设置 retry_after，
// 条目由此进入重试通道；为空（不可重试或已达重试上限）则停在 failed，
// 等待人工重试操作。
func (r *QueueRepository) MarkFailed(ctx context.Context, id, errorType, errorMessage string, retryAfter *time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.PublishingQueueItem
		if err := tx.Where("id = ?", id).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrItemNotFound
			}
			return err
		}

		result := tx.Model(&model.PublishingQueueItem{}).
			Where("id = ? AND status = ?", id, model.StatusPublishing).
			Updates(map[string]interface{}{
				"status":        model.StatusFailed,
				"error_type":    errorType,
				"error_message": errorMessage,
				"retry_count":   gorm.Expr("retry_count + 1"),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStatusInvalid
		}

		if retryAfter != nil {
			result = tx.Model(&model.PublishingQueueItem{}).
				Where("id = ? AND status = ?", id, model.StatusFailed).
				Updates(map[string]interface{}{
					"status":      model.StatusPending,
					"retry_after": retryAfter,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrStatusInvalid
			}
		}

		now := time.Now()
		return r.createEvent(tx, &item, model.EventItemFailed, "", errorType, errorMessage, item.RetryCount+1, now)
	})
}

func (r *QueueRepository) createEvent(tx *gorm.DB, item *model.PublishingQueueItem, event, publishedURL, errorType, errorMessage string, retryCount int, occurredAt time.Time) error {
	payload := model.PublishEventPayload{
		Event:          event,
		ItemID:         item.ID,
		ArticleID:      item.ArticleID,
		OrganizationID: item.OrganizationID,
		Platform:       item.Platform,
		PublishedURL:   publishedURL,
		ErrorType:      errorType,
		ErrorMessage:   errorMessage,
		RetryCount:     retryCount,
		OccurredAt:     occurredAt.UTC().Format(time.RFC3339),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := &model.OutboxMessage{
		MessageKey: item.ID,
		Topic:      r.eventTopic,
		Payload:    string(data),
		Status:     model.OutboxStatusPending,
	}
	return tx.Create(msg).Error
}
