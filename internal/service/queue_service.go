package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pubqueue/internal/config"
	"pubqueue/internal/model"
	"pubqueue/internal/repository"
	"pubqueue/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrItemNotRetryable = errors.New("只有 failed 状态的条目可以重试")
	ErrItemTerminal     = errors.New("条目已处于终态，不能取消")
	ErrConcurrentUpdate = errors.New("条目状态已被其他操作改变，请重试")
)

// QueueService 队列条目管理
//
// 覆盖 worker 之外的条目生命周期操作：创建、取消、人工重试、查询、软删除。
type QueueService struct {
	db        *gorm.DB
	cfg       *config.Config
	queueRepo *repository.QueueRepository
}

func NewQueueService(db *gorm.DB, cfg *config.Config) *QueueService {
	return &QueueService{
		db:        db,
		cfg:       cfg,
		queueRepo: repository.NewQueueRepository(db, cfg.Kafka.Topic.PublishResult),
	}
}

type CreateItemRequest struct {
	ArticleID      string     `json:"article_id" binding:"required"`
	OrganizationID string     `json:"organization_id" binding:"required"`
	Platform       string     `json:"platform" binding:"required"`
	Priority       int        `json:"priority"`
	ScheduledFor   *time.Time `json:"scheduled_for"`
}

// CreateItem 创建队列条目
//
// scheduled_for 缺省为当前时间，即下一次 worker 运行立即可被提升。
func (s *QueueService) CreateItem(ctx context.Context, req *CreateItemRequest) (*model.PublishingQueueItem, error) {
	scheduledFor := req.ScheduledFor
	if scheduledFor == nil {
		now := time.Now()
		scheduledFor = &now
	}

	item := &model.PublishingQueueItem{
		ID:             idgen.GenerateItemID(),
		ArticleID:      req.ArticleID,
		OrganizationID: req.OrganizationID,
		Platform:       req.Platform,
		Status:         model.StatusPending,
		Priority:       req.Priority,
		ScheduledFor:   scheduledFor,
	}

	if err := s.queueRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("创建队列条目失败: %w", err)
	}
	return item, nil
}

func (s *QueueService) GetItem(ctx context.Context, id string) (*model.PublishingQueueItem, error) {
	return s.queueRepo.GetByID(ctx, id)
}

func (s *QueueService) ListItems(ctx context.Context, organizationID string, page, pageSize int) ([]*model.PublishingQueueItem, int64, error) {
	return s.queueRepo.ListByOrganization(ctx, organizationID, page, pageSize)
}

// CancelItem 取消条目（非终态 -> cancelled）
//
// 条件更新以当前状态为守卫：若条目正被 worker 处理导致状态变化，
// 取消会失败并要求调用方重试，而不是覆盖 worker 的写入。
func (s *QueueService) CancelItem(ctx context.Context, id string) (*model.PublishingQueueItem, error) {
	item, err := s.queueRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if model.IsTerminalStatus(item.Status) {
		return nil, ErrItemTerminal
	}

	ok, err := s.queueRepo.ConditionalTransition(ctx, id, item.Status, model.StatusCancelled, nil)
	if err != nil {
		return nil, fmt.Errorf("取消条目失败: %w", err)
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	return s.queueRepo.GetByID(ctx, id)
}

// RetryItem 人工重试（failed -> pending，retry_after 置为当前时间）
//
// 错误信息保留在条目上便于排查，下一次 worker 运行的重试阶段会立即拾取。
func (s *QueueService) RetryItem(ctx context.Context, id string) (*model.PublishingQueueItem, error) {
	item, err := s.queueRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.Status != model.StatusFailed {
		return nil, ErrItemNotRetryable
	}

	now := time.Now()
	ok, err := s.queueRepo.ConditionalTransition(ctx, id, model.StatusFailed, model.StatusPending,
		map[string]interface{}{"retry_after": &now})
	if err != nil {
		return nil, fmt.Errorf("重试条目失败: %w", err)
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	return s.queueRepo.GetByID(ctx, id)
}

// DeleteItem 软删除条目
func (s *QueueService) DeleteItem(ctx context.Context, id string) error {
	return s.queueRepo.SoftDelete(ctx, id)
}
