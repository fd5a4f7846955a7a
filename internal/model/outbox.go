package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 发布结果事件类型，写入 outbox 后由后台任务投递到 Kafka
const (
	EventItemPublished = "item.published"
	EventItemFailed    = "item.failed"
)

// OutboxMessage 发布结果事件的 outbox 记录
//
// 在标记条目发布成功/失败的同一事务内写入，保证事件与状态变更的一致性。
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// PublishEventPayload Kafka 事件体
type PublishEventPayload struct {
	Event          string `json:"event"`
	ItemID         string `json:"item_id"`
	ArticleID      string `json:"article_id"`
	OrganizationID string `json:"organization_id"`
	Platform       string `json:"platform"`
	PublishedURL   string `json:"published_url,omitempty"`
	ErrorType      string `json:"error_type,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	RetryCount     int    `json:"retry_count"`
	OccurredAt     string `json:"occurred_at"`
}
