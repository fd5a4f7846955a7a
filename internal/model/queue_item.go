package model

import (
	"time"

	"gorm.io/gorm"
)

// 队列条目状态
const (
	StatusPending    = "pending"    // 等待调度时间到达，或等待重试
	StatusQueued     = "queued"     // 已进入发布队列
	StatusPublishing = "publishing" // 发布中
	StatusPublished  = "published"  // 发布成功（终态）
	StatusFailed     = "failed"     // 发布失败（仅可通过重试重新入队）
	StatusCancelled  = "cancelled"  // 已取消（终态）
)

// 目标 CMS 平台
const (
	PlatformWordPress   = "wordpress"
	PlatformWebflow     = "webflow"
	PlatformShopify     = "shopify"
	PlatformGhost       = "ghost"
	PlatformNotion      = "notion"
	PlatformSquarespace = "squarespace"
	PlatformWix         = "wix"
	PlatformContentful  = "contentful"
	PlatformStrapi      = "strapi"
	PlatformCustom      = "custom"
)

// ValidStatusTransitions 状态机定义
//
// pending -> queued -> publishing -> published/failed
// failed -> pending（重试，设置 retry_after 后重新走 pending 通道）
// 非终态均可 -> cancelled（外部取消操作）
//
// publishing 只能由 queued 或 pending（重试通道）通过"标记开始"进入；
// published/failed 只能由 publishing 进入。
var ValidStatusTransitions = map[string][]string{
	StatusPending:    {StatusQueued, StatusPublishing, StatusCancelled},
	StatusQueued:     {StatusPublishing, StatusCancelled},
	StatusPublishing: {StatusPublished, StatusFailed, StatusCancelled},
	StatusFailed:     {StatusPending, StatusCancelled},
}

// CanTransitionTo 校验状态流转是否合法
func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// IsTerminalStatus 是否为终态
func IsTerminalStatus(status string) bool {
	return status == StatusPublished || status == StatusCancelled
}

// ValidPlatforms 支持的平台列表
var ValidPlatforms = map[string]bool{
	PlatformWordPress:   true,
	PlatformWebflow:     true,
	PlatformShopify:     true,
	PlatformGhost:       true,
	PlatformNotion:      true,
	PlatformSquarespace: true,
	PlatformWix:         true,
	PlatformContentful:  true,
	PlatformStrapi:      true,
	PlatformCustom:      true,
}

// IsValidPlatform 校验平台取值
func IsValidPlatform(platform string) bool {
	return ValidPlatforms[platform]
}

// PublishingQueueItem 发布队列条目
//
// 表示"把文章 X 发布到平台 Y"的一个工作单元。
// 软删除（deleted_at 非空）的条目对所有阶段查询不可见，由 gorm.DeletedAt
// 在查询层面强制过滤。
type PublishingQueueItem struct {
	ID               string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	ArticleID        string         `gorm:"type:varchar(64);index;not null" json:"article_id"`
	OrganizationID   string         `gorm:"type:varchar(64);index;not null" json:"organization_id"`
	Platform         string         `gorm:"type:varchar(32);index;not null" json:"platform"`
	Status           string         `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	Priority         int            `gorm:"not null;default:0" json:"priority"`
	ScheduledFor     *time.Time     `gorm:"index" json:"scheduled_for"`
	RetryAfter       *time.Time     `gorm:"index" json:"retry_after"`
	RetryCount       int            `gorm:"not null;default:0" json:"retry_count"`
	ErrorType        string         `gorm:"type:varchar(32)" json:"error_type,omitempty"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message,omitempty"`
	PublishedURL     string         `gorm:"type:varchar(512)" json:"published_url,omitempty"`
	PlatformResponse string         `gorm:"type:text" json:"platform_response,omitempty"`
	QueuedAt         *time.Time     `json:"queued_at"`
	StartedAt        *time.Time     `json:"started_at"`
	CompletedAt      *time.Time     `json:"completed_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (PublishingQueueItem) TableName() string {
	return "publishing_queue_item"
}
