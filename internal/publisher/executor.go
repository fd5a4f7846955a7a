package publisher

import (
	"context"
	"fmt"

	"pubqueue/internal/model"
)

// Result 一次发布成功的结果
type Result struct {
	URL              string `json:"url"`
	PlatformResponse string `json:"platform_response,omitempty"` // 平台返回的原始元数据（JSON 字符串）
}

// Executor CMS 发布执行器
//
// 实现必须幂等：对同一条目重复调用不应产生重复文章。
// Publish 成功返回发布后的 URL，失败返回 error（由调用方分类）。
type Executor interface {
	Publish(ctx context.Context, item *model.PublishingQueueItem) (*Result, error)
}

// APIError CMS 平台接口返回的错误
//
// StatusCode 用于错误分类：429 限流、401/403 鉴权、400/422 参数校验、5xx 临时故障。
type APIError struct {
	Platform   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("平台 %s 返回错误: status=%d, message=%s", e.Platform, e.StatusCode, e.Message)
}
