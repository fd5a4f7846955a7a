package publisher

import (
	"context"
	"fmt"
	"time"

	"pubqueue/internal/model"
)

// 各平台模拟发布耗时
var platformLatency = map[string]time.Duration{
	model.PlatformWordPress:   300 * time.Millisecond,
	model.PlatformWebflow:     500 * time.Millisecond,
	model.PlatformShopify:     400 * time.Millisecond,
	model.PlatformGhost:       200 * time.Millisecond,
	model.PlatformNotion:      600 * time.Millisecond,
	model.PlatformSquarespace: 500 * time.Millisecond,
	model.PlatformWix:         500 * time.Millisecond,
	model.PlatformContentful:  300 * time.Millisecond,
	model.PlatformStrapi:      200 * time.Millisecond,
	model.PlatformCustom:      400 * time.Millisecond,
}

// SimulatedExecutor 模拟 CMS 发布执行器
//
// 真实的 CMS 适配器（WordPress REST、Webflow API 等）由外部系统提供，
// 这里按平台模拟网络耗时并返回伪造的发布 URL，用于联调和本地部署。
// FailFor 可为指定文章注入失败，便于验证失败通道。
type SimulatedExecutor struct {
	FailFor map[string]error // articleID -> 注入的错误
}

func NewSimulatedExecutor() *SimulatedExecutor {
	return &SimulatedExecutor{}
}

func (e *SimulatedExecutor) Publish(ctx context.Context, item *model.PublishingQueueItem) (*Result, error) {
	if err, ok := e.FailFor[item.ArticleID]; ok && err != nil {
		return nil, err
	}

	latency, ok := platformLatency[item.Platform]
	if !ok {
		return nil, &APIError{
			Platform:   item.Platform,
			StatusCode: 400,
			Message:    "不支持的平台",
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(latency):
	}

	url := fmt.Sprintf("https://%s.example.com/articles/%s", item.Platform, item.ArticleID)
	return &Result{
		URL:              url,
		PlatformResponse: fmt.Sprintf(`{"platform":%q,"article_id":%q}`, item.Platform, item.ArticleID),
	}, nil
}
