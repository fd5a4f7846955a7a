package model

import "time"

// 阶段查询排序方式
const (
	OrderByScheduledFor = "scheduled_for" // scheduled_for 升序，先到期先处理
	OrderByPriority     = "priority"      // priority 降序，同优先级按 id 升序保证稳定
	OrderByRetryAfter   = "retry_after"   // retry_after 升序
)

// EligibleCriteria 阶段查询条件
//
// 软删除条目由查询层统一排除，调用方无需关心。
type EligibleCriteria struct {
	Status          string
	Platform        string // 为空表示不按平台过滤
	ScheduledBefore *time.Time
	RetryBefore     *time.Time
	OrderBy         string
	Limit           int
}
