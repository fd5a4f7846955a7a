package worker

import "time"

// 重试退避参数
const (
	backoffBase          = 5 * time.Minute  // network/unknown 基础间隔
	backoffBaseRateLimit = 15 * time.Minute // 限流错误基础间隔
	backoffCap           = 24 * time.Hour
)

// RetryDelay 计算下次重试的等待时长
//
// 策略：delay = base(错误类型) * 2^retryCount，封顶 24 小时。
// retryCount 为本次失败前已累计的失败次数，首次失败即 2^0 = base。
func RetryDelay(errorType string, retryCount int) time.Duration {
	base := backoffBase
	if errorType == ErrorTypeRateLimit {
		base = backoffBaseRateLimit
	}

	if retryCount < 0 {
		retryCount = 0
	}
	// 指数增长很快超过封顶值，移位前先截断避免溢出
	if retryCount > 16 {
		return backoffCap
	}

	delay := base << uint(retryCount)
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}
