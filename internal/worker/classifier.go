package worker

import (
	"context"
	"errors"
	"net"
	"strings"

	"pubqueue/internal/publisher"
)

// 错误分类，持久化到条目的 error_type 字段
const (
	ErrorTypeNetwork    = "network"    // 网络/临时故障，可重试
	ErrorTypeRateLimit  = "rate_limit" // 平台限流，可重试（退避更长）
	ErrorTypeAuth       = "auth"       // 鉴权/权限错误，不可重试
	ErrorTypeValidation = "validation" // 参数/内容校验错误，不可重试
	ErrorTypeUnknown    = "unknown"    // 未知错误，保守地允许重试
)

// Classification 错误分类结果
type Classification struct {
	Type      string
	Retryable bool
}

// Classify 对发布错误进行分类
//
// 纯函数：无 I/O，相同错误输入产生相同分类。
// 优先识别结构化的 APIError，按 HTTP 状态码归类；
// 其次识别网络层错误；最后按错误文本做启发式匹配。
func Classify(err error) Classification {
	if err == nil {
		return Classification{Type: ErrorTypeUnknown, Retryable: false}
	}

	var apiErr *publisher.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return Classification{Type: ErrorTypeRateLimit, Retryable: true}
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return Classification{Type: ErrorTypeAuth, Retryable: false}
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 422:
			return Classification{Type: ErrorTypeValidation, Retryable: false}
		case apiErr.StatusCode >= 500:
			return Classification{Type: ErrorTypeNetwork, Retryable: true}
		}
		return Classification{Type: ErrorTypeUnknown, Retryable: true}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Type: ErrorTypeNetwork, Retryable: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Classification{Type: ErrorTypeNetwork, Retryable: true}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return Classification{Type: ErrorTypeRateLimit, Retryable: true}
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden") ||
		strings.Contains(msg, "invalid token") || strings.Contains(msg, "invalid credentials"):
		return Classification{Type: ErrorTypeAuth, Retryable: false}
	case strings.Contains(msg, "validation") || strings.Contains(msg, "invalid request") ||
		strings.Contains(msg, "bad request"):
		return Classification{Type: ErrorTypeValidation, Retryable: false}
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network"):
		return Classification{Type: ErrorTypeNetwork, Retryable: true}
	}

	return Classification{Type: ErrorTypeUnknown, Retryable: true}
}
