package handler

import (
	"crypto/subtle"
	"log"
	"time"

	"pubqueue/internal/config"
	"pubqueue/pkg/response"

	"github.com/gin-gonic/gin"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"error": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-Cron-Secret")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// CronAuthMiddleware worker 触发鉴权
//
// 校验 x-cron-secret 请求头。secret 未配置时一律拒绝：
// 宁可 worker 触发失败，也不把入口裸露在公网上。
func CronAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := cfg.Worker.CronSecret
		if secret == "" {
			response.Unauthorized(c, "CRON_SECRET 未配置，拒绝未认证调用")
			c.Abort()
			return
		}

		provided := c.GetHeader("x-cron-secret")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			response.Unauthorized(c, "cron secret 校验失败")
			c.Abort()
			return
		}

		c.Next()
	}
}
