package handler

import (
	"pubqueue/internal/config"
	"pubqueue/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, w *worker.Worker, cfg *config.Config) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, w, cfg)

	// API 路由组
	api := r.Group("/api/v1")
	{
		// worker 触发（cron secret 鉴权）
		workerGroup := api.Group("/worker", CronAuthMiddleware(cfg))
		{
			workerGroup.POST("", h.RunWorker)
			workerGroup.GET("", h.WorkerStatus)
		}

		// 队列条目管理
		queue := api.Group("/queue")
		{
			queue.POST("/items", h.CreateItem)
			queue.GET("/items", h.ListItems)
			queue.GET("/items/:id", h.GetItem)
			queue.POST("/items/:id/cancel", h.CancelItem)
			queue.POST("/items/:id/retry", h.RetryItem)
			queue.DELETE("/items/:id", h.DeleteItem)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
