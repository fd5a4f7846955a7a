package handler

import (
	"errors"
	"strconv"
	"time"

	"pubqueue/internal/config"
	"pubqueue/internal/infrastructure/lock"
	"pubqueue/internal/model"
	"pubqueue/internal/repository"
	"pubqueue/internal/service"
	"pubqueue/internal/worker"
	"pubqueue/pkg/idgen"
	"pubqueue/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	queueService *service.QueueService
	worker       *worker.Worker
	redisClient  *redis.Client
	cfg          *config.Config
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, w *worker.Worker, cfg *config.Config) *Handler {
	return &Handler{
		queueService: service.NewQueueService(db, cfg),
		worker:       w,
		redisClient:  rdb,
		cfg:          cfg,
	}
}

// ============================================================
// worker 触发接口
// ============================================================

// RunWorkerRequest 触发请求
type RunWorkerRequest struct {
	Platform string `json:"platform"`
	Limit    int    `json:"limit"`
}

// RunWorker 触发一次 worker 运行
// POST /api/v1/worker
//
// cron 或管理员手动调用。Redis 可用时先抢运行锁，
// 挡掉重叠触发（正确性仍由条目级条件更新保证）。
func (h *Handler) RunWorker(c *gin.Context) {
	var req RunWorkerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	if req.Platform != "" && !model.IsValidPlatform(req.Platform) {
		response.ParamError(c, "platform 取值不合法")
		return
	}
	if req.Limit < 0 {
		response.ParamError(c, "limit 不能为负数")
		return
	}

	if h.redisClient != nil {
		expiration := time.Duration(h.cfg.Worker.MaxProcessingTimeMs) * time.Millisecond
		runLock := lock.NewWorkerRunLock(h.redisClient, req.Platform, idgen.GenerateItemID(), expiration)

		ok, err := runLock.TryLock(c.Request.Context())
		if err == nil && !ok {
			response.Conflict(c, "worker 正在运行中")
			return
		}
		if err == nil {
			defer runLock.Unlock(c.Request.Context())
		}
		// Redis 故障时降级为无锁运行
	}

	result := h.worker.Run(c.Request.Context(), worker.Options{
		Platform: req.Platform,
		Limit:    req.Limit,
	})

	response.Success(c, gin.H{"result": result})
}

// WorkerStatus 查询各阶段就绪条目
// GET /api/v1/worker?platform=xxx
func (h *Handler) WorkerStatus(c *gin.Context) {
	platform := c.Query("platform")
	if platform != "" && !model.IsValidPlatform(platform) {
		response.ParamError(c, "platform 取值不合法")
		return
	}

	status, err := h.worker.Status(c.Request.Context(), platform)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"scheduled": status.Scheduled,
		"queued":    status.Queued,
		"retry":     status.Retry,
	})
}

// ============================================================
// 队列条目管理接口
// ============================================================

// CreateItem 创建队列条目
// POST /api/v1/queue/items
func (h *Handler) CreateItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.queueService.CreateItem(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, repository.ErrPlatformInvalid) {
			response.ParamError(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"item": item})
}

// GetItem 查询条目详情
// GET /api/v1/queue/items/:id
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.queueService.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"item": item})
}

// ListItems 按组织查询条目列表
// GET /api/v1/queue/items?organization_id=xxx&page=1&page_size=10
func (h *Handler) ListItems(c *gin.Context) {
	organizationID := c.Query("organization_id")
	if organizationID == "" {
		response.ParamError(c, "organization_id 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	items, total, err := h.queueService.ListItems(c.Request.Context(), organizationID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// CancelItem 取消条目
// POST /api/v1/queue/items/:id/cancel
func (h *Handler) CancelItem(c *gin.Context) {
	item, err := h.queueService.CancelItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrItemNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrItemTerminal):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrConcurrentUpdate):
			response.Conflict(c, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, gin.H{"item": item})
}

// RetryItem 人工重试失败条目
// POST /api/v1/queue/items/:id/retry
func (h *Handler) RetryItem(c *gin.Context) {
	item, err := h.queueService.RetryItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrItemNotFound):
			response.NotFound(c, err.Error())
		case errors.Is(err, service.ErrItemNotRetryable):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrConcurrentUpdate):
			response.Conflict(c, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, gin.H{"item": item})
}

// DeleteItem 软删除条目
// DELETE /api/v1/queue/items/:id
func (h *Handler) DeleteItem(c *gin.Context) {
	if err := h.queueService.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"message": "条目已删除"})
}
