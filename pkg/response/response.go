package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 统一响应格式
//
// 成功：HTTP 200 {"success": true, ...data}
// 失败：对应 HTTP 状态码 + {"error": "..."}，供 cron 调用方直接判断

// Success 成功响应，data 的键平铺在响应体顶层
func Success(c *gin.Context, data gin.H) {
	body := gin.H{"success": true}
	for k, v := range data {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

// Error 错误响应
func Error(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}
