package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/middleware"
)

// listResponse 列表统一响应结构
type listResponse struct {
	Data interface{} `json:"data"`
}

// messageResponse 仅包含提示信息的响应
type messageResponse struct {
	Message string `json:"message"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created 创建成功响应（201）
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Accepted 已受理响应（202），用于后台执行的操作
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// List 列表响应（200），数据包装在 data 字段中
func List(c *gin.Context, items interface{}) {
	c.JSON(http.StatusOK, listResponse{Data: items})
}

// Message 提示信息响应（200）
func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, messageResponse{Message: msg})
}

// NoContent 无内容响应（204）- 通常用于删除成功
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail 错误响应，统一交给中间件渲染
func Fail(c *gin.Context, err error) {
	middleware.WriteError(c, err)
}
