// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rrstoll/langchain-story-generator/internal/utils"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 本地演示服务，放开来源检查
		return true
	},
}

// wsWriteTimeout 单次写入的超时
const wsWriteTimeout = 10 * time.Second

// wsPingInterval 心跳间隔
const wsPingInterval = 15 * time.Second

// ProgressWebSocket 通过 WebSocket 推送生成任务的进度
// 连接在任务完成、失败或客户端断开后关闭
func (h *Handler) ProgressWebSocket(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.ProgressService.GetTracker(taskID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warnf("WebSocket升级失败: %v", err)
		return
	}
	defer conn.Close()

	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	// 读取goroutine只用于感知客户端断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}

			data, err := json.Marshal(update)
			if err != nil {
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// 任务结束后关闭连接
			if update.Status == "completed" || update.Status == "failed" {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
