// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	apperrors "github.com/rrstoll/langchain-story-generator/internal/errors"
	"github.com/rrstoll/langchain-story-generator/internal/llm"
	"github.com/rrstoll/langchain-story-generator/internal/models"
	"github.com/rrstoll/langchain-story-generator/internal/services"
	"github.com/rrstoll/langchain-story-generator/internal/utils"
)

// asyncGenerateTimeout 异步任务的总超时
const asyncGenerateTimeout = 5 * time.Minute

// Handler 处理API请求
type Handler struct {
	StoryService    *services.StoryService    // 故事生成服务
	ProgressService *services.ProgressService // 进度跟踪服务
	StatsService    *services.StatsService    // 统计服务
	ConfigService   *services.ConfigService   // 配置服务
	LLMService      *services.LLMService      // LLM服务
	Response        *ResponseHelper           // 响应助手

	// 异步模式的结果暂存，按任务ID隔离并自动过期
	results *gocache.Cache
}

// NewHandler 创建API处理器
func NewHandler(
	storyService *services.StoryService,
	progressService *services.ProgressService,
	statsService *services.StatsService,
	configService *services.ConfigService,
	llmService *services.LLMService,
) *Handler {
	return &Handler{
		StoryService:    storyService,
		ProgressService: progressService,
		StatsService:    statsService,
		ConfigService:   configService,
		LLMService:      llmService,
		Response:        NewResponseHelper(),
		results:         gocache.New(10*time.Minute, 5*time.Minute),
	}
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"` // 用于调试和追踪
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// exampleIdeas 首页展示的灵感示例
var exampleIdeas = []string{
	"A detective who can see object histories",
	"Time stops except for librarians",
	"Plants gossip through social media",
	"A memory thief's forgotten past",
	"Lies become temporarily true",
}

// IndexPage 渲染首页
func (h *Handler) IndexPage(c *gin.Context) {
	ready, state := h.LLMService.GetProviderStatus()

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":        "AI Story Generator",
		"Examples":     exampleIdeas,
		"LLMReady":     ready,
		"LLMState":     state,
		"SectionOrder": models.SectionOrder,
	})
}

// ========================================
// 故事生成
// ========================================

// GenerateStory 处理一次故事生成请求
// 同步模式直接返回完整故事包；async=true 时立即返回任务ID，
// 结果通过 /api/story/result/:taskID 获取，进度通过 SSE 或 WebSocket 跟踪
func (h *Handler) GenerateStory(c *gin.Context) {
	var req models.StoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	// 校验和凭证检查前置，失败时不产生任务也不调用外部服务
	if err := h.StoryService.ValidateIdea(req.Idea); err != nil {
		h.StatsService.RecordRejectedInput()
		h.Response.BadRequest(c, err.Error())
		return
	}

	if ready, state := h.LLMService.GetProviderStatus(); !ready {
		h.Response.ServiceUnavailable(c, "LLM服务未就绪: "+state)
		return
	}

	taskID := uuid.NewString()

	if req.Async {
		h.ProgressService.CreateTracker(taskID)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), asyncGenerateTimeout)
			defer cancel()

			pkg, err := h.StoryService.GenerateStoryPackage(ctx, taskID, req.Idea)
			if err != nil {
				if tracker, exists := h.ProgressService.GetTracker(taskID); exists {
					tracker.Fail(err.Error())
				}
				return
			}

			h.results.Set(taskID, pkg, gocache.DefaultExpiration)
		}()

		h.Response.Accepted(c, gin.H{
			"task_id":      taskID,
			"progress_url": fmt.Sprintf("/api/progress/%s", taskID),
			"result_url":   fmt.Sprintf("/api/story/result/%s", taskID),
		})
		return
	}

	pkg, err := h.StoryService.GenerateStoryPackage(c.Request.Context(), taskID, req.Idea)
	if err != nil {
		switch {
		case apperrors.IsValidationError(err):
			h.Response.BadRequest(c, err.Error())
		case apperrors.IsCredentialError(err):
			h.Response.ServiceUnavailable(c, err.Error())
		default:
			h.Response.InternalError(c, "故事生成失败", err.Error())
		}
		return
	}

	h.Response.Success(c, pkg)
}

// GetStoryResult 获取异步任务的生成结果
func (h *Handler) GetStoryResult(c *gin.Context) {
	taskID := c.Param("taskID")

	if value, found := h.results.Get(taskID); found {
		h.Response.Success(c, value.(*models.StoryPackage))
		return
	}

	// 结果还没就绪：区分进行中、暂存中和未知任务
	if tracker, exists := h.ProgressService.GetTracker(taskID); exists {
		snapshot := tracker.Snapshot()
		switch snapshot.Status {
		case "running":
			h.Response.Accepted(c, snapshot, "任务仍在进行中")
			return
		case "completed":
			// 已完成但结果尚未暂存完毕的瞬间
			h.Response.Accepted(c, snapshot, "结果整理中，请稍后重试")
			return
		case "failed":
			h.Response.InternalError(c, snapshot.Message)
			return
		}
	}

	h.Response.NotFound(c, "任务")
}

// SubscribeProgress 通过SSE订阅生成任务的进度
func (h *Handler) SubscribeProgress(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.ProgressService.GetTracker(taskID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}

	// 设置SSE响应头
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()

	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	// 发送初始事件保持连接打开
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"message\":\"连接已建立\"}\n\n")
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}

			data, _ := json.Marshal(update)
			fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", string(data))
			c.Writer.Flush()

			// 任务结束后断开
			if update.Status == "completed" || update.Status == "failed" {
				return
			}
		case <-ticker.C:
			// 心跳保持连接
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {\"time\":%d}\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

// ========================================
// LLM状态和配置
// ========================================

// GetLLMStatus 返回LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	ready, state := h.LLMService.GetProviderStatus()

	h.Response.Success(c, gin.H{
		"ready":    ready,
		"state":    state,
		"provider": h.LLMService.GetProviderName(),
	})
}

// GetLLMModels 返回可用的提供商和模型列表
func (h *Handler) GetLLMModels(c *gin.Context) {
	providerName := c.Query("provider")
	if providerName != "" {
		h.Response.Success(c, gin.H{
			"provider": providerName,
			"models":   llm.GetSupportedModelsForProvider(providerName),
		})
		return
	}

	result := make(map[string][]string)
	for _, name := range llm.ListProviders() {
		result[name] = llm.GetSupportedModelsForProvider(name)
	}

	h.Response.Success(c, result)
}

// UpdateLLMConfigRequest 更新LLM配置的请求结构
type UpdateLLMConfigRequest struct {
	Provider string            `json:"provider"`
	Config   map[string]string `json:"config"`
}

// UpdateLLMConfig 更新LLM提供商配置
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req UpdateLLMConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	if err := h.ConfigService.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.Response.BadRequest(c, "更新配置失败", err.Error())
		return
	}

	if err := h.LLMService.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.InternalError(c, "提供商初始化失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"provider": req.Provider}, "配置已更新")
}

// GetSettings 返回当前设置（密钥脱敏）
func (h *Handler) GetSettings(c *gin.Context) {
	cfg := h.ConfigService.GetCurrentConfig()
	if cfg == nil {
		h.Response.InternalError(c, "配置系统未初始化")
		return
	}

	h.Response.Success(c, gin.H{
		"provider":      cfg.LLMProvider,
		"default_model": cfg.LLMConfig["default_model"],
		"api_key_set":   cfg.LLMConfig["api_key"] != "",
		"api_key_hint":  maskAPIKey(cfg.LLMConfig["api_key"]),
		"debug_mode":    cfg.DebugMode,
	})
}

// SaveSettings 保存设置页面提交的配置
func (h *Handler) SaveSettings(c *gin.Context) {
	h.UpdateLLMConfig(c)
}

// TestConnectionRequest 测试连接的请求结构
type TestConnectionRequest struct {
	Provider string            `json:"provider"`
	Config   map[string]string `json:"config"`
}

// TestConnection 用一次最小调用验证提供商配置
func (h *Handler) TestConnection(c *gin.Context) {
	var req TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := h.LLMService.TestConnection(ctx, req.Provider, req.Config); err != nil {
		utils.GetLogger().Warnf("连接测试失败: %v", err)
		h.Response.BadRequest(c, "连接测试失败", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"provider": req.Provider}, "连接正常")
}

// ========================================
// 统计
// ========================================

// GetStats 返回使用统计和当前活跃任务数
func (h *Handler) GetStats(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"usage":        h.StatsService.GetStats(),
		"active_tasks": h.ProgressService.ActiveCount(),
	})
}

// maskAPIKey 密钥脱敏，只保留前后各4位
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
