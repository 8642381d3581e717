// internal/api/handlers_test.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rrstoll/langchain-story-generator/internal/llm"
	"github.com/rrstoll/langchain-story-generator/internal/models"
	"github.com/rrstoll/langchain-story-generator/internal/services"
)

// stubProvider 测试用的可编程提供者
type stubProvider struct {
	respond func(req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

func (p *stubProvider) Initialize(config map[string]string) error { return nil }
func (p *stubProvider) GetName() string                           { return "Stub" }
func (p *stubProvider) GetSupportedModels() []string              { return []string{"stub-model"} }

func (p *stubProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.respond != nil {
		return p.respond(req)
	}
	return &llm.CompletionResponse{Text: "generated", TokensUsed: 10}, nil
}

// setupTestRouter 构建一个只挂载故事相关路由的测试路由
func setupTestRouter(t *testing.T, llmService *services.LLMService) (*gin.Engine, *Handler) {
	gin.SetMode(gin.TestMode)

	progressService := services.NewProgressService()
	statsService := services.NewStatsService(t.TempDir())
	storyService := services.NewStoryService(llmService, progressService, statsService)

	handler := NewHandler(storyService, progressService, statsService, nil, llmService)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.POST("/api/story/generate", handler.GenerateStory)
	r.GET("/api/story/result/:taskID", handler.GetStoryResult)
	r.GET("/api/llm/status", handler.GetLLMStatus)
	r.GET("/api/stats", handler.GetStats)

	return r, handler
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func getJSON(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateStory_Sync(t *testing.T) {
	llmService := services.NewLLMServiceWithProvider("stub", &stubProvider{})
	r, _ := setupTestRouter(t, llmService)

	w := postJSON(r, "/api/story/generate", `{"idea": "A detective who can see object histories"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("期望200，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool                `json:"success"`
		Data    models.StoryPackage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !resp.Success {
		t.Error("响应的success应为true")
	}
	if len(resp.Data.Sections) != 5 {
		t.Errorf("期望5个段落，实际 %d", len(resp.Data.Sections))
	}
	for _, section := range resp.Data.Sections {
		if section.Content == "" {
			t.Errorf("段落 %s 内容为空", section.Key)
		}
	}

	// 请求ID应回写到响应头
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("响应应携带X-Request-ID头")
	}
}

func TestGenerateStory_InvalidIdea(t *testing.T) {
	llmService := services.NewLLMServiceWithProvider("stub", &stubProvider{})
	r, handler := setupTestRouter(t, llmService)

	w := postJSON(r, "/api/story/generate", `{"idea": "ab"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("无效输入期望400，实际 %d", w.Code)
	}

	// 校验拒绝计入统计
	if stats := handler.StatsService.GetStats(); stats.RejectedInputs != 1 {
		t.Errorf("拒绝输入数期望1，实际 %d", stats.RejectedInputs)
	}
}

func TestGenerateStory_MalformedJSON(t *testing.T) {
	llmService := services.NewLLMServiceWithProvider("stub", &stubProvider{})
	r, _ := setupTestRouter(t, llmService)

	w := postJSON(r, "/api/story/generate", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("格式错误的JSON期望400，实际 %d", w.Code)
	}
}

func TestGenerateStory_ServiceNotReady(t *testing.T) {
	r, _ := setupTestRouter(t, services.NewEmptyLLMService())

	w := postJSON(r, "/api/story/generate", `{"idea": "A story about a lonely robot"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("服务未就绪期望503，实际 %d", w.Code)
	}
}

func TestGenerateStory_Async(t *testing.T) {
	llmService := services.NewLLMServiceWithProvider("stub", &stubProvider{})
	r, _ := setupTestRouter(t, llmService)

	w := postJSON(r, "/api/story/generate", `{"idea": "Time stops except for librarians", "async": true}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("异步模式期望202，实际 %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data struct {
			TaskID      string `json:"task_id"`
			ProgressURL string `json:"progress_url"`
			ResultURL   string `json:"result_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Data.TaskID == "" {
		t.Fatal("异步响应应包含task_id")
	}
	if !strings.Contains(resp.Data.ResultURL, resp.Data.TaskID) {
		t.Errorf("result_url应包含任务ID: %s", resp.Data.ResultURL)
	}

	// 轮询结果直到任务完成
	deadline := time.Now().Add(5 * time.Second)
	for {
		result := getJSON(r, "/api/story/result/"+resp.Data.TaskID)
		if result.Code == http.StatusOK {
			var resultResp struct {
				Data models.StoryPackage `json:"data"`
			}
			if err := json.Unmarshal(result.Body.Bytes(), &resultResp); err != nil {
				t.Fatalf("解析结果失败: %v", err)
			}
			if len(resultResp.Data.Sections) != 5 {
				t.Errorf("期望5个段落，实际 %d", len(resultResp.Data.Sections))
			}
			return
		}
		if result.Code != http.StatusAccepted {
			t.Fatalf("轮询中收到意外状态码 %d: %s", result.Code, result.Body.String())
		}
		if time.Now().After(deadline) {
			t.Fatal("异步任务超时未完成")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestGetStoryResult_UnknownTask(t *testing.T) {
	llmService := services.NewLLMServiceWithProvider("stub", &stubProvider{})
	r, _ := setupTestRouter(t, llmService)

	w := getJSON(r, "/api/story/result/no-such-task")
	if w.Code != http.StatusNotFound {
		t.Errorf("未知任务期望404，实际 %d", w.Code)
	}
}

func TestGetLLMStatus(t *testing.T) {
	llmService := services.NewLLMServiceWithProvider("stub", &stubProvider{})
	r, _ := setupTestRouter(t, llmService)

	w := getJSON(r, "/api/llm/status")
	if w.Code != http.StatusOK {
		t.Fatalf("期望200，实际 %d", w.Code)
	}

	var resp struct {
		Data struct {
			Ready    bool   `json:"ready"`
			Provider string `json:"provider"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if !resp.Data.Ready {
		t.Error("状态应为ready")
	}
	if resp.Data.Provider != "stub" {
		t.Errorf("提供商名称期望stub，实际: %s", resp.Data.Provider)
	}
}

func TestGetStats(t *testing.T) {
	llmService := services.NewLLMServiceWithProvider("stub", &stubProvider{})
	r, handler := setupTestRouter(t, llmService)

	handler.StatsService.RecordGeneration(50, 120, 0)
	handler.ProgressService.CreateTracker("stats-task")

	w := getJSON(r, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("期望200，实际 %d", w.Code)
	}

	var resp struct {
		Data struct {
			Usage       services.UsageStats `json:"usage"`
			ActiveTasks int                 `json:"active_tasks"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if resp.Data.Usage.TotalRequests != 1 {
		t.Errorf("累计请求数期望1，实际 %d", resp.Data.Usage.TotalRequests)
	}
	if resp.Data.ActiveTasks != 1 {
		t.Errorf("活跃任务数期望1，实际 %d", resp.Data.ActiveTasks)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter := NewRateLimiter()

	for i := 0; i < 3; i++ {
		if !limiter.Allow("client-1", 3, time.Minute) {
			t.Fatalf("第 %d 次请求应被允许", i+1)
		}
	}
	if limiter.Allow("client-1", 3, time.Minute) {
		t.Error("超过限额的请求应被拒绝")
	}

	// 不同客户端互不影响
	if !limiter.Allow("client-2", 3, time.Minute) {
		t.Error("其他客户端的请求不应受影响")
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	limiter := NewRateLimiter()

	if !limiter.Allow("client", 1, 10*time.Millisecond) {
		t.Fatal("首次请求应被允许")
	}
	if limiter.Allow("client", 1, 10*time.Millisecond) {
		t.Fatal("限额用尽后应拒绝")
	}

	time.Sleep(20 * time.Millisecond)
	if !limiter.Allow("client", 1, 10*time.Millisecond) {
		t.Error("窗口过期后应重新允许")
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	cases := []struct {
		message string
		masked  bool
	}{
		{"invalid api_key provided", true},
		{"Bearer sk-12345 rejected", true},
		{"client secret mismatch", true},
		{"生成失败，请稍后重试", false},
	}

	for _, tc := range cases {
		got := sanitizeErrorMessage(tc.message)
		if tc.masked && got != "An internal error occurred" {
			t.Errorf("敏感消息 %q 应被脱敏，实际: %q", tc.message, got)
		}
		if !tc.masked && got != tc.message {
			t.Errorf("普通消息 %q 不应被修改，实际: %q", tc.message, got)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "****"},
		{"sk-abcdefghijklmnop", "sk-a****mnop"},
	}

	for _, tc := range cases {
		if got := maskAPIKey(tc.key); got != tc.want {
			t.Errorf("maskAPIKey(%q) = %q, 期望 %q", tc.key, got, tc.want)
		}
	}
}
