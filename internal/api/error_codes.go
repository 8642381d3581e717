// internal/api/error_codes.go
package api

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMITED"

	// 故事生成相关错误
	ErrorIdeaInvalid      = "IDEA_INVALID"
	ErrorGenerationFailed = "GENERATION_FAILED"
	ErrorTaskNotFound     = "TASK_NOT_FOUND"

	// LLM服务相关错误
	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
	ErrorConnectionFailed      = "CONNECTION_FAILED"
	ErrorAPIKeyMissing         = "API_KEY_MISSING"
)
