// internal/services/story_service.go
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/rrstoll/langchain-story-generator/internal/errors"
	"github.com/rrstoll/langchain-story-generator/internal/llm"
	"github.com/rrstoll/langchain-story-generator/internal/models"
	"github.com/rrstoll/langchain-story-generator/internal/utils"
	"golang.org/x/sync/errgroup"
)

// 输入校验边界
const (
	minIdeaLength = 5
	maxIdeaLength = 500
)

// perSectionTimeout 单个段落调用的超时上限
const perSectionTimeout = 60 * time.Second

// StoryService 把一个故事灵感编排为五段式故事包
// 每个段落独立调用一次补全接口，单段失败不影响其余段落
type StoryService struct {
	LLMService      *LLMService
	ProgressService *ProgressService
	StatsService    *StatsService
}

// NewStoryService 创建故事生成服务
func NewStoryService(llmService *LLMService, progressService *ProgressService, statsService *StatsService) *StoryService {
	return &StoryService{
		LLMService:      llmService,
		ProgressService: progressService,
		StatsService:    statsService,
	}
}

// ValidateIdea 校验用户输入，在任何外部调用之前执行
// 长度按字符数而不是字节数计算，与页面输入框的maxlength一致
func (s *StoryService) ValidateIdea(idea string) error {
	trimmed := strings.TrimSpace(idea)

	if trimmed == "" {
		return apperrors.NewValidationError("请输入一个故事灵感", nil)
	}

	length := utf8.RuneCountInString(trimmed)
	if length < minIdeaLength {
		return apperrors.NewValidationError("故事灵感太短，至少需要5个字符", nil)
	}
	if length > maxIdeaLength {
		return apperrors.NewValidationError("故事灵感太长，请控制在500个字符以内", nil)
	}

	return nil
}

// GenerateStoryPackage 执行完整的五段生成流程
//
// 阶段一：故事概念（后续段落都以它为上下文）
// 阶段二：情节大纲、角色设定、营销推介（只依赖概念，可并发）
// 阶段三：开场场景（依赖概念和角色设定）
//
// 凭证缺失和输入校验是请求级失败；其余错误都隔离在各自段落内
func (s *StoryService) GenerateStoryPackage(ctx context.Context, packageID, idea string) (*models.StoryPackage, error) {
	if err := s.ValidateIdea(idea); err != nil {
		if s.StatsService != nil {
			s.StatsService.RecordRejectedInput()
		}
		return nil, err
	}
	idea = strings.TrimSpace(idea)

	if ready, state := s.LLMService.GetProviderStatus(); !ready {
		return nil, apperrors.NewCredentialError(state, ErrLLMNotReady)
	}

	logger := utils.GetLogger()
	logger.Info("开始生成故事包", map[string]interface{}{"task_id": packageID})

	var tracker *ProgressTracker
	if s.ProgressService != nil {
		tracker, _ = s.ProgressService.GetTracker(packageID)
	}
	pkg := models.NewStoryPackage(packageID, idea)

	// 阶段一：故事概念
	s.updateProgress(tracker, 10, "正在创建故事概念...")
	concept := s.generateSection(ctx, pkg, models.SectionConcept, BuildConceptPrompt(idea))

	// 概念失败时后续段落退回使用原始灵感，保持段落间互不阻断
	conceptContext := concept
	if conceptContext == "" {
		conceptContext = idea
	}

	// 阶段二：三个只依赖概念的段落并发执行
	// 每个goroutine把错误记录在自己的段落里，永远返回nil
	s.updateProgress(tracker, 30, "正在展开情节、角色和推介...")
	var group errgroup.Group
	group.Go(func() error {
		s.generateSection(ctx, pkg, models.SectionPlot, BuildPlotPrompt(conceptContext))
		return nil
	})
	group.Go(func() error {
		s.generateSection(ctx, pkg, models.SectionCharacters, BuildCharactersPrompt(conceptContext))
		return nil
	})
	group.Go(func() error {
		s.generateSection(ctx, pkg, models.SectionPitch, BuildPitchPrompt(conceptContext))
		return nil
	})
	group.Wait()

	// 阶段三：开场场景
	s.updateProgress(tracker, 80, "正在撰写开场场景...")
	characters := ""
	if section := pkg.Section(models.SectionCharacters); section != nil && section.OK() {
		characters = section.Content
	}
	s.generateSection(ctx, pkg, models.SectionScene, BuildScenePrompt(conceptContext, characters))

	failed := pkg.FailedSections()
	if s.StatsService != nil {
		s.StatsService.RecordGeneration(pkg.TokensUsed, pkg.TotalChars, len(failed))
	}

	if tracker != nil {
		if len(failed) == 0 {
			tracker.Complete("故事包生成完成")
		} else if len(failed) == len(models.SectionOrder) {
			tracker.Fail("所有段落生成失败")
		} else {
			tracker.Complete("故事包生成完成（部分段落失败）")
		}
	}

	logger.Info("故事包生成结束", map[string]interface{}{
		"task_id":         packageID,
		"total_chars":     pkg.TotalChars,
		"tokens_used":     pkg.TokensUsed,
		"failed_sections": len(failed),
	})

	return pkg, nil
}

// generateSection 调用一次补全接口并把结果写入段落
// 返回生成的文本，失败时返回空串并在段落上留下用户可读的错误标记
func (s *StoryService) generateSection(ctx context.Context, pkg *models.StoryPackage, key models.SectionKey, prompt string) string {
	params := GetSectionParams(key)

	callCtx, cancel := context.WithTimeout(ctx, perSectionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.LLMService.CompleteText(callCtx, llm.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	})
	elapsed := time.Since(start)

	if err != nil {
		appErr := classifySectionError(err)
		utils.GetLogger().Error("段落生成失败", map[string]interface{}{
			"section": string(key),
			"code":    appErr.Code,
			"error":   err.Error(),
		})
		pkg.SetError(key, appErr.Message, appErr.Code)
		return ""
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		// 空响应按失败处理，避免渲染出无内容的标签页
		appErr := apperrors.NewProcessingError("服务返回了空内容，请重试", nil)
		pkg.SetError(key, appErr.Message, appErr.Code)
		return ""
	}

	pkg.SetContent(key, text, resp.TokensUsed, elapsed)
	return text
}

// classifySectionError 把提供商错误翻译为带类型的段落错误
func classifySectionError(err error) *apperrors.AppError {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "429"):
		return apperrors.NewRateLimitedError("请求频率受限，请稍等几分钟再试", err)
	case strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "timeout"):
		return apperrors.NewTimeoutError("请求超时，请尝试更简短的灵感", err)
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "api key") || strings.Contains(errStr, "api密钥"):
		return apperrors.NewCredentialError("API密钥无效，请检查设置", err)
	case strings.Contains(errStr, "token") || strings.Contains(errStr, "context length"):
		return apperrors.NewProcessingError("内容过于复杂，请尝试简化灵感", err)
	default:
		return apperrors.NewProcessingError("生成失败，请稍后重试", err)
	}
}

// updateProgress 更新进度（tracker 可能为空，同步模式下没有跟踪器）
func (s *StoryService) updateProgress(tracker *ProgressTracker, progress int, message string) {
	if tracker != nil {
		tracker.UpdateProgress(progress, message)
	}
}
