// internal/models/story.go
package models

import (
	"sync"
	"time"
)

// SectionKey 标识故事包中的固定段落
type SectionKey string

const (
	SectionConcept    SectionKey = "concept"    // 故事概念
	SectionPlot       SectionKey = "plot"       // 情节大纲
	SectionCharacters SectionKey = "characters" // 角色设定
	SectionScene      SectionKey = "scene"      // 开场场景
	SectionPitch      SectionKey = "pitch"      // 营销推介
)

// SectionOrder 定义段落的生成和展示顺序
var SectionOrder = []SectionKey{
	SectionConcept,
	SectionPlot,
	SectionCharacters,
	SectionScene,
	SectionPitch,
}

// SectionTitles 段落的展示标题
var SectionTitles = map[SectionKey]string{
	SectionConcept:    "Story Concept",
	SectionPlot:       "Plot Outline",
	SectionCharacters: "Characters",
	SectionScene:      "Opening Scene",
	SectionPitch:      "Marketing Pitch",
}

// StoryRequest 一次生成请求的输入
type StoryRequest struct {
	Idea  string `json:"idea"`            // 用户的故事灵感
	Async bool   `json:"async,omitempty"` // 异步模式：立即返回任务ID，通过进度接口跟踪
}

// StorySection 故事包中的单个段落
// Content 与 Error 互斥：生成失败时 Content 为空，Error 携带面向用户的错误说明
type StorySection struct {
	Key        SectionKey    `json:"key"`
	Title      string        `json:"title"`
	Content    string        `json:"content,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
	TokensUsed int           `json:"tokens_used,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ms,omitempty"`
}

// OK 报告段落是否生成成功
func (s *StorySection) OK() bool {
	return s.Error == ""
}

// StoryPackage 一次提交生成的完整段落集合，仅存在于单次请求范围内
// 段落可能被并发写入，统计字段由内部锁保护
type StoryPackage struct {
	mu sync.Mutex

	ID         string         `json:"id"`
	Idea       string         `json:"idea"`
	Sections   []StorySection `json:"sections"`
	CreatedAt  time.Time      `json:"created_at"`
	TotalChars int            `json:"total_chars"`
	TokensUsed int            `json:"tokens_used"`
}

// NewStoryPackage 创建一个带固定段落顺序的空故事包
func NewStoryPackage(id, idea string) *StoryPackage {
	pkg := &StoryPackage{
		ID:        id,
		Idea:      idea,
		Sections:  make([]StorySection, 0, len(SectionOrder)),
		CreatedAt: time.Now(),
	}

	for _, key := range SectionOrder {
		pkg.Sections = append(pkg.Sections, StorySection{
			Key:   key,
			Title: SectionTitles[key],
		})
	}

	return pkg
}

// Section 按键查找段落
func (p *StoryPackage) Section(key SectionKey) *StorySection {
	for i := range p.Sections {
		if p.Sections[i].Key == key {
			return &p.Sections[i]
		}
	}
	return nil
}

// SetContent 写入段落内容并累计统计
func (p *StoryPackage) SetContent(key SectionKey, content string, tokensUsed int, elapsed time.Duration) {
	section := p.Section(key)
	if section == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	section.Content = content
	section.TokensUsed = tokensUsed
	section.Elapsed = elapsed
	p.TotalChars += len(content)
	p.TokensUsed += tokensUsed
}

// SetError 标记段落生成失败
func (p *StoryPackage) SetError(key SectionKey, message, code string) {
	section := p.Section(key)
	if section == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	section.Error = message
	section.ErrorCode = code
}

// FailedSections 返回生成失败的段落键
func (p *StoryPackage) FailedSections() []SectionKey {
	failed := make([]SectionKey, 0)
	for i := range p.Sections {
		if !p.Sections[i].OK() {
			failed = append(failed, p.Sections[i].Key)
		}
	}
	return failed
}
