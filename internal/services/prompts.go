// internal/services/prompts.go
package services

import (
	"fmt"
	"strings"

	"github.com/rrstoll/langchain-story-generator/internal/models"
)

// 每个段落的固定生成参数
// 提示词刻意精简，把 token 预算留给输出
type SectionParams struct {
	MaxTokens   int
	Temperature float32
}

var sectionParams = map[models.SectionKey]SectionParams{
	models.SectionConcept:    {MaxTokens: 400, Temperature: 0.7},
	models.SectionPlot:       {MaxTokens: 500, Temperature: 0.7},
	models.SectionCharacters: {MaxTokens: 600, Temperature: 0.7},
	models.SectionScene:      {MaxTokens: 800, Temperature: 0.7},
	models.SectionPitch:      {MaxTokens: 400, Temperature: 0.7},
}

// GetSectionParams 返回指定段落的生成参数
func GetSectionParams(key models.SectionKey) SectionParams {
	if params, exists := sectionParams[key]; exists {
		return params
	}
	return SectionParams{MaxTokens: 400, Temperature: 0.7}
}

// charactersExcerptLimit 传给开场场景提示词的角色文本字符数上限
const charactersExcerptLimit = 200

const conceptTemplate = `Idea: %s

Create story concept:
Character: [name, age, key trait]
Setting: [when, where]
Conflict: [main problem]
Genre: [type]

Write complete concept:`

const plotTemplate = `Concept: %s

5-act plot:
Act 1: [setup - 2 sentences]
Act 2: [rising action - 2 sentences]
Act 3: [climax - 2 sentences]
Act 4: [falling action - 2 sentences]
Act 5: [resolution - 2 sentences]

Complete plot:`

const charactersTemplate = `Concept: %s

3 characters:
HERO: [name, age, personality, goal]
VILLAIN: [name, motivation, methods]
ALLY: [name, role, relationship]

Full profiles:`

const sceneTemplate = `Concept: %s
Characters: %s

Opening scene (300 words):
Show hero in action, establish setting, hint at conflict.

Complete scene:`

const pitchTemplate = `Concept: %s

Marketing pitch:
Title: [catchy name]
Hook: [one sentence]
Summary: [3 sentences]
Audience: [who reads this]
Similar to: [comparable works]

Full pitch:`

// BuildConceptPrompt 用用户灵感填充概念模板
func BuildConceptPrompt(idea string) string {
	return fmt.Sprintf(conceptTemplate, idea)
}

// BuildPlotPrompt 基于概念生成情节大纲提示词
func BuildPlotPrompt(concept string) string {
	return fmt.Sprintf(plotTemplate, concept)
}

// BuildCharactersPrompt 基于概念生成角色设定提示词
func BuildCharactersPrompt(concept string) string {
	return fmt.Sprintf(charactersTemplate, concept)
}

// BuildScenePrompt 基于概念和角色设定生成开场场景提示词
// 角色文本截断到固定长度，避免挤占输出的 token 预算
func BuildScenePrompt(concept, characters string) string {
	return fmt.Sprintf(sceneTemplate, concept, truncateForPrompt(characters, charactersExcerptLimit))
}

// BuildPitchPrompt 基于概念生成营销推介提示词
func BuildPitchPrompt(concept string) string {
	return fmt.Sprintf(pitchTemplate, concept)
}

// truncateForPrompt 按字符数截断文本并补省略号
// 在rune边界截断，避免把多字节字符切成非法UTF-8发给接口
func truncateForPrompt(text string, limit int) string {
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
