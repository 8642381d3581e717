// internal/services/stats_service.go
package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rrstoll/langchain-story-generator/internal/utils"
)

// UsageStats 表示API使用统计
type UsageStats struct {
	TotalRequests  int       `json:"total_requests"`  // 累计生成请求数
	TodayRequests  int       `json:"today_requests"`  // 今日生成请求数
	TokensUsed     int       `json:"tokens_used"`     // 累计消耗 token 数
	CharsGenerated int       `json:"chars_generated"` // 累计生成字符数
	FailedSections int       `json:"failed_sections"` // 累计失败段落数
	RejectedInputs int       `json:"rejected_inputs"` // 校验拒绝的输入数
	LastUpdated    time.Time `json:"last_updated"`
}

// StatsService 提供API使用统计功能
type StatsService struct {
	statsFile   string
	mutex       sync.Mutex
	cachedStats *UsageStats
}

// NewStatsService 创建统计服务实例
func NewStatsService(basePath string) *StatsService {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		utils.GetLogger().Warnf("创建统计数据目录失败: %v", err)
	}

	service := &StatsService{
		statsFile: filepath.Join(basePath, "usage_stats.json"),
	}

	service.mutex.Lock()
	service.initStatsLocked()
	service.mutex.Unlock()

	return service
}

// initStatsLocked 初始化统计数据，调用方必须持有锁
func (s *StatsService) initStatsLocked() {
	if data, err := os.ReadFile(s.statsFile); err == nil {
		var loaded UsageStats
		if json.Unmarshal(data, &loaded) == nil {
			// 跨天时重置每日计数
			if loaded.LastUpdated.Format("2006-01-02") != time.Now().Format("2006-01-02") {
				loaded.TodayRequests = 0
			}
			s.cachedStats = &loaded
			return
		}
	}

	s.cachedStats = &UsageStats{LastUpdated: time.Now()}
}

// RecordGeneration 记录一次故事生成
func (s *StatsService) RecordGeneration(tokensUsed, charsGenerated, failedSections int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.rolloverLocked()
	s.cachedStats.TotalRequests++
	s.cachedStats.TodayRequests++
	s.cachedStats.TokensUsed += tokensUsed
	s.cachedStats.CharsGenerated += charsGenerated
	s.cachedStats.FailedSections += failedSections
	s.cachedStats.LastUpdated = time.Now()

	s.saveLocked()
}

// RecordRejectedInput 记录一次被校验拒绝的输入
func (s *StatsService) RecordRejectedInput() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.rolloverLocked()
	s.cachedStats.RejectedInputs++
	s.cachedStats.LastUpdated = time.Now()

	s.saveLocked()
}

// GetStats 返回当前统计数据的副本
func (s *StatsService) GetStats() UsageStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.rolloverLocked()
	return *s.cachedStats
}

// rolloverLocked 跨天时重置每日计数，调用方必须持有锁
func (s *StatsService) rolloverLocked() {
	if s.cachedStats.LastUpdated.Format("2006-01-02") != time.Now().Format("2006-01-02") {
		s.cachedStats.TodayRequests = 0
	}
}

// saveLocked 把统计数据落盘，调用方必须持有锁
func (s *StatsService) saveLocked() {
	data, err := json.MarshalIndent(s.cachedStats, "", "  ")
	if err != nil {
		return
	}

	if err := os.WriteFile(s.statsFile, data, 0644); err != nil {
		utils.GetLogger().Warnf("保存统计数据失败: %v", err)
	}
}
