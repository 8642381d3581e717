// internal/services/config_service.go
package services

import (
	"errors"
	"sync"
	"time"

	"github.com/rrstoll/langchain-story-generator/internal/config"
	"github.com/rrstoll/langchain-story-generator/internal/utils"
)

// ConfigService 提供设置页面的配置读写
type ConfigService struct {
	// 缓存最近获取的配置，减少反复访问底层存储
	cachedConfig *config.AppConfig

	// 配置更新时间
	lastUpdated time.Time

	// 互斥锁保护内部状态
	mu sync.RWMutex
}

// NewConfigService 创建配置服务实例
func NewConfigService() *ConfigService {
	return &ConfigService{
		cachedConfig: config.GetCurrentConfig(),
		lastUpdated:  time.Now(),
	}
}

// GetCurrentConfig 获取当前配置
func (s *ConfigService) GetCurrentConfig() *config.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cachedConfig == nil {
		s.cachedConfig = config.GetCurrentConfig()
	}

	return s.cachedConfig
}

// UpdateLLMConfig 更新LLM提供商和配置
func (s *ConfigService) UpdateLLMConfig(provider string, configMap map[string]string) error {
	if provider == "" {
		return errors.New("提供商名称不能为空")
	}
	if configMap == nil || configMap["api_key"] == "" {
		return errors.New("API密钥不能为空")
	}

	if err := config.UpdateLLMConfig(provider, configMap); err != nil {
		return err
	}

	s.mu.Lock()
	s.cachedConfig = config.GetCurrentConfig()
	s.lastUpdated = time.Now()
	s.mu.Unlock()

	utils.GetLogger().Info("LLM配置已更新", map[string]interface{}{"provider": provider})
	return nil
}

// LastUpdated 返回最近一次配置更新时间
func (s *ConfigService) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastUpdated
}
