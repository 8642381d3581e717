// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rrstoll/langchain-story-generator/internal/utils"
)

// encPrefix 标记config.json中加密存储的密钥字段
const encPrefix = "enc:"

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// ErrMissingAPIKey 启动时未提供API密钥
var ErrMissingAPIKey = fmt.Errorf("未设置 OPENAI_API_KEY 环境变量（设置 ALLOW_STANDBY=true 可跳过此检查，在设置页面中再配置密钥）")

// AppConfig 包含应用程序的所有配置
type AppConfig struct {
	// 基础配置
	Port         string `json:"port"`
	OpenAIAPIKey string `json:"openai_api_key,omitempty"`
	DataDir      string `json:"data_dir"`
	StaticDir    string `json:"static_dir"`
	TemplatesDir string `json:"templates_dir"`
	LogDir       string `json:"log_dir"`
	DebugMode    bool   `json:"debug_mode"`

	// LLM相关配置
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`
}

// Config 存储从环境变量读取的基础配置
type Config struct {
	Port         string
	OpenAIAPIKey string
	LLMProvider  string
	DefaultModel string
	DataDir      string
	StaticDir    string
	TemplatesDir string
	LogDir       string
	DebugMode    bool
	AllowStandby bool
}

// Load 从环境变量加载配置
// API密钥是唯一的必需项：缺失时返回 ErrMissingAPIKey，
// 除非 ALLOW_STANDBY=true（此时服务以待机模式启动，首次生成请求会返回凭证错误）
func Load() (*Config, error) {
	// 尝试加载.env文件（可选）
	godotenv.Load()

	config := &Config{
		Port:         getEnv("PORT", "8080"),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		LLMProvider:  getEnv("LLM_PROVIDER", "openai"),
		DefaultModel: getEnv("LLM_MODEL", "gpt-3.5-turbo-instruct"),
		DataDir:      getEnvPath("DATA_DIR", "data"),
		StaticDir:    getEnvPath("STATIC_DIR", "web/static"),
		TemplatesDir: getEnvPath("TEMPLATES_DIR", "web/templates"),
		LogDir:       getEnvPath("LOG_DIR", "logs"),
		DebugMode:    getEnvBool("DEBUG_MODE", true),
		AllowStandby: getEnvBool("ALLOW_STANDBY", false),
	}

	if config.OpenAIAPIKey == "" && !config.AllowStandby {
		return nil, ErrMissingAPIKey
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取环境变量表示的路径，如果不存在则返回默认值
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	// 确保目录存在
	if _, err := os.Stat(path); os.IsNotExist(err) {
		err = os.MkdirAll(path, 0755)
		if err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = &AppConfig{
		Port:         baseConfig.Port,
		OpenAIAPIKey: baseConfig.OpenAIAPIKey,
		DataDir:      baseConfig.DataDir,
		StaticDir:    baseConfig.StaticDir,
		TemplatesDir: baseConfig.TemplatesDir,
		LogDir:       baseConfig.LogDir,
		DebugMode:    baseConfig.DebugMode,
		LLMProvider:  baseConfig.LLMProvider,
		LLMConfig: map[string]string{
			"api_key":       baseConfig.OpenAIAPIKey,
			"default_model": baseConfig.DefaultModel,
		},
	}

	// 尝试从文件加载已保存的配置（设置页面保存的提供商选择）
	if _, err := os.Stat(configFile); !os.IsNotExist(err) {
		data, err := os.ReadFile(configFile)
		if err == nil {
			var savedConfig AppConfig
			if json.Unmarshal(data, &savedConfig) == nil {
				// 解开加密存储的密钥字段
				savedConfig.OpenAIAPIKey = unsealValue(savedConfig.OpenAIAPIKey)
				if savedConfig.LLMConfig != nil {
					savedConfig.LLMConfig["api_key"] = unsealValue(savedConfig.LLMConfig["api_key"])
				}

				// 合并配置：保留文件中的LLM设置，基础配置以环境变量为准
				savedConfig.Port = baseConfig.Port
				savedConfig.DataDir = baseConfig.DataDir
				savedConfig.StaticDir = baseConfig.StaticDir
				savedConfig.TemplatesDir = baseConfig.TemplatesDir
				savedConfig.LogDir = baseConfig.LogDir
				savedConfig.DebugMode = baseConfig.DebugMode

				// 如果文件中没有API密钥，使用环境变量的密钥
				if savedConfig.LLMConfig != nil && savedConfig.LLMConfig["api_key"] == "" {
					savedConfig.LLMConfig["api_key"] = baseConfig.OpenAIAPIKey
				}

				currentConfig = &savedConfig
			}
		}
	}

	return saveConfigLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return nil
	}

	configCopy := *currentConfig
	return &configCopy
}

// UpdateLLMConfig 更新LLM提供商配置
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = config

	return saveConfigLocked()
}

// SaveConfig 保存当前配置到文件
func SaveConfig() error {
	configMutex.Lock()
	defer configMutex.Unlock()

	return saveConfigLocked()
}

func saveConfigLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	dir := filepath.Dir(configFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}
	}

	// 设置了CONFIG_SECRET时密钥字段加密落盘
	persisted := *currentConfig
	persisted.OpenAIAPIKey = sealValue(persisted.OpenAIAPIKey)
	if persisted.LLMConfig != nil {
		llmConfig := make(map[string]string, len(persisted.LLMConfig))
		for key, value := range persisted.LLMConfig {
			llmConfig[key] = value
		}
		llmConfig["api_key"] = sealValue(llmConfig["api_key"])
		persisted.LLMConfig = llmConfig
	}

	data, err := json.MarshalIndent(&persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}

// sealValue 用CONFIG_SECRET加密敏感值，未设置密钥时原样存储
func sealValue(value string) string {
	secret := os.Getenv("CONFIG_SECRET")
	if secret == "" || value == "" {
		return value
	}

	sealed, err := utils.Encrypt(value, secret)
	if err != nil {
		return value
	}
	return encPrefix + sealed
}

// unsealValue 解开sealValue加密的值，解密失败时视为未配置
func unsealValue(value string) string {
	if !strings.HasPrefix(value, encPrefix) {
		return value
	}

	secret := os.Getenv("CONFIG_SECRET")
	if secret == "" {
		return ""
	}

	plain, err := utils.Decrypt(strings.TrimPrefix(value, encPrefix), secret)
	if err != nil {
		return ""
	}
	return plain
}
