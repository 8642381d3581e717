// internal/app/app.go
package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rrstoll/langchain-story-generator/internal/config"
	"github.com/rrstoll/langchain-story-generator/internal/di"
	"github.com/rrstoll/langchain-story-generator/internal/services"
	"github.com/rrstoll/langchain-story-generator/internal/utils"
)

// HTTPServer 抽象HTTP服务器，便于测试替换
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用实例，负责服务的初始化和生命周期
type App struct {
	config   *config.AppConfig
	server   HTTPServer
	stopChan chan os.Signal
}

// 全局应用实例
var instance *App

// GetApp 获取应用实例（单例）
func GetApp() *App {
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// InitServices 按依赖顺序初始化所有服务并注册到DI容器
func InitServices() error {
	container := di.GetContainer()

	// 1. LLM服务（其余服务的基础依赖）
	llmService, err := services.NewLLMService()
	if err != nil {
		// 初始化失败时退回待机模式，首次请求会返回明确的凭证提示
		utils.GetLogger().Warnf("LLM服务初始化失败，进入待机模式: %v", err)
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 2. 进度跟踪服务
	progressService := services.NewProgressService()
	container.Register("progress", progressService)

	// 3. 统计服务
	cfg := config.GetCurrentConfig()
	statsDir := "data/stats"
	if cfg != nil {
		statsDir = filepath.Join(cfg.DataDir, "stats")
	}
	statsService := services.NewStatsService(statsDir)
	container.Register("stats", statsService)

	// 4. 配置服务
	configService := services.NewConfigService()
	container.Register("config", configService)

	// 5. 故事生成服务（依赖 llm/progress/stats）
	storyService := services.NewStoryService(llmService, progressService, statsService)
	container.Register("story", storyService)

	return nil
}

// SetServer 设置应用的HTTP服务器
func (a *App) SetServer(server HTTPServer) {
	a.server = server
}

// SetConfig 设置应用配置
func (a *App) SetConfig(cfg *config.AppConfig) {
	a.config = cfg
}

// Run 启动服务器并等待停止信号，收到信号后优雅关闭
func Run() error {
	app := GetApp()

	if app.server == nil {
		port := "8080"
		if app.config != nil && app.config.Port != "" {
			port = app.config.Port
		}
		app.server = &http.Server{Addr: ":" + port}
	}

	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			utils.GetLogger().Fatal("启动服务器失败", map[string]interface{}{"error": err.Error()})
		}
	}()

	signal.Notify(app.stopChan, syscall.SIGINT, syscall.SIGTERM)
	<-app.stopChan

	utils.GetLogger().Info("正在关闭服务器...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		return err
	}

	app.cleanup()

	utils.GetLogger().Info("服务器已关闭", nil)
	return nil
}

// cleanup 释放服务资源
func (a *App) cleanup() {
	// 当前服务都是进程内状态，统计数据在每次写入时已落盘
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// GetDIContainer 返回全局DI容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 报告应用是否处于调试模式
func IsDebugMode() bool {
	if instance == nil || instance.config == nil {
		return false
	}
	return instance.config.DebugMode
}
