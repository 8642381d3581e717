// cmd/server/main.go
package main

import (
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rrstoll/langchain-story-generator/internal/api"
	"github.com/rrstoll/langchain-story-generator/internal/app"
	"github.com/rrstoll/langchain-story-generator/internal/config"
	"github.com/rrstoll/langchain-story-generator/internal/utils"

	// 注册LLM提供者
	_ "github.com/rrstoll/langchain-story-generator/internal/llm/providers/anthropic"
	_ "github.com/rrstoll/langchain-story-generator/internal/llm/providers/openai"
	_ "github.com/rrstoll/langchain-story-generator/internal/llm/providers/openrouter"
)

func main() {
	log.Println("🚀 启动 AI Story Generator 服务器...")

	// 1. 首先加载基础配置（API密钥缺失时在这里直接失败）
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 创建必要的目录
	createDirectories(baseConfig)
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化日志
	if err := utils.InitLogger(filepath.Join(baseConfig.LogDir, "server.log")); err != nil {
		log.Printf("⚠️ 初始化日志文件失败: %v", err)
	}

	// 4. 初始化配置系统
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("❌ 初始化配置系统失败: %v", err)
	}
	log.Println("✅ 配置系统初始化完成")

	// 5. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("❌ 初始化服务失败: %v", err)
	}
	container := app.GetDIContainer()
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(container.GetNames()))

	// 6. 设置路由（只获取服务，不创建）
	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}
	log.Println("✅ 路由设置完成")

	// 7. 启动服务器
	log.Printf("🌐 服务器启动在端口 %s", baseConfig.Port)
	log.Printf("🔗 访问地址: http://localhost:%s", baseConfig.Port)

	application := app.GetApp()
	application.SetConfig(config.GetCurrentConfig())
	application.SetServer(&http.Server{
		Addr:    ":" + baseConfig.Port,
		Handler: router,
	})

	if err := app.Run(); err != nil {
		log.Fatalf("❌ 服务器异常退出: %v", err)
	}
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "stats"),
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}
