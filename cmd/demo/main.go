// cmd/demo/main.go
// 命令行演示：不启动服务器，直接把一个灵感生成为完整的故事包
//
// 用法:
//
//	go run ./cmd/demo -idea "A detective who can see object histories"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/rrstoll/langchain-story-generator/internal/config"
	"github.com/rrstoll/langchain-story-generator/internal/services"

	// 注册LLM提供者
	_ "github.com/rrstoll/langchain-story-generator/internal/llm/providers/anthropic"
	_ "github.com/rrstoll/langchain-story-generator/internal/llm/providers/openai"
	_ "github.com/rrstoll/langchain-story-generator/internal/llm/providers/openrouter"
)

func main() {
	idea := flag.String("idea", "", "故事灵感 (5-500字符)")
	timeout := flag.Duration("timeout", 5*time.Minute, "整体生成超时")
	flag.Parse()

	if *idea == "" {
		fmt.Fprintln(os.Stderr, "用法: demo -idea \"你的故事灵感\"")
		os.Exit(2)
	}

	log.Println("🚀 AI Story Generator 命令行演示")

	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("❌ 加载配置失败: %v", err)
	}

	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("❌ 初始化配置系统失败: %v", err)
	}

	llmService, err := services.NewLLMService()
	if err != nil {
		log.Fatalf("❌ 初始化LLM服务失败: %v", err)
	}
	if ready, state := llmService.GetProviderStatus(); !ready {
		log.Fatalf("❌ LLM服务未就绪: %s", state)
	}

	storyService := services.NewStoryService(llmService, services.NewProgressService(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	pkg, err := storyService.GenerateStoryPackage(ctx, "demo", *idea)
	if err != nil {
		log.Fatalf("❌ 生成失败: %v", err)
	}

	for _, section := range pkg.Sections {
		fmt.Println()
		fmt.Println("==========", section.Title, "==========")
		if section.OK() {
			fmt.Println(section.Content)
		} else {
			fmt.Println("❌", section.Error)
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("=", 40))
	log.Printf("✅ 完成: %d 字符, %d tokens, 耗时 %s, 失败段落 %d",
		pkg.TotalChars, pkg.TokensUsed, time.Since(start).Round(time.Second), len(pkg.FailedSections()))
}
