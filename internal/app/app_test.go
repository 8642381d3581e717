// internal/app/app_test.go
package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rrstoll/langchain-story-generator/internal/config"
	"github.com/rrstoll/langchain-story-generator/internal/di"
	"github.com/rrstoll/langchain-story-generator/internal/services"
)

// 测试前的设置工作
func setupTest(t *testing.T) string {
	// 重置全局应用实例
	instance = nil

	tempDir, err := os.MkdirTemp("", "app_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}

	os.MkdirAll(filepath.Join(tempDir, "data", "stats"), 0755)

	return tempDir
}

// 测试后的清理工作
func cleanupTest(tempDir string) {
	os.RemoveAll(tempDir)
	instance = nil
}

// 测试创建模拟服务器
type mockServer struct {
	ShutdownCalled bool
}

func (m *mockServer) ListenAndServe() error {
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	return nil
}

// TestGetApp 测试获取应用实例
func TestGetApp(t *testing.T) {
	instance = nil

	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp应该返回一个非nil的应用实例")
	}

	// 再次调用，应该返回相同的实例（单例模式）
	app2 := GetApp()
	if app1 != app2 {
		t.Fatal("GetApp应该返回相同的实例")
	}

	if app1.stopChan == nil {
		t.Fatal("应用实例的stopChan应该被初始化")
	}

	instance = nil
}

// TestInitServices 测试服务初始化
func TestInitServices(t *testing.T) {
	tempDir := setupTest(t)
	defer cleanupTest(tempDir)

	// 配置指向临时目录，缺少API密钥时以待机模式初始化
	envs := map[string]string{
		"ALLOW_STANDBY": "true",
		"DATA_DIR":      filepath.Join(tempDir, "data"),
		"STATIC_DIR":    filepath.Join(tempDir, "static"),
		"TEMPLATES_DIR": filepath.Join(tempDir, "templates"),
		"LOG_DIR":       filepath.Join(tempDir, "logs"),
	}
	for key, value := range envs {
		old := os.Getenv(key)
		os.Setenv(key, value)
		defer os.Setenv(key, old)
	}

	if err := config.InitConfig(filepath.Join(tempDir, "data")); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	di.GetContainer().Clear()

	if err := InitServices(); err != nil {
		t.Fatalf("服务初始化失败: %v", err)
	}

	container := di.GetContainer()
	if GetDIContainer() != container {
		t.Error("GetDIContainer应返回全局DI容器")
	}

	// 所有核心服务都应注册到容器
	for _, name := range []string{"llm", "progress", "stats", "config", "story"} {
		if !container.Has(name) {
			t.Errorf("容器中缺少服务: %s", name)
		}
	}

	// 故事服务应能取出并带有依赖
	storyService, ok := container.Get("story").(*services.StoryService)
	if !ok {
		t.Fatal("story服务类型错误")
	}
	if storyService.LLMService == nil || storyService.ProgressService == nil || storyService.StatsService == nil {
		t.Error("故事服务的依赖未正确注入")
	}

	di.GetContainer().Clear()
}

// TestRun 测试应用运行和优雅关闭
func TestRun(t *testing.T) {
	tempDir := setupTest(t)
	defer cleanupTest(tempDir)

	app := GetApp()
	server := &mockServer{}
	app.SetServer(server)

	done := make(chan error, 1)
	go func() {
		done <- Run()
	}()

	// 等待信号注册后发送停止信号
	time.Sleep(100 * time.Millisecond)
	app.stopChan <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run返回错误: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run未在收到信号后退出")
	}

	if !server.ShutdownCalled {
		t.Error("关闭时应调用服务器的Shutdown")
	}
}

// TestIsDebugMode 测试调试模式判断
func TestIsDebugMode(t *testing.T) {
	instance = nil

	// 无实例时默认为false
	if IsDebugMode() {
		t.Error("无应用实例时IsDebugMode应返回false")
	}

	app := GetApp()
	app.SetConfig(&config.AppConfig{DebugMode: true})
	if !IsDebugMode() {
		t.Error("配置开启调试模式后IsDebugMode应返回true")
	}

	app.SetConfig(&config.AppConfig{DebugMode: false})
	if IsDebugMode() {
		t.Error("配置关闭调试模式后IsDebugMode应返回false")
	}

	instance = nil
}
