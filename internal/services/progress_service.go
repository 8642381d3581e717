// internal/services/progress_service.go
package services

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ProgressUpdate 表示进度更新
type ProgressUpdate struct {
	Progress int    `json:"progress"` // 进度百分比 (0-100)
	Message  string `json:"message"`  // 描述性消息
	Status   string `json:"status"`   // 状态：running, completed, failed
}

// ProgressTracker 跟踪一次故事生成任务的进度
type ProgressTracker struct {
	TaskID      string                       // 任务唯一标识符
	Progress    int                          // 进度百分比 (0-100)
	Message     string                       // 当前状态描述
	Status      string                       // 状态：running, completed, failed
	StartTime   time.Time                    // 开始时间
	UpdateTime  time.Time                    // 最后更新时间
	Subscribers map[chan ProgressUpdate]bool // 订阅进度更新的通道
	mutex       sync.Mutex                   // 保护并发访问
}

// ProgressService 管理所有进度跟踪器
// 跟踪器带过期时间，完成的任务由缓存自动清理
type ProgressService struct {
	trackers *gocache.Cache
}

// NewProgressService 创建进度服务实例
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: gocache.New(30*time.Minute, 10*time.Minute),
	}
}

// CreateTracker 创建新的进度跟踪器
func (s *ProgressService) CreateTracker(taskID string) *ProgressTracker {
	// 如果已存在，返回现有追踪器
	if existing, found := s.trackers.Get(taskID); found {
		return existing.(*ProgressTracker)
	}

	tracker := &ProgressTracker{
		TaskID:      taskID,
		Progress:    0,
		Message:     "任务初始化中...",
		Status:      "running",
		StartTime:   time.Now(),
		UpdateTime:  time.Now(),
		Subscribers: make(map[chan ProgressUpdate]bool),
	}

	s.trackers.Set(taskID, tracker, gocache.DefaultExpiration)
	return tracker
}

// GetTracker 获取进度跟踪器
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	value, found := s.trackers.Get(taskID)
	if !found {
		return nil, false
	}
	return value.(*ProgressTracker), true
}

// ActiveCount 返回当前未过期的任务数
func (s *ProgressService) ActiveCount() int {
	return s.trackers.ItemCount()
}

// UpdateProgress 更新任务进度
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()

	t.notifyLocked()
}

// Complete 标记任务完成
func (t *ProgressTracker) Complete(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.Progress = 100
	if message != "" {
		t.Message = message
	} else {
		t.Message = "任务已完成"
	}
	t.Status = "completed"
	t.UpdateTime = time.Now()

	t.notifyLocked()
}

// Fail 标记任务失败
func (t *ProgressTracker) Fail(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if message != "" {
		t.Message = message
	} else {
		t.Message = "任务失败"
	}
	t.Status = "failed"
	t.UpdateTime = time.Now()

	t.notifyLocked()
}

// Subscribe 订阅进度更新，返回接收通道
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	ch := make(chan ProgressUpdate, 16)
	t.Subscribers[ch] = true

	// 立即推送当前状态，让新订阅者不必等下一次更新
	ch <- ProgressUpdate{
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
	}

	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (t *ProgressTracker) Unsubscribe(ch chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, exists := t.Subscribers[ch]; exists {
		delete(t.Subscribers, ch)
		close(ch)
	}
}

// Snapshot 返回当前进度快照
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return ProgressUpdate{
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
	}
}

// notifyLocked 通知所有订阅者，调用方必须持有锁
func (t *ProgressTracker) notifyLocked() {
	update := ProgressUpdate{
		Progress: t.Progress,
		Message:  t.Message,
		Status:   t.Status,
	}

	for subscriber := range t.Subscribers {
		// 非阻塞发送，如果通道已满则跳过
		select {
		case subscriber <- update:
		default:
		}
	}
}
