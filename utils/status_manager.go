package utils

import "sync"

// Session states. The debugger moves Uninitialized -> Initializing ->
// Running <-> Stopped -> Terminating -> Terminated; Terminated is terminal.
const (
	// Uninitialized 调试初始化状态
	Uninitialized = "uninitialized"
	// Initializing connect/launch in progress, entry stop not yet surfaced
	Initializing = "initializing"
	// Running 用户程序运行中
	Running = "running"
	// Stopped 用户程序暂停
	Stopped = "stopped"
	// Terminating shutdown requested, teardown in progress
	Terminating = "terminating"
	// Terminated 调试结束状态
	Terminated = "terminated"
)

// StatusManager 记录调试器的状态的
type StatusManager struct {
	lock   sync.RWMutex
	status string
}

func NewStatusManager() *StatusManager {
	return &StatusManager{
		status: Uninitialized,
	}
}

func (s *StatusManager) Set(status string) {
	defer s.lock.Unlock()
	s.lock.Lock()
	s.status = status
}

func (s *StatusManager) Get() string {
	defer s.lock.RUnlock()
	s.lock.RLock()
	return s.status
}

func (s *StatusManager) Is(statusList ...string) bool {
	defer s.lock.RUnlock()
	s.lock.RLock()
	for _, status := range statusList {
		if s.status == status {
			return true
		}
	}
	return false
}
