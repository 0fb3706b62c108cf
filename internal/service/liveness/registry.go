package liveness

import (
	"context"
	"sync"
)

type registryEntry struct {
	session *Session
	cancel  context.CancelFunc
}

// Registry 记录活跃会话，仅用于查询与关闭，不参与帧处理。
type Registry struct {
	sessions map[string]registryEntry
	mu       sync.RWMutex
}

// NewRegistry 创建会话注册表
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]registryEntry),
	}
}

// Add 注册会话；cancel 用于在服务关闭时结束会话循环
func (r *Registry) Add(s *Session, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// 同 ID 的旧会话先关闭
	if old, exists := r.sessions[s.ID()]; exists && old.session != s {
		closeEntry(old)
	}

	r.sessions[s.ID()] = registryEntry{session: s, cancel: cancel}
}

// Get 获取会话
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.sessions[id]
	return entry.session, exists
}

// Remove 移除并关闭会话
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.sessions[id]; exists {
		closeEntry(entry)
		delete(r.sessions, id)
	}
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll 关闭所有会话
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, entry := range r.sessions {
		closeEntry(entry)
		delete(r.sessions, id)
	}
}

func closeEntry(entry registryEntry) {
	if entry.cancel != nil {
		entry.cancel()
	}
	entry.session.Close()
}
