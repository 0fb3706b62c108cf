package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// ErrNotFound 表示会话没有已保存的最终判定。
var ErrNotFound = errors.New("verdict not found")

// VerdictStore 保存会话的最终活体判定，实现需要并发安全。
type VerdictStore interface {
	// Save 覆盖同一会话已有的值。
	Save(ctx context.Context, sessionID string, v liveness.Verdict) error
	// Load 找不到时返回 ErrNotFound。
	Load(ctx context.Context, sessionID string) (liveness.Verdict, error)
	Close() error
}

type memoryEntry struct {
	verdict   liveness.Verdict
	expiresAt time.Time
}

// MemoryStore keeps verdicts in process; entries expire after ttl.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store. ttl <= 0 keeps entries forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, sessionID string, v liveness.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{verdict: v}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[sessionID] = entry
	s.evictLocked()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) (liveness.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return liveness.Verdict{}, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, sessionID)
		return liveness.Verdict{}, ErrNotFound
	}
	return entry.verdict, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) evictLocked() {
	now := s.now()
	for id, entry := range s.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
}
