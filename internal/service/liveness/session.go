package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/logger"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// IntroType marks the first message of a session.
const IntroType = "session"

// Session 绑定一条流式连接：帧缓冲、provider 与挑战引擎。
// Push/Expire/State 只能由连接自身的循环调用；Snapshot 与 Close 可并发调用。
type Session struct {
	id       string
	buffer   *FrameBuffer
	provider Provider
	engine   *Engine
	log      *zap.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	initial   liveness.Verdict
	last      liveness.Verdict
}

// NewSession starts a session with a fresh id and a provider from the selection.
func (s *Selection) NewSession(now time.Time) *Session {
	return NewSession(uuid.NewString(), s.NewProvider(), NewFrameBuffer(s.maxFrameBytes), s.EngineOptions(now, nil))
}

// NewSession binds the given parts; the session owns provider from here on.
func NewSession(id string, provider Provider, buffer *FrameBuffer, opts EngineOptions) *Session {
	engine := NewEngine(provider, opts)
	initial := engine.verdict(false, 0, "awaiting first frame", engine.now())
	initial.SessionID = id
	return &Session{
		id:       id,
		buffer:   buffer,
		provider: provider,
		engine:   engine,
		log:      logger.Named("liveness").With(zap.String("session_id", id)),
		initial:  initial,
		last:     initial,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the engine state.
func (s *Session) State() liveness.State { return s.engine.State() }

// Deadline returns the absolute session deadline.
func (s *Session) Deadline() time.Time { return s.engine.Deadline() }

// Intro 返回会话的第一条消息：初始判定（is_live=false，confidence=0）附带手势序列、提示语与截止时间。
func (s *Session) Intro() liveness.Verdict {
	intro := s.initial
	intro.Type = IntroType
	intro.Gestures = s.engine.Sequence()
	if s.engine.catalog != nil {
		intro.Instructions = s.engine.catalog.Instructions(intro.Gestures)
	}
	intro.Deadline = s.engine.Deadline().UTC().Format(time.RFC3339Nano)
	return intro
}

// Push feeds one inbound chunk and returns the verdicts to emit, in frame order.
func (s *Session) Push(ctx context.Context, chunk []byte) []liveness.Verdict {
	frames, bufErr := s.buffer.Push(chunk)

	var out []liveness.Verdict
	for _, frame := range frames {
		v, ok := s.engine.HandleFrame(ctx, frame)
		if !ok {
			continue
		}
		out = append(out, s.record(v))
	}

	if bufErr != nil {
		s.log.Debug("chunk skipped", zap.Error(bufErr))
		if v, ok := s.engine.Progress(bufErr.Error()); ok {
			out = append(out, s.record(v))
		}
	}
	return out
}

// Expire emits the timeout verdict once the deadline has passed.
func (s *Session) Expire() (liveness.Verdict, bool) {
	v, ok := s.engine.Expire()
	if !ok {
		return liveness.Verdict{}, false
	}
	return s.record(v), true
}

// Snapshot returns the latest emitted verdict, or the initial status before any frame.
func (s *Session) Snapshot() liveness.Verdict {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Close releases the provider. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.provider.Close()
	})
	return err
}

func (s *Session) record(v liveness.Verdict) liveness.Verdict {
	v.SessionID = s.id
	s.mu.Lock()
	s.last = v
	s.mu.Unlock()

	if v.Final {
		s.log.Info("session finished",
			zap.String("state", string(v.State)),
			zap.Bool("is_live", v.IsLive),
			zap.Float64("confidence", v.Confidence),
			zap.String("reason", v.Reason))
	}
	return v
}
