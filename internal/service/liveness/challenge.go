package liveness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/zhouzirui/liveness/backend/internal/analysis/gesture"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

const (
	reasonTimeout   = "timeout"
	reasonCompleted = "all gestures completed"
	reasonNoGesture = "no gestures required"
	reasonSpoof     = "spoof detected"
)

// EngineOptions 固定一次挑战的参数。
type EngineOptions struct {
	Sequence  []liveness.Gesture
	Threshold float64
	Deadline  time.Time
	Catalog   *gesture.Catalog
	// Now 默认 time.Now，测试中注入。
	Now func() time.Time
}

// Engine 驱动动作挑战的状态机，只由所属会话的单个 goroutine 调用。
type Engine struct {
	sequence  []liveness.Gesture
	index     int
	state     liveness.State
	threshold float64
	deadline  time.Time
	catalog   *gesture.Catalog
	provider  Provider
	now       func() time.Time
}

// NewEngine creates an engine in the AwaitingFirstFrame state.
func NewEngine(provider Provider, opts EngineOptions) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return &Engine{
		sequence:  slices.Clone(opts.Sequence),
		state:     liveness.StateAwaitingFirstFrame,
		threshold: threshold,
		deadline:  opts.Deadline,
		catalog:   opts.Catalog,
		provider:  provider,
		now:       now,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() liveness.State { return e.state }

// Sequence returns a copy of the gesture sequence.
func (e *Engine) Sequence() []liveness.Gesture { return slices.Clone(e.sequence) }

// Deadline returns the absolute session deadline.
func (e *Engine) Deadline() time.Time { return e.deadline }

// Completed returns how many gestures were accepted so far.
func (e *Engine) Completed() int { return e.index }

// HandleFrame evaluates one decoded frame. The bool result is false when
// nothing should be emitted: the session is terminal, or ctx was cancelled
// while the provider was working.
func (e *Engine) HandleFrame(ctx context.Context, frame []byte) (liveness.Verdict, bool) {
	if e.state.Terminal() {
		return liveness.Verdict{}, false
	}

	now := e.now()
	if !e.deadline.IsZero() && now.After(e.deadline) {
		return e.finish(liveness.StateTimedOut, false, 0, reasonTimeout, now), true
	}

	if e.state == liveness.StateAwaitingFirstFrame {
		e.state = liveness.StateChallengeInProgress
	}

	if len(e.sequence) == 0 {
		return e.finish(liveness.StateCompleted, true, 1, reasonNoGesture, now), true
	}

	active := e.sequence[e.index]
	j, err := e.provider.Evaluate(ctx, frame, active)
	if ctx.Err() != nil {
		return liveness.Verdict{}, false
	}
	now = e.now()
	if err != nil {
		reason := fmt.Sprintf("provider error: %v", err)
		if errors.Is(err, ErrTransport) {
			// ErrTransport 的文本已经带有 "provider transport error" 前缀
			reason = err.Error()
		}
		return e.finish(liveness.StateFailed, false, 0, reason, now), true
	}

	confidence := liveness.Clamp(j.Confidence)

	if j.Spoof {
		reason := j.Detail
		if reason == "" {
			reason = reasonSpoof
		}
		return e.finish(liveness.StateFailed, false, confidence, reason, now), true
	}

	accepted := j.Matched && confidence >= e.threshold
	if accepted {
		e.index++
		if e.index == len(e.sequence) {
			return e.finish(liveness.StateCompleted, true, confidence, reasonCompleted, now), true
		}
	}

	reason := j.Detail
	if reason == "" {
		reason = fmt.Sprintf("gesture %s not detected", active)
		if accepted {
			reason = fmt.Sprintf("gesture %s accepted", active)
		}
	}

	v := e.verdict(accepted, confidence, reason, now)
	return v, true
}

// Expire moves a live session to TimedOut once the deadline has passed.
func (e *Engine) Expire() (liveness.Verdict, bool) {
	if e.state.Terminal() {
		return liveness.Verdict{}, false
	}
	now := e.now()
	if e.deadline.IsZero() || now.Before(e.deadline) {
		return liveness.Verdict{}, false
	}
	return e.finish(liveness.StateTimedOut, false, 0, reasonTimeout, now), true
}

// Fail terminates the session with the given reason.
func (e *Engine) Fail(reason string) (liveness.Verdict, bool) {
	if e.state.Terminal() {
		return liveness.Verdict{}, false
	}
	return e.finish(liveness.StateFailed, false, 0, reason, e.now()), true
}

// Progress reports a non-final status, used for skipped chunks.
func (e *Engine) Progress(reason string) (liveness.Verdict, bool) {
	if e.state.Terminal() {
		return liveness.Verdict{}, false
	}
	return e.verdict(false, 0, reason, e.now()), true
}

func (e *Engine) finish(state liveness.State, isLive bool, confidence float64, reason string, at time.Time) liveness.Verdict {
	e.state = state
	v := e.verdict(isLive, confidence, reason, at)
	v.Final = true
	return v
}

func (e *Engine) verdict(isLive bool, confidence float64, reason string, at time.Time) liveness.Verdict {
	v := liveness.NewVerdict(isLive, confidence, reason, at)
	v.State = e.state
	v.Progress = &liveness.Progress{Completed: e.index, Total: len(e.sequence)}
	if !e.state.Terminal() && e.index < len(e.sequence) {
		v.Gesture = e.sequence[e.index]
		if e.catalog != nil {
			v.Instruction = e.catalog.Instruction(v.Gesture)
		}
	}
	return v
}
