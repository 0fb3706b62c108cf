package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

type scriptedStep struct {
	judgment liveness.Judgment
	err      error
}

// scriptedProvider replays steps in order and repeats the last one.
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []scriptedStep
	calls    int
	gestures []liveness.Gesture
	closed   int
}

func newScripted(judgments ...liveness.Judgment) *scriptedProvider {
	p := &scriptedProvider{}
	for _, j := range judgments {
		p.steps = append(p.steps, scriptedStep{judgment: j})
	}
	return p
}

func (p *scriptedProvider) Evaluate(_ context.Context, _ []byte, g liveness.Gesture) (liveness.Judgment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	}
	p.calls++
	p.gestures = append(p.gestures, g)
	if idx < 0 {
		return liveness.Judgment{}, nil
	}
	return p.steps[idx].judgment, p.steps[idx].err
}

func (p *scriptedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) NewProvider() Provider {
	return p
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func matched(confidence float64) liveness.Judgment {
	return liveness.Judgment{Matched: true, Confidence: confidence, Detail: "gesture observed"}
}

func jpegFrame(body ...byte) []byte {
	frame := []byte{0xFF, 0xD8}
	frame = append(frame, body...)
	return append(frame, 0xFF, 0xD9)
}
