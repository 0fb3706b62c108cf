package liveness

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/liveness/backend/internal/analysis/gesture"
	"github.com/zhouzirui/liveness/backend/internal/config"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

func newTestSession(p Provider, clock *fakeClock, seq ...liveness.Gesture) *Session {
	return NewSession("sess-1", p, NewFrameBuffer(64), EngineOptions{
		Sequence:  seq,
		Threshold: 0.5,
		Deadline:  clock.Now().Add(30 * time.Second),
		Catalog:   gesture.NewCatalog("en"),
		Now:       clock.Now,
	})
}

func TestSessionEmitsInFrameOrder(t *testing.T) {
	clock := newFakeClock()
	p := newScripted(liveness.Judgment{Matched: false, Confidence: 0.2, Detail: "eyes open"}, matched(0.9), matched(0.95))
	s := newTestSession(p, clock, liveness.GestureBlink, liveness.GestureNod)

	chunk := append(append(jpegFrame(1), jpegFrame(2)...), jpegFrame(3)...)
	out := s.Push(context.Background(), chunk)

	require.Len(t, out, 3)
	require.Equal(t, "eyes open", out[0].Reason)
	require.False(t, out[0].IsLive)
	require.True(t, out[1].IsLive)
	require.False(t, out[1].Final)
	require.True(t, out[2].Final)
	require.Equal(t, 0.95, out[2].Confidence)
	for _, v := range out {
		require.Equal(t, "sess-1", v.SessionID)
	}
	require.Equal(t, out[2], s.Snapshot())
}

func TestSessionSkipsMalformedChunk(t *testing.T) {
	clock := newFakeClock()
	p := newScripted(matched(0.9))
	s := newTestSession(p, clock, liveness.GestureBlink)

	out := s.Push(context.Background(), nil)
	require.Len(t, out, 1)
	require.False(t, out[0].IsLive)
	require.False(t, out[0].Final)
	require.Zero(t, out[0].Confidence)
	require.Equal(t, "empty chunk received", out[0].Reason)
	require.Zero(t, p.callCount())

	out = s.Push(context.Background(), []byte("frame"))
	require.Len(t, out, 1)
	require.True(t, out[0].Final)
	require.Equal(t, liveness.StateCompleted, s.State())

	require.Empty(t, s.Push(context.Background(), nil), "terminal session must stay silent")
}

func TestSessionExpireAndClose(t *testing.T) {
	clock := newFakeClock()
	p := newScripted(matched(0.9))
	s := newTestSession(p, clock, liveness.GestureBlink)

	initial := s.Snapshot()
	require.Equal(t, liveness.StateAwaitingFirstFrame, initial.State)
	require.Equal(t, liveness.GestureBlink, initial.Gesture)

	clock.Advance(31 * time.Second)
	v, ok := s.Expire()
	require.True(t, ok)
	require.Equal(t, "timeout", v.Reason)
	require.Equal(t, liveness.StateTimedOut, s.Snapshot().State)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, p.closed)
}

func TestSessionIntro(t *testing.T) {
	clock := newFakeClock()
	s := newTestSession(newScripted(), clock, liveness.GestureTurnLeft, liveness.GestureSmile)

	intro := s.Intro()
	require.Equal(t, IntroType, intro.Type)
	require.Equal(t, "sess-1", intro.SessionID)
	require.False(t, intro.IsLive)
	require.Zero(t, intro.Confidence)
	require.False(t, intro.Final)
	require.Equal(t, "awaiting first frame", intro.Reason)
	require.Equal(t, liveness.StateAwaitingFirstFrame, intro.State)
	require.Equal(t, liveness.GestureTurnLeft, intro.Gesture)
	require.Equal(t, []liveness.Gesture{liveness.GestureTurnLeft, liveness.GestureSmile}, intro.Gestures)
	require.Equal(t, []string{"Turn your head to the left", "Smile"}, intro.Instructions)
	require.Equal(t, clock.Now().Add(30*time.Second).Format(time.RFC3339Nano), intro.Deadline)

	// intro 字段不会进入后续判定
	require.Empty(t, s.Snapshot().Type)
	require.Empty(t, s.Snapshot().Gestures)
}

func TestSessionIntroIsVerdictShaped(t *testing.T) {
	s := newTestSession(newScripted(), newFakeClock(), liveness.GestureBlink)

	data, err := json.Marshal(s.Intro())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Equal(t, false, fields["is_live"])
	require.Equal(t, float64(0), fields["confidence"])
	require.Equal(t, "session", fields["type"])
	require.Equal(t, []any{"blink"}, fields["gestures"])
}

func TestSelectionBuildsSessions(t *testing.T) {
	sel, err := NewSelection(config.LivenessConfig{
		Provider:        config.ProviderHeuristic,
		Language:        "pt-BR",
		NumGestures:     2,
		Gestures:        []liveness.Gesture{liveness.GestureBlink, liveness.GestureNod, liveness.GestureSmile},
		AcceptThreshold: 0.5,
		SessionDeadline: time.Minute,
		MaxFrameBytes:   1024,
	})
	require.NoError(t, err)
	require.IsType(t, &HeuristicProvider{}, sel.NewProvider())

	a := sel.NewSession(time.Now())
	b := sel.NewSession(time.Now())
	require.NotEqual(t, a.ID(), b.ID())
	require.Len(t, a.Intro().Gestures, 2)
	require.Equal(t, "pt", sel.Catalog().Language())
}

func TestSelectionRejectsUnknownProvider(t *testing.T) {
	_, err := NewSelection(config.LivenessConfig{Provider: "magic"})
	require.ErrorContains(t, err, "unknown liveness provider")

	sel, err := NewSelection(config.LivenessConfig{Provider: config.ProviderSocket, SocketPath: "/tmp/x.sock"})
	require.NoError(t, err)
	require.IsType(t, &SocketProvider{}, sel.NewProvider())
}
