package liveness

import (
	"context"
	"crypto/sha256"
	"math"
	"testing"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

func TestHeuristicIsDeterministic(t *testing.T) {
	p := NewHeuristicProvider()
	frame := []byte("same frame bytes")

	first, err := p.Evaluate(context.Background(), frame, liveness.GestureBlink)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := p.Evaluate(context.Background(), frame, liveness.GestureBlink)
	if first != second {
		t.Fatalf("expected identical judgments, got %+v and %+v", first, second)
	}
}

func TestHeuristicConfidenceFromDigest(t *testing.T) {
	p := NewHeuristicProvider()
	frame := []byte{0x10, 0x20, 0x30}

	j, err := p.Evaluate(context.Background(), frame, liveness.GestureNone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	digest := sha256.Sum256(frame)
	want := math.Round(float64(digest[0])/255*1000) / 1000
	if j.Confidence != want {
		t.Fatalf("expected confidence %v, got %v", want, j.Confidence)
	}
	if j.Matched != (want >= 0.5) {
		t.Fatalf("matched=%v inconsistent with confidence %v", j.Matched, want)
	}
	if j.Spoof {
		t.Fatal("heuristic must never report spoof")
	}
}

func TestHeuristicEmptyFrame(t *testing.T) {
	j, err := NewHeuristicProvider().Evaluate(context.Background(), nil, liveness.GestureNod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Matched || j.Confidence != 0 || j.Detail != "empty frame received" {
		t.Fatalf("unexpected judgment for empty frame: %+v", j)
	}
}
