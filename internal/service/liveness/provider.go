package liveness

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// Provider 对单帧给出动作是否完成的判断。
type Provider interface {
	Evaluate(ctx context.Context, frame []byte, gesture liveness.Gesture) (liveness.Judgment, error)
	Close() error
}

// HeuristicProvider is a deterministic, dependency-free provider used when no
// detector is deployed. The same frame and gesture always produce the same judgment.
type HeuristicProvider struct{}

// NewHeuristicProvider returns the heuristic provider.
func NewHeuristicProvider() *HeuristicProvider {
	return &HeuristicProvider{}
}

// Evaluate hashes gesture||frame and maps the first digest byte to [0,1].
func (p *HeuristicProvider) Evaluate(_ context.Context, frame []byte, gesture liveness.Gesture) (liveness.Judgment, error) {
	if len(frame) == 0 {
		return liveness.Judgment{Detail: "empty frame received"}, nil
	}

	h := sha256.New()
	h.Write([]byte(gesture))
	h.Write(frame)
	digest := h.Sum(nil)

	confidence := roundTo(float64(digest[0])/255, 3)
	matched := confidence >= 0.5
	detail := "Confidence threshold not met"
	if matched {
		detail = "Confidence threshold satisfied"
	}
	if gesture != liveness.GestureNone {
		detail = fmt.Sprintf("%s for %s", detail, gesture)
	}

	return liveness.Judgment{
		Matched:    matched,
		Confidence: confidence,
		Detail:     detail,
	}, nil
}

// Close is a no-op.
func (p *HeuristicProvider) Close() error {
	return nil
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
