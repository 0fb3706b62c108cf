package liveness

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

const (
	reasonNoSamples     = "No samples provided"
	reasonMajorityLive  = "Majority indicates liveness"
	reasonMajoritySpoof = "Majority indicates spoof"
)

// ProviderFactory creates a provider per unit of work; Selection implements it.
type ProviderFactory interface {
	NewProvider() Provider
}

// BatchValidator 对一批静态样本逐个做被动活体判断并按多数表决汇总。
type BatchValidator struct {
	providers ProviderFactory
	now       func() time.Time
}

// NewBatchValidator creates a validator drawing providers from factory.
func NewBatchValidator(factory ProviderFactory) *BatchValidator {
	return &BatchValidator{providers: factory, now: time.Now}
}

// Validate evaluates every sample. Ties count as live.
func (v *BatchValidator) Validate(ctx context.Context, req liveness.ValidationRequest) (liveness.ValidationResponse, error) {
	resp := liveness.ValidationResponse{
		UserID:  req.UserID,
		Samples: []liveness.Verdict{},
	}
	if len(req.Samples) == 0 {
		resp.Reason = reasonNoSamples
		return resp, nil
	}

	provider := v.providers.NewProvider()
	defer provider.Close()

	live := 0
	var total float64
	for i, encoded := range req.Samples {
		frame, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return liveness.ValidationResponse{}, fmt.Errorf("sample %d: %w", i, err)
		}

		j, err := provider.Evaluate(ctx, frame, liveness.GestureNone)
		if err != nil {
			return liveness.ValidationResponse{}, fmt.Errorf("sample %d: %w", i, err)
		}

		isLive := j.Matched && !j.Spoof
		reason := j.Detail
		if reason != "" && len(frame) > 0 {
			reason = fmt.Sprintf("%s on attempt %d", reason, i+1)
		}
		verdict := liveness.NewVerdict(isLive, j.Confidence, reason, v.now())
		resp.Samples = append(resp.Samples, verdict)

		if isLive {
			live++
		}
		total += verdict.Confidence
	}

	n := len(resp.Samples)
	resp.Attempts = n
	resp.IsLive = live*2 >= n
	resp.Confidence = roundTo(total/float64(n), 3)
	resp.Reason = reasonMajoritySpoof
	if resp.IsLive {
		resp.Reason = reasonMajorityLive
	}
	return resp, nil
}
