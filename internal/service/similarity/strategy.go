package similarity

import (
	"context"
	"errors"
)

// ErrStrategyUnavailable marks a strategy that is not configured.
var ErrStrategyUnavailable = errors.New("strategy unavailable")

// Outcome 是单个策略的比对结果。不同策略只填写与自己相关的字段。
type Outcome struct {
	Similarity float64
	Approved   bool

	// 生成式模型
	SamePerson  bool
	Explanation string

	// 人脸 API
	IsIdentical bool
	Confidence  float64
	Reason      string
}

// Strategy 比较两张图片是否为同一人。
type Strategy interface {
	Name() string
	Compare(ctx context.Context, first, second Image) (Outcome, error)
}
