package similarity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/logger"
	simmodel "github.com/zhouzirui/liveness/backend/internal/model/similarity"
)

// ErrNoStrategyAvailable is returned when every strategy failed or is unconfigured.
var ErrNoStrategyAvailable = errors.New("no similarity strategy available")

// Aggregator 并发运行三种策略并按多数规则汇总。
type Aggregator struct {
	embeddings Strategy
	model      Strategy
	faceAPI    Strategy
	timeout    time.Duration
	log        *zap.Logger
}

// NewAggregator accepts nil for strategies that are not configured.
func NewAggregator(embeddings, modelStrategy, faceAPI Strategy, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Aggregator{
		embeddings: embeddings,
		model:      modelStrategy,
		faceAPI:    faceAPI,
		timeout:    timeout,
		log:        logger.Named("similarity"),
	}
}

type strategyRun struct {
	outcome Outcome
	err     error
}

// Evaluate runs every strategy and waits for all of them. The evaluation is
// always fully populated; ErrNoStrategyAvailable is returned alongside it when
// nothing produced a result.
func (a *Aggregator) Evaluate(ctx context.Context, first, second Image) (simmodel.Evaluation, error) {
	strategies := [3]Strategy{a.embeddings, a.model, a.faceAPI}
	var runs [3]strategyRun

	var wg sync.WaitGroup
	for i, s := range strategies {
		wg.Add(1)
		go func(i int, s Strategy) {
			defer wg.Done()
			runs[i] = a.run(ctx, s, first, second)
		}(i, s)
	}
	wg.Wait()

	eval := simmodel.Evaluation{
		Embeddings: toStrategyResult(runs[0]),
		Model:      simmodel.ModelResult{StrategyResult: toStrategyResult(runs[1])},
		FaceAPI:    simmodel.FaceAPIResult{StrategyResult: toStrategyResult(runs[2])},
	}
	if runs[1].err == nil {
		eval.Model.SamePerson = runs[1].outcome.SamePerson
		eval.Model.Explanation = runs[1].outcome.Explanation
	}
	if runs[2].err == nil {
		eval.FaceAPI.IsIdentical = runs[2].outcome.IsIdentical
		eval.FaceAPI.Confidence = runs[2].outcome.Confidence
		eval.FaceAPI.Reason = runs[2].outcome.Reason
	}

	eval.Similarity, eval.Status = Combine(eval.Embeddings, eval.Model.StrategyResult, eval.FaceAPI.StrategyResult)

	if eval.AvailableCount() == 0 {
		return eval, ErrNoStrategyAvailable
	}
	return eval, nil
}

// Combine 计算可用策略的平均相似度；至少两个可用策略通过才判定 approved。
func Combine(results ...simmodel.StrategyResult) (float64, simmodel.Status) {
	var (
		sum       float64
		available int
		approved  int
	)
	for _, r := range results {
		if !r.Available {
			continue
		}
		available++
		sum += r.Similarity
		if r.Approved() {
			approved++
		}
	}
	if available == 0 {
		return 0, simmodel.StatusNotApproved
	}
	return sum / float64(available), simmodel.StatusFor(available >= 2 && approved >= 2)
}

func (a *Aggregator) run(ctx context.Context, s Strategy, first, second Image) (result strategyRun) {
	if s == nil {
		return strategyRun{err: fmt.Errorf("%w: not configured", ErrStrategyUnavailable)}
	}

	defer func() {
		if r := recover(); r != nil {
			a.log.Error("strategy panicked", zap.String("strategy", s.Name()), zap.Any("panic", r))
			result = strategyRun{err: fmt.Errorf("%w: %s panicked: %v", ErrStrategyUnavailable, s.Name(), r)}
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	outcome, err := s.Compare(callCtx, first, second)
	if err != nil {
		a.log.Warn("strategy failed",
			zap.String("strategy", s.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return strategyRun{err: err}
	}

	a.log.Debug("strategy finished",
		zap.String("strategy", s.Name()),
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("similarity", outcome.Similarity),
		zap.Bool("approved", outcome.Approved))
	return strategyRun{outcome: outcome}
}

func toStrategyResult(r strategyRun) simmodel.StrategyResult {
	if r.err != nil {
		return simmodel.Unavailable(r.err.Error())
	}
	return simmodel.StrategyResult{
		Similarity: r.outcome.Similarity,
		Status:     simmodel.StatusFor(r.outcome.Approved),
		Available:  true,
	}
}
