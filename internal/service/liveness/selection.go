package liveness

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/zhouzirui/liveness/backend/internal/analysis/gesture"
	"github.com/zhouzirui/liveness/backend/internal/config"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// Selection 在进程启动时解析一次，之后只读；每个会话从中创建自己的 provider。
type Selection struct {
	provider        string
	socketPath      string
	compress        bool
	callTimeout     time.Duration
	catalog         *gesture.Catalog
	numGestures     int
	vocabulary      []liveness.Gesture
	threshold       float64
	sessionDeadline time.Duration
	maxFrameBytes   int
}

// NewSelection validates the liveness configuration.
func NewSelection(cfg config.LivenessConfig) (*Selection, error) {
	switch cfg.Provider {
	case config.ProviderHeuristic, config.ProviderSocket:
	default:
		return nil, fmt.Errorf("unknown liveness provider %q", cfg.Provider)
	}
	if cfg.Provider == config.ProviderSocket && cfg.SocketPath == "" {
		return nil, fmt.Errorf("socket provider requires a socket path")
	}
	if cfg.NumGestures < 0 {
		return nil, fmt.Errorf("numGestures must be >= 0, got %d", cfg.NumGestures)
	}
	if cfg.NumGestures > 0 && len(cfg.Gestures) == 0 {
		return nil, fmt.Errorf("gesture vocabulary is empty")
	}

	threshold := cfg.AcceptThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	deadline := cfg.SessionDeadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}

	return &Selection{
		provider:        cfg.Provider,
		socketPath:      cfg.SocketPath,
		compress:        cfg.SocketCompression,
		callTimeout:     cfg.CallTimeout,
		catalog:         gesture.NewCatalog(cfg.Language),
		numGestures:     cfg.NumGestures,
		vocabulary:      slices.Clone(cfg.Gestures),
		threshold:       threshold,
		sessionDeadline: deadline,
		maxFrameBytes:   cfg.MaxFrameBytes,
	}, nil
}

// ProviderName returns the configured provider identifier.
func (s *Selection) ProviderName() string {
	return s.provider
}

// NewProvider creates a provider owned by a single session.
func (s *Selection) NewProvider() Provider {
	if s.provider == config.ProviderSocket {
		return NewSocketProvider(s.socketPath, s.compress, s.callTimeout)
	}
	return NewHeuristicProvider()
}

// Catalog returns the instruction catalog for the configured language.
func (s *Selection) Catalog() *gesture.Catalog {
	return s.catalog
}

// EngineOptions derives per-session engine options; rng may be nil.
func (s *Selection) EngineOptions(now time.Time, rng *rand.Rand) EngineOptions {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return EngineOptions{
		Sequence:  DrawSequence(rng, s.vocabulary, s.numGestures),
		Threshold: s.threshold,
		Deadline:  now.Add(s.sessionDeadline),
		Catalog:   s.catalog,
	}
}

// MaxFrameBytes bounds the per-session frame buffer.
func (s *Selection) MaxFrameBytes() int {
	return s.maxFrameBytes
}

// DrawSequence picks n gestures from the vocabulary, without repeats while the
// vocabulary is large enough.
func DrawSequence(rng *rand.Rand, vocabulary []liveness.Gesture, n int) []liveness.Gesture {
	if n <= 0 || len(vocabulary) == 0 {
		return nil
	}
	seq := make([]liveness.Gesture, n)
	if n <= len(vocabulary) {
		perm := rng.Perm(len(vocabulary))
		for i := range seq {
			seq[i] = vocabulary[perm[i]]
		}
		return seq
	}
	for i := range seq {
		seq[i] = vocabulary[rng.IntN(len(vocabulary))]
	}
	return seq
}
