package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// EmbeddingsStrategy 调用远端 embedding 服务，用余弦相似度比较两张图片。
type EmbeddingsStrategy struct {
	endpoint  string
	apiKey    string
	threshold float64
	client    *retryablehttp.Client
}

// NewEmbeddingsStrategy creates the strategy; approved iff similarity >= threshold.
func NewEmbeddingsStrategy(endpoint, apiKey string, threshold float64, client *retryablehttp.Client) *EmbeddingsStrategy {
	return &EmbeddingsStrategy{
		endpoint:  endpoint,
		apiKey:    apiKey,
		threshold: threshold,
		client:    client,
	}
}

func (s *EmbeddingsStrategy) Name() string { return "embeddings" }

func (s *EmbeddingsStrategy) Compare(ctx context.Context, first, second Image) (Outcome, error) {
	var a, b []float64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := s.embed(gctx, first)
		a = vec
		return err
	})
	g.Go(func() error {
		vec, err := s.embed(gctx, second)
		b = vec
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return Outcome{}, err
	}
	sim = liveness.Clamp(sim)
	return Outcome{Similarity: sim, Approved: sim >= s.threshold}, nil
}

type embeddingRequest struct {
	Image string `json:"image"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (s *EmbeddingsStrategy) embed(ctx context.Context, img Image) ([]float64, error) {
	body, err := json.Marshal(embeddingRequest{Image: img.Base64()})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding endpoint is unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("embedding endpoint failed with status %d: %s", resp.StatusCode, string(detail))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedding endpoint returned invalid JSON: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned an empty embedding")
	}
	return parsed.Embedding, nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("embedding dimensions differ: %d vs %d", len(a), len(b))
	}

	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0, fmt.Errorf("embedding has zero norm")
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}
