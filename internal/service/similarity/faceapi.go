package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

const (
	faceDetectPath = "/face/v1.0/detect?returnFaceId=true&recognitionModel=recognition_04&detectionModel=detection_03"
	faceVerifyPath = "/face/v1.0/verify"
)

// FaceAPIStrategy 使用 Azure Face REST 接口：分别检测两张图片中的人脸，再做 1:1 验证。
type FaceAPIStrategy struct {
	endpoint string
	apiKey   string
	client   *retryablehttp.Client
}

// NewFaceAPIStrategy creates the strategy; approved iff the service reports isIdentical.
// Azure applies its own confidence cutoff before setting isIdentical.
func NewFaceAPIStrategy(endpoint, apiKey string, client *retryablehttp.Client) *FaceAPIStrategy {
	return &FaceAPIStrategy{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   client,
	}
}

func (s *FaceAPIStrategy) Name() string { return "face_api" }

func (s *FaceAPIStrategy) Compare(ctx context.Context, first, second Image) (Outcome, error) {
	var firstID, secondID string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		id, err := s.detect(gctx, first)
		firstID = id
		return err
	})
	g.Go(func() error {
		id, err := s.detect(gctx, second)
		secondID = id
		return err
	})
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}

	result, err := s.verify(ctx, firstID, secondID)
	if err != nil {
		return Outcome{}, err
	}

	confidence := liveness.Clamp(result.Confidence)
	verdict := "different"
	if result.IsIdentical {
		verdict = "identical"
	}
	return Outcome{
		Similarity:  confidence,
		Approved:    result.IsIdentical,
		IsIdentical: result.IsIdentical,
		Confidence:  confidence,
		Reason:      fmt.Sprintf("Verification returned %s faces with confidence %.4f.", verdict, confidence),
	}, nil
}

type detectedFace struct {
	FaceID string `json:"faceId"`
}

func (s *FaceAPIStrategy) detect(ctx context.Context, img Image) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+faceDetectPath, bytes.NewReader(img.Data))
	if err != nil {
		return "", fmt.Errorf("create detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var faces []detectedFace
	if err := s.do(req, &faces); err != nil {
		return "", fmt.Errorf("face detect: %w", err)
	}
	if len(faces) == 0 || faces[0].FaceID == "" {
		return "", fmt.Errorf("no face detected in image")
	}
	return faces[0].FaceID, nil
}

type verifyRequest struct {
	FaceID1 string `json:"faceId1"`
	FaceID2 string `json:"faceId2"`
}

type verifyResponse struct {
	IsIdentical bool    `json:"isIdentical"`
	Confidence  float64 `json:"confidence"`
}

func (s *FaceAPIStrategy) verify(ctx context.Context, firstID, secondID string) (verifyResponse, error) {
	body, err := json.Marshal(verifyRequest{FaceID1: firstID, FaceID2: secondID})
	if err != nil {
		return verifyResponse{}, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+faceVerifyPath, bytes.NewReader(body))
	if err != nil {
		return verifyResponse{}, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var result verifyResponse
	if err := s.do(req, &result); err != nil {
		return verifyResponse{}, fmt.Errorf("face verify: %w", err)
	}
	return result, nil
}

func (s *FaceAPIStrategy) do(req *retryablehttp.Request, out any) error {
	req.Header.Set("Ocp-Apim-Subscription-Key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(detail))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
