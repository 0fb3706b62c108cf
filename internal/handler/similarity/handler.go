package similarity

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/logger"
	"github.com/zhouzirui/liveness/backend/internal/model/similarity"
	similaritysvc "github.com/zhouzirui/liveness/backend/internal/service/similarity"
	"github.com/zhouzirui/liveness/backend/pkg/utils"
)

// 两张 base64 图片加上 JSON 外壳
const maxCompareBody = 3 * similaritysvc.MaxImageBytes

// Evaluator 抽象相似度汇总，便于测试替换
type Evaluator interface {
	Evaluate(ctx context.Context, first, second similaritysvc.Image) (similarity.Evaluation, error)
}

// Fetcher 下载 URL 形式提交的图片对
type Fetcher interface {
	FetchPair(ctx context.Context, firstURL, secondURL string) (similaritysvc.Image, similaritysvc.Image, error)
}

// Handler 人脸相似度的 HTTP 处理器
type Handler struct {
	evaluator Evaluator
	fetcher   Fetcher
	validate  *validator.Validate
	log       *zap.Logger
}

// New 创建相似度处理器
func New(evaluator Evaluator, fetcher Fetcher) *Handler {
	return &Handler{
		evaluator: evaluator,
		fetcher:   fetcher,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		log:       logger.Named("similarity"),
	}
}

// RegisterRoutes 注册相似度路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/images/similarity", h.handleCompare)
}

func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req similarity.CompareRequest
	if err := utils.DecodeJSON(w, r, maxCompareBody, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	first, second, status, err := h.loadImages(r.Context(), req)
	if err != nil {
		utils.RespondError(w, status, err.Error())
		return
	}

	eval, err := h.evaluator.Evaluate(r.Context(), first, second)
	if errors.Is(err, similaritysvc.ErrNoStrategyAvailable) {
		h.log.Warn("no similarity strategy produced a result",
			zap.String("embeddings", eval.Embeddings.Error),
			zap.String("model", eval.Model.Error),
			zap.String("face_api", eval.FaceAPI.Error))
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err != nil {
		h.log.Error("similarity evaluation failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "similarity evaluation failed")
		return
	}

	h.log.Info("similarity evaluated",
		zap.Float64("similarity", eval.Similarity),
		zap.String("status", string(eval.Status)),
		zap.Int("available", eval.AvailableCount()))
	utils.RespondJSON(w, http.StatusOK, eval)
}

// loadImages 返回两张已校验的图片；失败时同时给出 HTTP 状态码
func (h *Handler) loadImages(ctx context.Context, req similarity.CompareRequest) (similaritysvc.Image, similaritysvc.Image, int, error) {
	if req.UsesURLs() {
		if h.fetcher == nil {
			return similaritysvc.Image{}, similaritysvc.Image{}, http.StatusBadRequest, errors.New("image urls are not supported")
		}
		first, second, err := h.fetcher.FetchPair(ctx, req.FirstImageURL, req.SecondImageURL)
		switch {
		case errors.Is(err, similaritysvc.ErrInvalidImage):
			return first, second, http.StatusBadRequest, err
		case err != nil:
			h.log.Warn("image download failed", zap.Error(err))
			return first, second, http.StatusBadGateway, similaritysvc.ErrDownload
		}
		return first, second, http.StatusOK, nil
	}

	first, err := similaritysvc.DecodeImage(req.FirstImage)
	if err != nil {
		return similaritysvc.Image{}, similaritysvc.Image{}, http.StatusBadRequest, errors.New("first_image: " + err.Error())
	}
	second, err := similaritysvc.DecodeImage(req.SecondImage)
	if err != nil {
		return similaritysvc.Image{}, similaritysvc.Image{}, http.StatusBadRequest, errors.New("second_image: " + err.Error())
	}
	return first, second, http.StatusOK, nil
}
