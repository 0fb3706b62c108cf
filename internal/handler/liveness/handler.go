package liveness

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/logger"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
	livenesssvc "github.com/zhouzirui/liveness/backend/internal/service/liveness"
	"github.com/zhouzirui/liveness/backend/internal/store"
	"github.com/zhouzirui/liveness/backend/pkg/utils"
)

// maxValidateBody bounds POST /api/validate bodies (base64 samples).
const maxValidateBody = 32 << 20

// SessionFactory 创建流式会话与批量校验用的 provider；*livenesssvc.Selection 实现了它。
type SessionFactory interface {
	livenesssvc.ProviderFactory
	NewSession(now time.Time) *livenesssvc.Session
	ProviderName() string
	MaxFrameBytes() int
}

// Handler 活体检测的 HTTP 与 websocket 处理器
type Handler struct {
	selection SessionFactory
	batch     *livenesssvc.BatchValidator
	registry  *livenesssvc.Registry
	verdicts  store.VerdictStore
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	log       *zap.Logger
}

// New 创建活体检测处理器
func New(selection SessionFactory, registry *livenesssvc.Registry, verdicts store.VerdictStore) *Handler {
	return &Handler{
		selection: selection,
		batch:     livenesssvc.NewBatchValidator(selection),
		registry:  registry,
		verdicts:  verdicts,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 << 10,
			WriteBufferSize: 4 << 10,
		},
		log: logger.Named("websocket"),
	}
}

// RegisterRoutes 注册 /api 下的活体检测路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/validate", h.handleValidate)
	r.Get("/liveness/sessions/{sessionID}", h.handleSession)
}

// RegisterWebSocketRoutes 注册流式活体检测通道
func (h *Handler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws/liveness", h.handleWebSocket)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req liveness.ValidationRequest
	if err := utils.DecodeJSON(w, r, maxValidateBody, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.batch.Validate(r.Context(), req)
	if err != nil {
		var corrupt base64.CorruptInputError
		if errors.As(err, &corrupt) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("batch validation failed", zap.String("user_id", req.UserID), zap.Error(err))
		utils.RespondError(w, http.StatusBadGateway, err.Error())
		return
	}

	h.log.Info("batch validation finished",
		zap.String("user_id", req.UserID),
		zap.Int("attempts", resp.Attempts),
		zap.Bool("is_live", resp.IsLive))
	utils.RespondJSON(w, http.StatusOK, resp)
}

// handleSession 返回会话最近一次的判定：优先内存中的活跃会话，其次已持久化的最终结果
func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "sessionID is required")
		return
	}

	if session, ok := h.registry.Get(sessionID); ok {
		utils.RespondJSON(w, http.StatusOK, session.Snapshot())
		return
	}

	v, err := h.verdicts.Load(r.Context(), sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case err != nil:
		h.log.Error("load verdict failed", zap.String("session_id", sessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
	default:
		utils.RespondJSON(w, http.StatusOK, v)
	}
}

func (h *Handler) persist(v liveness.Verdict) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := h.verdicts.Save(ctx, v.SessionID, v); err != nil {
		h.log.Error("persist verdict failed", zap.String("session_id", v.SessionID), zap.Error(err))
	}
}
