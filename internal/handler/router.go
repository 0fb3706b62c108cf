package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	livenessHandler "github.com/zhouzirui/liveness/backend/internal/handler/liveness"
	similarityHandler "github.com/zhouzirui/liveness/backend/internal/handler/similarity"
	middlewarePkg "github.com/zhouzirui/liveness/backend/internal/middleware"
	"github.com/zhouzirui/liveness/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(liveness *livenessHandler.Handler, similarity *similarityHandler.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok", "detail": "ready"})
	})

	// 流式活体检测通道
	liveness.RegisterWebSocketRoutes(r)

	r.Route("/api", func(api chi.Router) {
		liveness.RegisterRoutes(api)
		similarity.RegisterRoutes(api)
	})

	return r
}
