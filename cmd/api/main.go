package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/config"
	"github.com/zhouzirui/liveness/backend/internal/handler"
	livenessHandler "github.com/zhouzirui/liveness/backend/internal/handler/liveness"
	similarityHandler "github.com/zhouzirui/liveness/backend/internal/handler/similarity"
	"github.com/zhouzirui/liveness/backend/internal/logger"
	livenessService "github.com/zhouzirui/liveness/backend/internal/service/liveness"
	similarityService "github.com/zhouzirui/liveness/backend/internal/service/similarity"
	"github.com/zhouzirui/liveness/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", zap.Error(envErr))
	}

	selection, err := livenessService.NewSelection(cfg.Liveness)
	if err != nil {
		logger.L().Fatal("invalid liveness configuration", zap.Error(err))
	}
	logger.Info("liveness provider selected",
		zap.String("provider", selection.ProviderName()),
		zap.Int("gestures", cfg.Liveness.NumGestures),
		zap.String("language", selection.Catalog().Language()))

	verdicts, err := store.Open(ctx, cfg.Store)
	if err != nil {
		logger.L().Fatal("failed to open verdict store", zap.Error(err))
	}
	defer verdicts.Close()

	aggregator, downloader := newSimilarity(ctx, cfg)

	registry := livenessService.NewRegistry()
	defer registry.CloseAll()

	router := handler.NewRouter(
		livenessHandler.New(selection, registry, verdicts),
		similarityHandler.New(aggregator, downloader),
	)

	startServer(ctx, cfg.Server, router, registry)
}

// newSimilarity 只装配已配置的策略；未配置的策略在结果中标记为 unavailable。
func newSimilarity(ctx context.Context, cfg *config.Config) (*similarityService.Aggregator, *similarityService.Downloader) {
	client := similarityService.NewHTTPClient(cfg.Similarity.Timeout)

	var embeddings, modelStrategy, faceAPI similarityService.Strategy

	if cfg.Similarity.EmbeddingsEnabled() {
		embeddings = similarityService.NewEmbeddingsStrategy(
			cfg.Similarity.EmbeddingEndpoint,
			cfg.Similarity.EmbeddingAPIKey,
			cfg.Similarity.EmbeddingThreshold,
			client,
		)
		logger.Info("embeddings strategy enabled")
	} else {
		logger.Info("EMBEDDING_ENDPOINT_URL 未配置，跳过 embeddings 策略")
	}

	if cfg.AI.Enabled() {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err == nil {
			var s *similarityService.ModelStrategy
			s, err = similarityService.NewModelStrategy(ctx, chatModel)
			if err == nil {
				modelStrategy = s
			}
		}
		if err != nil {
			logger.Warn("failed to initialize model strategy, 请检查 Ark 模型相关环境变量", zap.Error(err))
		} else {
			logger.Info("model strategy enabled", zap.String("model", cfg.AI.Model))
		}
	} else {
		logger.Info("Ark 凭证未配置，跳过 model 策略")
	}

	if cfg.Similarity.FaceAPIEnabled() {
		faceAPI = similarityService.NewFaceAPIStrategy(
			cfg.Similarity.FaceEndpoint,
			cfg.Similarity.FaceAPIKey,
			client,
		)
		logger.Info("face api strategy enabled", zap.Float64("reported_threshold", cfg.Similarity.FaceThreshold))
	} else {
		logger.Info("FACE_ENDPOINT 未配置，跳过 face api 策略")
	}

	aggregator := similarityService.NewAggregator(embeddings, modelStrategy, faceAPI, cfg.Similarity.Timeout)
	return aggregator, similarityService.NewDownloader(client)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, registry *livenessService.Registry) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	// websocket 连接被劫持后不受 Shutdown 管理，需要单独关闭
	srv.RegisterOnShutdown(registry.CloseAll)

	logger.Info("liveness backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.L().Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
