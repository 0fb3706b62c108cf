package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	AI         AIConfig
	Liveness   LivenessConfig
	Similarity SimilarityConfig
	Store      StoreConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	live, err := loadLivenessConfig()
	if err != nil {
		return nil, err
	}

	similarity, err := loadSimilarityConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Log:        loadLogConfig(),
		AI:         ai,
		Liveness:   live,
		Similarity: similarity,
		Store:      store,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// Provider names accepted by LIVENESS_PROVIDER.
const (
	ProviderHeuristic = "heuristic"
	ProviderSocket    = "socket"
)

// DefaultSocketPath 未配置 LIVENESS_SOCKET_PATH 时使用的本地检测器地址。
const DefaultSocketPath = "/tmp/liveness-detector.sock"

// LivenessConfig 描述活体挑战配置，进程启动时解析一次。
type LivenessConfig struct {
	Provider          string
	SocketPath        string
	SocketCompression bool
	Language          string
	NumGestures       int
	Gestures          []liveness.Gesture
	AcceptThreshold   float64
	SessionDeadline   time.Duration
	CallTimeout       time.Duration
	MaxFrameBytes     int
}

func loadLivenessConfig() (LivenessConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("LIVENESS_PROVIDER", ProviderHeuristic))
	if provider != ProviderHeuristic && provider != ProviderSocket {
		return LivenessConfig{}, fmt.Errorf("invalid LIVENESS_PROVIDER value %q: want %s or %s", provider, ProviderHeuristic, ProviderSocket)
	}

	compression, err := parseBoolEnv("LIVENESS_SOCKET_COMPRESSION", false)
	if err != nil {
		return LivenessConfig{}, err
	}

	numGestures := 3
	if override, err := parseOptionalIntEnv("LIVENESS_NUM_GESTURES"); err != nil {
		return LivenessConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return LivenessConfig{}, fmt.Errorf("invalid LIVENESS_NUM_GESTURES value %d: must be >= 0", *override)
		}
		numGestures = *override
	}

	gestures := liveness.DefaultGestures
	if raw := strings.TrimSpace(os.Getenv("LIVENESS_GESTURES")); raw != "" {
		gestures, err = liveness.ParseGestureList(raw)
		if err != nil {
			return LivenessConfig{}, fmt.Errorf("invalid LIVENESS_GESTURES value %q: %w", raw, err)
		}
	}
	if numGestures > 0 && len(gestures) == 0 {
		return LivenessConfig{}, fmt.Errorf("LIVENESS_GESTURES is empty but LIVENESS_NUM_GESTURES=%d", numGestures)
	}

	threshold, err := parseThresholdEnv("LIVENESS_ACCEPT_THRESHOLD", 0.5)
	if err != nil {
		return LivenessConfig{}, err
	}

	deadline, err := parseDurationEnv("LIVENESS_SESSION_DEADLINE", 60*time.Second)
	if err != nil {
		return LivenessConfig{}, err
	}

	callTimeout, err := parseDurationEnv("LIVENESS_CALL_TIMEOUT", 5*time.Second)
	if err != nil {
		return LivenessConfig{}, err
	}

	maxFrame := 4 << 20
	if override, err := parseOptionalIntEnv("LIVENESS_MAX_FRAME_BYTES"); err != nil {
		return LivenessConfig{}, err
	} else if override != nil && *override > 0 {
		maxFrame = *override
	}

	return LivenessConfig{
		Provider:          provider,
		SocketPath:        getEnvOrDefault("LIVENESS_SOCKET_PATH", DefaultSocketPath),
		SocketCompression: compression,
		Language:          getEnvOrDefault("LIVENESS_LANGUAGE", "en"),
		NumGestures:       numGestures,
		Gestures:          gestures,
		AcceptThreshold:   threshold,
		SessionDeadline:   deadline,
		CallTimeout:       callTimeout,
		MaxFrameBytes:     maxFrame,
	}, nil
}

// SimilarityConfig 描述三种相似度策略的配置。
type SimilarityConfig struct {
	EmbeddingEndpoint  string
	EmbeddingAPIKey    string
	EmbeddingThreshold float64
	// ModelThreshold 与 FaceThreshold 只用于日志展示，不参与是否通过的判断
	ModelThreshold     float64
	FaceEndpoint       string
	FaceAPIKey         string
	FaceThreshold      float64
	Timeout            time.Duration
}

// EmbeddingsEnabled reports whether the embeddings endpoint is configured.
func (c SimilarityConfig) EmbeddingsEnabled() bool {
	return c.EmbeddingEndpoint != "" && c.EmbeddingAPIKey != ""
}

// FaceAPIEnabled reports whether the face API is configured.
func (c SimilarityConfig) FaceAPIEnabled() bool {
	return c.FaceEndpoint != "" && c.FaceAPIKey != ""
}

func loadSimilarityConfig() (SimilarityConfig, error) {
	embeddingThreshold, err := parseThresholdEnv("EMBEDDING_THRESHOLD", 0.8)
	if err != nil {
		return SimilarityConfig{}, err
	}
	modelThreshold, err := parseThresholdEnv("MODEL_SIMILARITY_THRESHOLD", 0.8)
	if err != nil {
		return SimilarityConfig{}, err
	}
	faceThreshold, err := parseThresholdEnv("FACE_THRESHOLD", 0.5)
	if err != nil {
		return SimilarityConfig{}, err
	}
	timeout, err := parseDurationEnv("SIMILARITY_TIMEOUT", 20*time.Second)
	if err != nil {
		return SimilarityConfig{}, err
	}

	faceKey := strings.TrimSpace(os.Getenv("FACE_API_KEY"))
	if faceKey == "" {
		faceKey = strings.TrimSpace(os.Getenv("FACE_APIKEY"))
	}

	return SimilarityConfig{
		EmbeddingEndpoint:  strings.TrimSpace(os.Getenv("EMBEDDING_ENDPOINT_URL")),
		EmbeddingAPIKey:    strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")),
		EmbeddingThreshold: embeddingThreshold,
		ModelThreshold:     modelThreshold,
		FaceEndpoint:       strings.TrimRight(strings.TrimSpace(os.Getenv("FACE_ENDPOINT")), "/"),
		FaceAPIKey:         faceKey,
		FaceThreshold:      faceThreshold,
		Timeout:            timeout,
	}, nil
}

// StoreConfig 描述最终判定结果的持久化配置，未配置 REDIS_ADDR 时使用内存存储。
type StoreConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Namespace     string
	VerdictTTL    time.Duration
}

// RedisEnabled reports whether verdicts go to Redis.
func (c StoreConfig) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func loadStoreConfig() (StoreConfig, error) {
	db := 0
	if override, err := parseOptionalIntEnv("REDIS_DB"); err != nil {
		return StoreConfig{}, err
	} else if override != nil {
		db = *override
	}

	ttl, err := parseDurationEnv("VERDICT_TTL", 24*time.Hour)
	if err != nil {
		return StoreConfig{}, err
	}

	return StoreConfig{
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       db,
		Namespace:     getEnvOrDefault("REDIS_NAMESPACE", "liveness"),
		VerdictTTL:    ttl,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseThresholdEnv 解析 (0,1] 区间内的阈值。
func parseThresholdEnv(key string, defaultValue float64) (float64, error) {
	val, err := parseOptionalFloatEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 || *val > 1 {
		return 0, fmt.Errorf("invalid %s value %v: must be within (0, 1]", key, *val)
	}
	return *val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationEnv 支持 "30s" 形式，也接受纯数字（秒）。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}
