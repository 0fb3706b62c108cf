package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

var configEnv = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT",
	"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_TEMPERATURE", "ARK_TOP_P", "ARK_MAX_TOKENS",
	"LIVENESS_PROVIDER", "LIVENESS_SOCKET_PATH", "LIVENESS_SOCKET_COMPRESSION", "LIVENESS_LANGUAGE",
	"LIVENESS_NUM_GESTURES", "LIVENESS_GESTURES", "LIVENESS_ACCEPT_THRESHOLD", "LIVENESS_SESSION_DEADLINE",
	"LIVENESS_CALL_TIMEOUT", "LIVENESS_MAX_FRAME_BYTES",
	"EMBEDDING_ENDPOINT_URL", "EMBEDDING_API_KEY", "EMBEDDING_THRESHOLD", "MODEL_SIMILARITY_THRESHOLD",
	"FACE_ENDPOINT", "FACE_API_KEY", "FACE_APIKEY", "FACE_THRESHOLD", "SIMILARITY_TIMEOUT",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_NAMESPACE", "VERDICT_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "info", cfg.Log.Level)
	require.False(t, cfg.AI.Enabled())

	require.Equal(t, ProviderHeuristic, cfg.Liveness.Provider)
	require.Equal(t, DefaultSocketPath, cfg.Liveness.SocketPath)
	require.Equal(t, 3, cfg.Liveness.NumGestures)
	require.Equal(t, liveness.DefaultGestures, cfg.Liveness.Gestures)
	require.Equal(t, 0.5, cfg.Liveness.AcceptThreshold)
	require.Equal(t, 60*time.Second, cfg.Liveness.SessionDeadline)
	require.Equal(t, 5*time.Second, cfg.Liveness.CallTimeout)
	require.Equal(t, 4<<20, cfg.Liveness.MaxFrameBytes)

	require.Equal(t, 0.8, cfg.Similarity.EmbeddingThreshold)
	require.Equal(t, 0.5, cfg.Similarity.FaceThreshold)
	require.Equal(t, 20*time.Second, cfg.Similarity.Timeout)
	require.False(t, cfg.Similarity.EmbeddingsEnabled())
	require.False(t, cfg.Similarity.FaceAPIEnabled())

	require.False(t, cfg.Store.RedisEnabled())
	require.Equal(t, "liveness", cfg.Store.Namespace)
	require.Equal(t, 24*time.Hour, cfg.Store.VerdictTTL)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("LIVENESS_PROVIDER", "Socket")
	t.Setenv("LIVENESS_SOCKET_COMPRESSION", "true")
	t.Setenv("LIVENESS_NUM_GESTURES", "0")
	t.Setenv("LIVENESS_GESTURES", "blink, NOD")
	t.Setenv("LIVENESS_SESSION_DEADLINE", "90")
	t.Setenv("LIVENESS_CALL_TIMEOUT", "1500ms")
	t.Setenv("FACE_ENDPOINT", "https://face.example.com/")
	t.Setenv("FACE_APIKEY", "legacy-key")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, ProviderSocket, cfg.Liveness.Provider)
	require.True(t, cfg.Liveness.SocketCompression)
	require.Zero(t, cfg.Liveness.NumGestures)
	require.Equal(t, []liveness.Gesture{liveness.GestureBlink, liveness.GestureNod}, cfg.Liveness.Gestures)
	require.Equal(t, 90*time.Second, cfg.Liveness.SessionDeadline)
	require.Equal(t, 1500*time.Millisecond, cfg.Liveness.CallTimeout)

	require.True(t, cfg.Similarity.FaceAPIEnabled())
	require.Equal(t, "https://face.example.com", cfg.Similarity.FaceEndpoint)
	require.Equal(t, "legacy-key", cfg.Similarity.FaceAPIKey)

	require.True(t, cfg.Store.RedisEnabled())
	require.Equal(t, 2, cfg.Store.RedisDB)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"unknown provider":  {"LIVENESS_PROVIDER", "magic"},
		"negative gestures": {"LIVENESS_NUM_GESTURES", "-1"},
		"unknown gesture":   {"LIVENESS_GESTURES", "blink,wink"},
		"threshold above 1": {"LIVENESS_ACCEPT_THRESHOLD", "1.5"},
		"threshold zero":    {"EMBEDDING_THRESHOLD", "0"},
		"negative deadline": {"LIVENESS_SESSION_DEADLINE", "-5s"},
		"garbage timeout":   {"SIMILARITY_TIMEOUT", "soon"},
		"bad bool":          {"LIVENESS_SOCKET_COMPRESSION", "maybe"},
		"port with space":   {"PORT", "80 80"},
		"non numeric redis": {"REDIS_DB", "one"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestAIConfigEnabled(t *testing.T) {
	require.True(t, AIConfig{Model: "ep-1", APIKey: "k"}.Enabled())
	require.True(t, AIConfig{Model: "ep-1", AccessKey: "a", SecretKey: "s"}.Enabled())
	require.False(t, AIConfig{APIKey: "k"}.Enabled())
	require.False(t, AIConfig{Model: "ep-1", AccessKey: "a"}.Enabled())
}
