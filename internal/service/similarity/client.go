package similarity

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/logger"
)

// NewHTTPClient 创建带重试的 HTTP 客户端，单次请求受 timeout 约束。
func NewHTTPClient(timeout time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = zapLeveled{logger.Named("http").Sugar()}
	return client
}

// zapLeveled adapts zap to retryablehttp.LeveledLogger.
type zapLeveled struct {
	l *zap.SugaredLogger
}

func (z zapLeveled) Error(msg string, keysAndValues ...interface{}) {
	z.l.Errorw(msg, keysAndValues...)
}

func (z zapLeveled) Info(msg string, keysAndValues ...interface{}) {
	z.l.Debugw(msg, keysAndValues...)
}

func (z zapLeveled) Debug(msg string, keysAndValues ...interface{}) {
	z.l.Debugw(msg, keysAndValues...)
}

func (z zapLeveled) Warn(msg string, keysAndValues ...interface{}) {
	z.l.Warnw(msg, keysAndValues...)
}
