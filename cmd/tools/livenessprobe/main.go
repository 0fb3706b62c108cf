package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/logger"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
	"github.com/zhouzirui/liveness/backend/internal/model/similarity"
	livenessService "github.com/zhouzirui/liveness/backend/internal/service/liveness"
	similarityService "github.com/zhouzirui/liveness/backend/internal/service/similarity"
)

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "", "测试模式: stream 或 similarity")
	addr := flag.String("addr", "http://localhost:8080", "后端地址")
	frames := flag.String("frames", "", "stream 模式: 逗号分隔的图片文件，按顺序作为帧发送")
	interval := flag.Duration("interval", 300*time.Millisecond, "stream 模式: 帧间隔")
	first := flag.String("first", "", "similarity 模式: 第一张图片 (文件路径或 http(s) URL)")
	second := flag.String("second", "", "similarity 模式: 第二张图片 (文件路径或 http(s) URL)")
	timeout := flag.Duration("timeout", 90*time.Second, "整体超时时间")
	level := flag.String("log-level", "info", "日志级别")

	flag.Parse()

	if err := logger.Init(*level, "console"); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Named("probe")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch *mode {
	case "stream":
		err = runStream(ctx, log, *addr, splitList(*frames), *interval)
	case "similarity":
		err = runSimilarity(ctx, log, *addr, *first, *second)
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=stream 或 -mode=similarity 指定测试模式")
	}
	if err != nil {
		log.Fatal("probe failed", zap.Error(err))
	}
}

// runStream 把图片逐帧推送到 /ws/liveness 并打印每条判定，直到收到最终结果。
func runStream(ctx context.Context, log *zap.Logger, addr string, files []string, interval time.Duration) error {
	if len(files) == 0 {
		return fmt.Errorf("stream 模式需要通过 -frames 指定至少一个图片文件")
	}

	wsURL, err := websocketURL(addr)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	var intro liveness.Verdict
	if err := conn.ReadJSON(&intro); err != nil {
		return fmt.Errorf("read session intro: %w", err)
	}
	if intro.Type != livenessService.IntroType {
		return fmt.Errorf("unexpected first message type %q", intro.Type)
	}
	log.Info("session started", zap.String("session_id", intro.SessionID), zap.String("deadline", intro.Deadline))
	for i, instruction := range intro.Instructions {
		log.Info("gesture", zap.Int("step", i+1), zap.String("instruction", instruction))
	}

	done := make(chan error, 1)
	go func() {
		for {
			var v liveness.Verdict
			if err := conn.ReadJSON(&v); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = nil
				}
				done <- err
				return
			}
			log.Info("verdict",
				zap.Bool("is_live", v.IsLive),
				zap.Float64("confidence", v.Confidence),
				zap.String("state", string(v.State)),
				zap.String("reason", v.Reason),
				zap.String("next", v.Instruction),
				zap.Bool("final", v.Final))
			if v.Final {
				done <- nil
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case <-ticker.C:
		}

		// 帧用完后循环发送最后几张，直到会话结束
		path := files[i%len(files)]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read frame %s: %w", path, err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return fmt.Errorf("send frame %s: %w", path, err)
		}
		log.Debug("frame sent", zap.String("file", path), zap.Int("bytes", len(data)))
	}
}

// runSimilarity 提交一对图片到 /api/images/similarity 并打印各策略结果。
func runSimilarity(ctx context.Context, log *zap.Logger, addr, first, second string) error {
	if first == "" || second == "" {
		return fmt.Errorf("similarity 模式需要 -first 与 -second")
	}

	var req similarity.CompareRequest
	if isURL(first) && isURL(second) {
		req.FirstImageURL, req.SecondImageURL = first, second
	} else {
		a, err := os.ReadFile(first)
		if err != nil {
			return fmt.Errorf("read first image: %w", err)
		}
		b, err := os.ReadFile(second)
		if err != nil {
			return fmt.Errorf("read second image: %w", err)
		}
		req.FirstImage = base64.StdEncoding.EncodeToString(a)
		req.SecondImage = base64.StdEncoding.EncodeToString(b)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(addr, "/")+"/api/images/similarity", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := similarityService.NewHTTPClient(time.Minute)
	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var eval similarity.Evaluation
	if err := json.Unmarshal(raw, &eval); err != nil {
		return fmt.Errorf("decode evaluation: %w", err)
	}
	log.Info("similarity",
		zap.Float64("similarity", eval.Similarity),
		zap.String("status", string(eval.Status)))
	log.Info("embeddings", zap.Any("result", eval.Embeddings))
	log.Info("model", zap.Any("result", eval.Model))
	log.Info("face_api", zap.Any("result", eval.FaceAPI))
	return nil
}

func websocketURL(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("invalid -addr: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/liveness"
	return u.String(), nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
