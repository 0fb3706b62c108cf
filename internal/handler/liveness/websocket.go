package liveness

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

const (
	readIdleTimeout = 60 * time.Second
	writeTimeout    = 10 * time.Second
	pingInterval    = 54 * time.Second
	minTimerRearm   = 10 * time.Millisecond
)

// handleWebSocket 每个连接对应一个活体会话：读协程只负责收帧，
// 帧处理、超时判定与写出都在本协程中顺序完成。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := h.selection.NewSession(time.Now())
	h.registry.Add(session, cancel)
	defer h.registry.Remove(session.ID())

	log := h.log.With(zap.String("session_id", session.ID()))
	log.Info("liveness session opened",
		zap.String("provider", h.selection.ProviderName()),
		zap.Time("deadline", session.Deadline()))

	conn.SetReadLimit(int64(h.selection.MaxFrameBytes()) * 2)
	conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	if err := writeJSON(conn, session.Intro()); err != nil {
		log.Warn("write intro failed", zap.Error(err))
		return
	}

	chunks := make(chan []byte)
	readErr := make(chan error, 1)
	go readLoop(ctx, cancel, conn, chunks, readErr)

	timer := time.NewTimer(time.Until(session.Deadline()))
	defer timer.Stop()

	for {
		var out []liveness.Verdict
		select {
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("read error", zap.Error(err))
			}
			log.Info("liveness session closed by client", zap.String("state", string(session.State())))
			return
		case <-ctx.Done():
			return
		case chunk := <-chunks:
			out = session.Push(ctx, chunk)
		case <-timer.C:
			v, ok := session.Expire()
			if !ok {
				// 时钟回拨等情况下定时器早于截止时间触发，重新计时
				timer.Reset(max(time.Until(session.Deadline()), minTimerRearm))
				continue
			}
			out = append(out, v)
		}

		for _, v := range out {
			if v.Final {
				h.persist(v)
			}
			if err := writeJSON(conn, v); err != nil {
				log.Warn("write verdict failed", zap.Error(err))
				return
			}
		}

		if session.State().Terminal() {
			closeNormally(conn, session.Snapshot().Reason)
			return
		}
	}
}

// readLoop 读取客户端消息：二进制消息是媒体分片，文本消息按 base64 解码，失败则按原始字节处理。
// 连接断开时立即取消会话，打断正在进行的 provider 调用。
func readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, chunks chan<- []byte, readErr chan<- error) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			cancel()
			return
		}
		conn.SetReadDeadline(time.Now().Add(readIdleTimeout))

		if msgType == websocket.TextMessage {
			data = decodeTextFrame(data)
		}

		select {
		case chunks <- data:
		case <-ctx.Done():
			return
		}
	}
}

func decodeTextFrame(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return data
	}
	return decoded
}

func writeJSON(conn *websocket.Conn, payload any) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(payload)
}

// closeNormally 在会话进入终态后发送关闭帧，之后不再处理任何帧
func closeNormally(conn *websocket.Conn, reason string) {
	// close reason 最长 123 字节
	if len(reason) > 123 {
		reason = reason[:123]
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// pingLoop 定期发送ping消息；WriteControl 可与其它写操作并发调用
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
