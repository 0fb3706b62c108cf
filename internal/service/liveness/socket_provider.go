package liveness

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/liveness/backend/internal/logger"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// ErrTransport wraps every failure talking to the external detector.
var ErrTransport = errors.New("provider transport error")

// Dialer opens the detector connection; net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SocketProvider 通过本地 unix socket 调用外部检测器。
// 连接在第一帧时建立，会话期间复用，且不在会话之间共享。
type SocketProvider struct {
	path        string
	compression CompressionMethod
	timeout     time.Duration
	dialer      Dialer

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool
}

// NewSocketProvider creates a provider for the detector listening at path.
func NewSocketProvider(path string, compress bool, timeout time.Duration) *SocketProvider {
	compression := NoCompression
	if compress {
		compression = GzipCompression
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SocketProvider{
		path:        path,
		compression: compression,
		timeout:     timeout,
		dialer:      &net.Dialer{},
	}
}

// Evaluate sends one frame and waits for the detector's judgment.
func (p *SocketProvider) Evaluate(ctx context.Context, frame []byte, gesture liveness.Gesture) (liveness.Judgment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return liveness.Judgment{}, fmt.Errorf("%w: provider closed", ErrTransport)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureConn(callCtx); err != nil {
		return liveness.Judgment{}, err
	}

	req, err := NewFrameRequest(frame, gesture, p.compression)
	if err != nil {
		return liveness.Judgment{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	data, err := EncodeMessage(req)
	if err != nil {
		return liveness.Judgment{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	conn := p.conn
	deadline, _ := callCtx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		p.dropConn()
		return liveness.Judgment{}, fmt.Errorf("%w: set deadline: %v", ErrTransport, err)
	}

	// ctx 取消时立即打断阻塞的读写；回调在独立协程中运行，只能使用局部的 conn
	stop := context.AfterFunc(callCtx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := conn.Write(data); err != nil {
		p.dropConn()
		return liveness.Judgment{}, fmt.Errorf("%w: write frame: %v", ErrTransport, err)
	}

	resp, err := DecodeMessage(p.reader)
	if err != nil {
		p.dropConn()
		return liveness.Judgment{}, fmt.Errorf("%w: read judgment: %v", ErrTransport, err)
	}

	j, err := resp.Judgment()
	if err != nil {
		return liveness.Judgment{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return j, nil
}

func (p *SocketProvider) ensureConn(ctx context.Context) error {
	if p.conn != nil {
		return nil
	}
	conn, err := p.dialer.DialContext(ctx, "unix", p.path)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, p.path, err)
	}
	logger.Named("liveness").Debug("detector connected", zap.String("path", p.path))
	p.conn = conn
	p.reader = bufio.NewReader(conn)
	return nil
}

// dropConn 出错后丢弃连接，流上可能残留半条消息
func (p *SocketProvider) dropConn() {
	if p.conn != nil {
		p.conn.Close()
	}
	p.conn = nil
	p.reader = nil
}

// Close releases the detector connection. Safe to call more than once.
func (p *SocketProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	p.reader = nil
	return err
}
