package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// SessionBridge 将 Agent 的 WebSocket 会话接到 Hub 信箱：
// 信封以 JSON 文本帧下发，Agent 回传 AckFrame。
type SessionBridge struct {
	hub          *Hub
	acks         AckHandler
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewSessionBridge 创建会话桥
func NewSessionBridge(hub *Hub, acks AckHandler, logger *zap.Logger) *SessionBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionBridge{
		hub:          hub,
		acks:         acks,
		writeTimeout: 10 * time.Second,
		logger:       logger.With(zap.String("component", "session_bridge")),
	}
}

// Accept 升级 HTTP 连接并服务该 Agent 的会话，直到任意一端断开
func (b *SessionBridge) Accept(w http.ResponseWriter, r *http.Request, agentID string) error {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket accept: %w", err)
	}
	return b.Serve(r.Context(), conn, agentID)
}

// Serve 在已建立的连接上转发信箱消息并处理回执
func (b *SessionBridge) Serve(ctx context.Context, conn *websocket.Conn, agentID string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.hub.Register(agentID)
	log := b.logger.With(zap.String("agent_id", agentID))
	log.Info("agent session opened")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		b.readAcks(ctx, conn, log)
	}()

	var serveErr error
	for {
		env, err := b.hub.Receive(ctx, agentID)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				serveErr = err
			}
			break
		}
		if err := b.write(ctx, conn, env); err != nil {
			serveErr = err
			break
		}
	}
	cancel()
	wg.Wait()

	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	log.Info("agent session closed", zap.Error(serveErr))
	return serveErr
}

func (b *SessionBridge) write(ctx context.Context, conn *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, b.writeTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (b *SessionBridge) readAcks(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		var frame AckFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn("malformed ack frame", zap.Error(err))
			continue
		}
		if err := frame.Apply(ctx, b.acks); err != nil {
			log.Warn("ack rejected",
				zap.String("message_id", frame.MessageID),
				zap.Error(err),
			)
		}
	}
}
