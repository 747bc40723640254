package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Deliverer 将信封投递给单个收件人
type Deliverer interface {
	Deliver(ctx context.Context, env Envelope) error
}

// DelivererFunc 函数适配器
type DelivererFunc func(ctx context.Context, env Envelope) error

// Deliver 实现 Deliverer
func (f DelivererFunc) Deliver(ctx context.Context, env Envelope) error { return f(ctx, env) }

var (
	// ErrUnknownRecipient 收件人未注册信箱
	ErrUnknownRecipient = errors.New("recipient has no mailbox")
	// ErrMailboxFull 信箱已满，稍后重试
	ErrMailboxFull = errors.New("recipient mailbox is full")
	// ErrHubClosed Hub 已关闭
	ErrHubClosed = errors.New("hub is closed")
)

// Hub 进程内信箱，每个 Agent 一个带缓冲的通道
type Hub struct {
	mu        sync.RWMutex
	mailboxes map[string]chan Envelope
	size      int
	closed    bool
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewHub 创建进程内信箱，size 为每个信箱的缓冲大小
func NewHub(size int, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if size <= 0 {
		size = 100
	}
	return &Hub{
		mailboxes: make(map[string]chan Envelope),
		size:      size,
		logger:    logger.With(zap.String("component", "broadcast_hub")),
	}
}

// Register 为 Agent 创建信箱（已存在则复用）
func (h *Hub) Register(agentID string) <-chan Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.mailboxes[agentID]; ok {
		return ch
	}
	ch := make(chan Envelope, h.size)
	h.mailboxes[agentID] = ch
	return ch
}

// Unregister 移除信箱并关闭通道
func (h *Hub) Unregister(agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.mailboxes[agentID]; ok {
		delete(h.mailboxes, agentID)
		close(ch)
	}
}

// Deliver 实现 Deliverer，非阻塞写入信箱
func (h *Hub) Deliver(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}
	ch, ok := h.mailboxes[env.Recipient]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, env.Recipient)
	}
	select {
	case ch <- env:
		return nil
	default:
		h.logger.Debug("mailbox full",
			zap.String("recipient", env.Recipient),
			zap.String("message_id", env.MessageID),
		)
		return fmt.Errorf("%w: %s", ErrMailboxFull, env.Recipient)
	}
}

// Receive 阻塞等待 Agent 的下一条消息
func (h *Hub) Receive(ctx context.Context, agentID string) (Envelope, error) {
	h.mu.RLock()
	ch, ok := h.mailboxes[agentID]
	h.mu.RUnlock()
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, agentID)
	}
	select {
	case env, open := <-ch:
		if !open {
			return Envelope{}, ErrHubClosed
		}
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// Close 关闭全部信箱
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.closed = true
		for id, ch := range h.mailboxes {
			close(ch)
			delete(h.mailboxes, id)
		}
	})
	return nil
}
