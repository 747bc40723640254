package handlers

import (
	"net/http"
	"strings"

	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/types"
	"go.uber.org/zap"
)

// SessionObserver 观察 Agent 会话的打开与关闭
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
}

// =============================================================================
// 🔌 Agent 会话 Handler
// =============================================================================

// SessionHandler 将 Agent 的 WebSocket 会话接入进程内 Hub
type SessionHandler struct {
	bridge   *broadcast.SessionBridge
	observer SessionObserver
	logger   *zap.Logger
}

// NewSessionHandler 创建会话处理器，observer 可为 nil
func NewSessionHandler(hub *broadcast.Hub, acks broadcast.AckHandler, observer SessionObserver, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		bridge:   broadcast.NewSessionBridge(hub, acks, logger),
		observer: observer,
		logger:   logger.With(zap.String("handler", "session")),
	}
}

// Register 挂载会话路由
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/agents/{id}/session", h.HandleSession)
}

// HandleSession 升级为 WebSocket 并服务到连接关闭
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	agentID := strings.TrimSpace(r.PathValue("id"))
	if agentID == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidInput, "agent id is required"), h.logger)
		return
	}

	if h.observer != nil {
		h.observer.SessionOpened()
		defer h.observer.SessionClosed()
	}
	// 升级后响应已被接管，错误只能记录
	if err := h.bridge.Accept(w, r, agentID); err != nil {
		h.logger.Warn("agent session ended with error",
			zap.String("agent_id", agentID),
			zap.Error(err),
		)
	}
}
