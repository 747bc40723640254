package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/BaSui01/collabengine/api"
	"github.com/BaSui01/collabengine/broadcast"
	"github.com/BaSui01/collabengine/collaboration"
	"github.com/BaSui01/collabengine/conflict"
	"github.com/BaSui01/collabengine/coordination"
	"github.com/BaSui01/collabengine/metrics"
	"github.com/BaSui01/collabengine/negotiation"
	"github.com/BaSui01/collabengine/store"
	"github.com/BaSui01/collabengine/types"
	"go.uber.org/zap"
)

// defaultListLimit 记录列表的默认条数
const defaultListLimit = 50

// maxListLimit 记录列表的最大条数
const maxListLimit = 500

// Engine HTTP 层依赖的引擎操作
type Engine interface {
	FacilitateCollaboration(ctx context.Context, agentIDs []string, goal collaboration.CollaborationGoal) (*collaboration.CollaborationPlan, error)
	ResolveAgentConflicts(ctx context.Context, c conflict.AgentConflict) (*conflict.Resolution, error)
	ReportConflictOutcome(conflictType conflict.Type, success bool) error
	CoordinateComplexTasks(ctx context.Context, task coordination.ComplexTask) (*coordination.Plan, error)
	BroadcastMessage(ctx context.Context, msg broadcast.SystemMessage) (*broadcast.Result, error)
	Acknowledge(ctx context.Context, messageID, recipient string) error
	RecordReadReceipt(ctx context.Context, messageID, recipient string) error
	Ledger() broadcast.Ledger
	FacilitateNegotiation(ctx context.Context, neg negotiation.AgentNegotiation) (*negotiation.Result, error)
	GetMetrics() metrics.Snapshot
	Record(ctx context.Context, kind store.Kind, id string) (store.Record, error)
	Records(ctx context.Context, kind store.Kind, limit int) ([]store.Record, error)
	Registry() *collaboration.Registry
}

// =============================================================================
// 🤝 引擎操作 Handler
// =============================================================================

// EngineHandler 引擎操作处理器
type EngineHandler struct {
	engine Engine
	logger *zap.Logger
}

// NewEngineHandler 创建引擎操作处理器
func NewEngineHandler(engine Engine, logger *zap.Logger) *EngineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineHandler{
		engine: engine,
		logger: logger.With(zap.String("handler", "engine")),
	}
}

// Register 挂载 /api/v1 路由
func (h *EngineHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/agents", h.HandleRegisterAgent)
	mux.HandleFunc("GET /api/v1/agents", h.HandleListAgents)
	mux.HandleFunc("POST /api/v1/collaborations", h.HandleCollaboration)
	mux.HandleFunc("POST /api/v1/conflicts", h.HandleConflict)
	mux.HandleFunc("POST /api/v1/conflicts/outcomes", h.HandleConflictOutcome)
	mux.HandleFunc("POST /api/v1/tasks", h.HandleCoordination)
	mux.HandleFunc("POST /api/v1/broadcasts", h.HandleBroadcast)
	mux.HandleFunc("GET /api/v1/broadcasts/{id}", h.HandleBroadcastLedger)
	mux.HandleFunc("POST /api/v1/broadcasts/{id}/ack", h.HandleAck)
	mux.HandleFunc("POST /api/v1/negotiations", h.HandleNegotiation)
	mux.HandleFunc("GET /api/v1/metrics", h.HandleMetrics)
	mux.HandleFunc("GET /api/v1/records/{kind}", h.HandleListRecords)
	mux.HandleFunc("GET /api/v1/records/{kind}/{id}", h.HandleGetRecord)
}

// HandleRegisterAgent 注册 Agent 能力声明
func (h *EngineHandler) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var profile collaboration.AgentProfile
	if !h.decode(w, r, &profile) {
		return
	}
	if err := h.engine.Registry().Register(profile); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidInput, err.Error()), h.logger)
		return
	}
	stored, _ := h.engine.Registry().Lookup(profile.ID)
	WriteSuccessStatus(w, r, http.StatusCreated, stored)
}

// HandleListAgents 列出已注册 Agent
func (h *EngineHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.engine.Registry().List())
}

// HandleCollaboration 协作规划
func (h *EngineHandler) HandleCollaboration(w http.ResponseWriter, r *http.Request) {
	var req api.CollaborationRequest
	if !h.decode(w, r, &req) {
		return
	}
	plan, err := h.engine.FacilitateCollaboration(r.Context(), req.AgentIDs, req.Goal)
	h.respond(w, r, plan, err)
}

// HandleConflict 冲突解决
func (h *EngineHandler) HandleConflict(w http.ResponseWriter, r *http.Request) {
	var req conflict.AgentConflict
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.ResolveAgentConflicts(r.Context(), req)
	h.respond(w, r, res, err)
}

// HandleConflictOutcome 反馈冲突解决效果
func (h *EngineHandler) HandleConflictOutcome(w http.ResponseWriter, r *http.Request) {
	var req api.ConflictOutcomeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.ReportConflictOutcome(req.ConflictType, req.Success); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, req)
}

// HandleCoordination 复杂任务协调
func (h *EngineHandler) HandleCoordination(w http.ResponseWriter, r *http.Request) {
	var req coordination.ComplexTask
	if !h.decode(w, r, &req) {
		return
	}
	plan, err := h.engine.CoordinateComplexTasks(r.Context(), req)
	h.respond(w, r, plan, err)
}

// HandleBroadcast 系统广播
func (h *EngineHandler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcast.SystemMessage
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.BroadcastMessage(r.Context(), req)
	h.respond(w, r, res, err)
}

// HandleBroadcastLedger 查询广播投递台账
func (h *EngineHandler) HandleBroadcastLedger(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Ledger().Get(r.Context(), r.PathValue("id"))
	h.respond(w, r, rec, err)
}

// HandleAck 广播确认或已读回执
func (h *EngineHandler) HandleAck(w http.ResponseWriter, r *http.Request) {
	var req api.AckRequest
	if !h.decode(w, r, &req) {
		return
	}
	messageID := r.PathValue("id")
	if strings.TrimSpace(req.Recipient) == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidInput, "recipient is required"), h.logger)
		return
	}

	kind := string(broadcast.AckKindAcknowledge)
	var err error
	if req.ReadReceipt {
		kind = string(broadcast.AckKindRead)
		err = h.engine.RecordReadReceipt(r.Context(), messageID, req.Recipient)
	} else {
		err = h.engine.Acknowledge(r.Context(), messageID, req.Recipient)
	}
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, api.AckResponse{MessageID: messageID, Recipient: req.Recipient, Kind: kind})
}

// HandleNegotiation 多轮谈判
func (h *EngineHandler) HandleNegotiation(w http.ResponseWriter, r *http.Request) {
	var req negotiation.AgentNegotiation
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.engine.FacilitateNegotiation(r.Context(), req)
	h.respond(w, r, res, err)
}

// HandleMetrics 指标快照
func (h *EngineHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.engine.GetMetrics())
}

// HandleListRecords 按类别列出结果，?limit= 控制条数
func (h *EngineHandler) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, r, types.Errorf(types.ErrInvalidInput, "invalid limit %q", raw), h.logger)
			return
		}
		limit = min(n, maxListLimit)
	}
	recs, err := h.engine.Records(r.Context(), store.Kind(r.PathValue("kind")), limit)
	h.respond(w, r, recs, err)
}

// HandleGetRecord 查询单个结果
func (h *EngineHandler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Record(r.Context(), store.Kind(r.PathValue("kind")), r.PathValue("id"))
	h.respond(w, r, rec, err)
}

func (h *EngineHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !ValidateContentType(w, r, h.logger) {
		return false
	}
	return DecodeJSONBody(w, r, dst, h.logger) == nil
}

func (h *EngineHandler) respond(w http.ResponseWriter, r *http.Request, data any, err error) {
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, data)
}
