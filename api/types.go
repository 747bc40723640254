package api

import (
	"github.com/BaSui01/collabengine/collaboration"
	"github.com/BaSui01/collabengine/conflict"
)

// =============================================================================
// 请求类型
// =============================================================================

// CollaborationRequest 协作规划请求
type CollaborationRequest struct {
	// 参与协作的 Agent ID，不可重复
	AgentIDs []string `json:"agent_ids"`
	// 协作目标
	Goal collaboration.CollaborationGoal `json:"goal"`
}

// AckRequest 广播确认请求
type AckRequest struct {
	// 确认的收件人
	Recipient string `json:"recipient"`
	// 为 true 时记录已读回执而不是确认
	ReadReceipt bool `json:"read_receipt,omitempty"`
}

// ConflictOutcomeRequest 冲突解决效果反馈
type ConflictOutcomeRequest struct {
	ConflictType conflict.Type `json:"conflict_type"`
	Success      bool          `json:"success"`
}

// =============================================================================
// 响应类型
// =============================================================================

// AckResponse 确认结果
type AckResponse struct {
	MessageID string `json:"message_id"`
	Recipient string `json:"recipient"`
	Kind      string `json:"kind"` // "ack" | "read"
}
