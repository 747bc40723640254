package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/collabengine/types"
)

// Kind 记录类别
type Kind string

const (
	KindCollaborationPlan  Kind = "collaboration_plan"
	KindConflictResolution Kind = "conflict_resolution"
	KindCoordinationPlan   Kind = "coordination_plan"
	KindBroadcastResult    Kind = "broadcast_result"
	KindNegotiationResult  Kind = "negotiation_result"
)

// Kinds 返回全部已知类别
func Kinds() []Kind {
	return []Kind{
		KindCollaborationPlan,
		KindConflictResolution,
		KindCoordinationPlan,
		KindBroadcastResult,
		KindNegotiationResult,
	}
}

// Valid 判断类别是否已知
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ErrStoreClosed 存储已关闭
var ErrStoreClosed = errors.New("record store is closed")

// Record 一次操作的结果快照
type Record struct {
	Kind      Kind            `json:"kind"`
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRecord 将结果编码为记录
func NewRecord(kind Kind, id, status string, result any) (Record, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s %s: %w", kind, id, err)
	}
	return Record{Kind: kind, ID: id, Status: status, Payload: payload, CreatedAt: time.Now().UTC()}, nil
}

// Decode 将 Payload 解码到 v
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Payload, v)
}

// Store 结果记录存储
type Store interface {
	// Save 写入新记录，(Kind, ID) 已存在时返回 ALREADY_EXISTS
	Save(ctx context.Context, rec Record) error
	// Get 读取记录，不存在时返回 NOT_FOUND
	Get(ctx context.Context, kind Kind, id string) (Record, error)
	// List 按创建时间倒序列出某类记录，limit <= 0 表示不限
	List(ctx context.Context, kind Kind, limit int) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}

func validate(rec Record) error {
	if !rec.Kind.Valid() {
		return types.Errorf(types.ErrInvalidInput, "unknown record kind %q", rec.Kind)
	}
	if rec.ID == "" {
		return types.NewError(types.ErrInvalidInput, "record id is required")
	}
	if !json.Valid(rec.Payload) {
		return types.Errorf(types.ErrInvalidInput, "record %s/%s payload is not valid JSON", rec.Kind, rec.ID)
	}
	return nil
}

func notFound(kind Kind, id string) error {
	return types.Errorf(types.ErrNotFound, "%s %q not found", kind, id)
}

func duplicate(kind Kind, id string) error {
	return types.Errorf(types.ErrAlreadyExists, "%s %q already recorded", kind, id)
}
