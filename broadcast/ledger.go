package broadcast

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/collabengine/types"
)

// LedgerRecord 一次广播的投递台账
type LedgerRecord struct {
	BroadcastID string                      `json:"broadcast_id"`
	MessageID   string                      `json:"message_id"`
	SenderID    string                      `json:"sender_id"`
	Recipients  []string                    `json:"recipients"`
	AckRequired bool                        `json:"ack_required"`
	ExpiresAt   time.Time                   `json:"expires_at,omitempty"`
	CreatedAt   time.Time                   `json:"created_at"`
	Finished    bool                        `json:"finished"`
	Outcomes    map[string]RecipientOutcome `json:"outcomes"`
}

// Ledger 投递台账存储
type Ledger interface {
	// Begin 登记一次广播，所有收件人初始为 pending
	Begin(ctx context.Context, rec LedgerRecord) error
	// Update 覆盖某个收件人的投递结果
	Update(ctx context.Context, messageID string, outcome RecipientOutcome) error
	// Finish 标记广播结束
	Finish(ctx context.Context, messageID string) error
	// Get 查询台账，不存在时返回 NOT_FOUND
	Get(ctx context.Context, messageID string) (*LedgerRecord, error)
	// Pending 返回尚未结束的广播消息 ID，按登记时间排序
	Pending(ctx context.Context) ([]string, error)
}

func notFound(messageID string) error {
	return types.Errorf(types.ErrNotFound, "no broadcast recorded for message %q", messageID)
}

// MemoryLedger 内存台账
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*LedgerRecord
}

// NewMemoryLedger 创建内存台账
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*LedgerRecord)}
}

// Begin 实现 Ledger
func (l *MemoryLedger) Begin(ctx context.Context, rec LedgerRecord) error {
	rec.Recipients = append([]string(nil), rec.Recipients...)
	rec.Outcomes = make(map[string]RecipientOutcome, len(rec.Recipients))
	for _, r := range rec.Recipients {
		rec.Outcomes[r] = RecipientOutcome{Recipient: r, Status: StatusPending}
	}
	l.mu.Lock()
	l.records[rec.MessageID] = &rec
	l.mu.Unlock()
	return nil
}

// Update 实现 Ledger
func (l *MemoryLedger) Update(ctx context.Context, messageID string, outcome RecipientOutcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[messageID]
	if !ok {
		return notFound(messageID)
	}
	rec.Outcomes[outcome.Recipient] = outcome
	return nil
}

// Finish 实现 Ledger
func (l *MemoryLedger) Finish(ctx context.Context, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[messageID]
	if !ok {
		return notFound(messageID)
	}
	rec.Finished = true
	return nil
}

// Get 实现 Ledger
func (l *MemoryLedger) Get(ctx context.Context, messageID string) (*LedgerRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[messageID]
	if !ok {
		return nil, notFound(messageID)
	}
	cp := *rec
	cp.Recipients = append([]string(nil), rec.Recipients...)
	cp.Outcomes = make(map[string]RecipientOutcome, len(rec.Outcomes))
	for k, v := range rec.Outcomes {
		cp.Outcomes[k] = v
	}
	return &cp, nil
}

// Pending 实现 Ledger
func (l *MemoryLedger) Pending(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	var recs []*LedgerRecord
	for _, rec := range l.records {
		if !rec.Finished {
			recs = append(recs, rec)
		}
	}
	l.mu.RUnlock()
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.Before(recs[j].CreatedAt) })
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.MessageID)
	}
	return ids, nil
}
