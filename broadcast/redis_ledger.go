package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldMeta       = "meta"
	recipientPrefix = "r:"
)

// RedisLedger 基于 Redis Hash 的投递台账，适用于多实例部署。
// 每条广播一个 hash：meta 字段存元数据，r:<agent> 字段存收件人结果；
// 未结束的广播记录在 pending 有序集合中。
type RedisLedger struct {
	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
}

// NewRedisLedger 创建 Redis 台账，retention 为广播结束后的保留时间
func NewRedisLedger(client redis.UniversalClient, keyPrefix string, retention time.Duration) *RedisLedger {
	if keyPrefix == "" {
		keyPrefix = "collab:"
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisLedger{client: client, keyPrefix: keyPrefix + "broadcast:", retention: retention}
}

func (l *RedisLedger) recordKey(messageID string) string { return l.keyPrefix + "msg:" + messageID }
func (l *RedisLedger) pendingKey() string { return l.keyPrefix + "pending" }

// Ping 检查 Redis 连通性
func (l *RedisLedger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Begin 实现 Ledger
func (l *RedisLedger) Begin(ctx context.Context, rec LedgerRecord) error {
	rec.Outcomes = nil
	meta, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}

	values := make([]any, 0, 2+2*len(rec.Recipients))
	values = append(values, fieldMeta, meta)
	for _, r := range rec.Recipients {
		data, err := json.Marshal(RecipientOutcome{Recipient: r, Status: StatusPending})
		if err != nil {
			return fmt.Errorf("marshal outcome: %w", err)
		}
		values = append(values, recipientPrefix+r, data)
	}

	key := l.recordKey(rec.MessageID)
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, l.ttl(rec))
	pipe.ZAdd(ctx, l.pendingKey(), redis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.MessageID})
	_, err = pipe.Exec(ctx)
	return err
}

func (l *RedisLedger) ttl(rec LedgerRecord) time.Duration {
	if rec.ExpiresAt.IsZero() {
		return l.retention
	}
	if d := time.Until(rec.ExpiresAt) + l.retention; d > l.retention {
		return d
	}
	return l.retention
}

// Update 实现 Ledger
func (l *RedisLedger) Update(ctx context.Context, messageID string, outcome RecipientOutcome) error {
	key := l.recordKey(messageID)
	exists, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return notFound(messageID)
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	return l.client.HSet(ctx, key, recipientPrefix+outcome.Recipient, data).Err()
}

// Finish 实现 Ledger
func (l *RedisLedger) Finish(ctx context.Context, messageID string) error {
	rec, err := l.Get(ctx, messageID)
	if err != nil {
		return err
	}
	rec.Finished = true
	rec.Outcomes = nil
	meta, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}
	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, l.recordKey(messageID), fieldMeta, meta)
	pipe.ZRem(ctx, l.pendingKey(), messageID)
	_, err = pipe.Exec(ctx)
	return err
}

// Get 实现 Ledger
func (l *RedisLedger) Get(ctx context.Context, messageID string) (*LedgerRecord, error) {
	fields, err := l.client.HGetAll(ctx, l.recordKey(messageID)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && len(fields) == 0) {
		return nil, notFound(messageID)
	}
	if err != nil {
		return nil, err
	}

	var rec LedgerRecord
	if err := json.Unmarshal([]byte(fields[fieldMeta]), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal ledger record: %w", err)
	}
	rec.Outcomes = make(map[string]RecipientOutcome, len(rec.Recipients))
	for field, value := range fields {
		if !strings.HasPrefix(field, recipientPrefix) {
			continue
		}
		var o RecipientOutcome
		if err := json.Unmarshal([]byte(value), &o); err != nil {
			return nil, fmt.Errorf("unmarshal outcome %s: %w", field, err)
		}
		rec.Outcomes[o.Recipient] = o
	}
	return &rec, nil
}

// Pending 实现 Ledger
func (l *RedisLedger) Pending(ctx context.Context) ([]string, error) {
	return l.client.ZRange(ctx, l.pendingKey(), 0, -1).Result()
}
