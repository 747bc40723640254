package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/collabengine/internal/database"
	"github.com/BaSui01/collabengine/internal/retry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// recordRow collab_records 表的行
type recordRow struct {
	Kind      string    `gorm:"size:64;primaryKey;index:idx_collab_records_kind_created,priority:1"`
	ID        string    `gorm:"size:128;primaryKey"`
	Status    string    `gorm:"size:64;not null;default:'';index:idx_collab_records_status"`
	Payload   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_collab_records_kind_created,priority:2"`
}

func (recordRow) TableName() string {
	return "collab_records"
}

// saveRetryPolicy 写入遇到死锁、序列化失败或断连时的重试策略
func saveRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:   2,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// GormStore 基于 GORM 的记录存储，写入走连接池的重试事务
type GormStore struct {
	pool     *database.PoolManager
	db       *gorm.DB
	txPolicy retry.Policy
	logger   *zap.Logger
}

// NewGormStore 创建 GORM 存储；autoMigrate 为 true 时自动建表
func NewGormStore(pool *database.PoolManager, autoMigrate bool, logger *zap.Logger) (*GormStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db := pool.DB()
	s := &GormStore{
		pool:     pool,
		db:       db,
		txPolicy: saveRetryPolicy(),
		logger:   logger.With(zap.String("component", "record_store")),
	}

	if autoMigrate {
		if err := db.AutoMigrate(&recordRow{}); err != nil {
			return nil, fmt.Errorf("auto migrate records: %w", err)
		}
		s.logger.Info("record table migrated")
	}
	return s, nil
}

// Save 写入记录
func (s *GormStore) Save(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	row := recordRow{
		Kind:      string(rec.Kind),
		ID:        rec.ID,
		Status:    rec.Status,
		Payload:   string(rec.Payload),
		CreatedAt: rec.CreatedAt,
	}

	return s.pool.WithTransactionRetry(ctx, s.txPolicy, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&recordRow{}).
			Where("kind = ? AND id = ?", row.Kind, row.ID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check record: %w", err)
		}
		if count > 0 {
			return duplicate(rec.Kind, rec.ID)
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
		return nil
	})
}

// Get 读取记录
func (s *GormStore) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).
		Where("kind = ? AND id = ?", string(kind), id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, notFound(kind, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	return row.record(), nil
}

// List 列出某类记录
func (s *GormStore) List(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	q := s.db.WithContext(ctx).
		Where("kind = ?", string(kind)).
		Order("created_at DESC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []recordRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// Ping 健康检查
func (s *GormStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close 由连接池管理器负责关闭底层连接
func (s *GormStore) Close() error {
	return nil
}

func (r recordRow) record() Record {
	return Record{
		Kind:      Kind(r.Kind),
		ID:        r.ID,
		Status:    r.Status,
		Payload:   []byte(r.Payload),
		CreatedAt: r.CreatedAt,
	}
}
