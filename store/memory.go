package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

type recordKey struct {
	kind Kind
	id   string
}

// MemoryStore 进程内记录存储，重启后数据丢失
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
	closed  bool
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

// Save 写入记录
func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	if err := validate(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	key := recordKey{rec.Kind, rec.ID}
	if _, ok := s.records[key]; ok {
		return duplicate(rec.Kind, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records[key] = clone(rec)
	return nil
}

// Get 读取记录
func (s *MemoryStore) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrStoreClosed
	}

	rec, ok := s.records[recordKey{kind, id}]
	if !ok {
		return Record{}, notFound(kind, id)
	}
	return clone(rec), nil
}

// List 列出某类记录
func (s *MemoryStore) List(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]Record, 0)
	for key, rec := range s.records {
		if key.kind == kind {
			out = append(out, clone(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping 健康检查
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clone(rec Record) Record {
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec
}
