package repository

import (
	"context"
	"sync"

	"powerhouse-manager/internal/model"
)

// MemoryStore 进程内存储，用于测试和单机试用
type MemoryStore struct {
	mu   sync.RWMutex
	data model.StoredSnapshot
}

// NewMemoryStore 创建空的内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: model.StoredSnapshot{
		Users:       []model.StoredUser{},
		Powerhouses: []model.Powerhouse{},
	}}
}

// LoadAll 返回数据的深拷贝
func (s *MemoryStore) LoadAll(ctx context.Context) (*model.StoredSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := s.data.Clone()
	s.mu.RUnlock()
	sortSnapshot(out)
	return out, nil
}

// ReplaceAll 整体替换
func (s *MemoryStore) ReplaceAll(ctx context.Context, users []model.StoredUser, powerhouses []model.Powerhouse) error {
	users, powerhouses, err := PrepareReplace(users, powerhouses)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data = model.StoredSnapshot{Users: users, Powerhouses: powerhouses}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

func (s *MemoryStore) Close() error { return nil }
