package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 記憶體紀錄儲存，超過上限時丟棄最舊的紀錄
type MemoryStore struct {
	mu         sync.RWMutex
	records    []*Record // 由新到舊
	byID       map[string]*Record
	maxRecords int
}

// NewMemoryStore 創建記憶體儲存；maxRecords <= 0 表示不限
func NewMemoryStore(maxRecords int) *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*Record),
		maxRecords: maxRecords,
	}
}

// Save 儲存紀錄；相同 ID 會覆寫
func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rec.ID]; exists {
		s.removeLocked(rec.ID)
	}

	cp := *rec
	pos := sort.Search(len(s.records), func(i int) bool {
		return newer(&cp, s.records[i])
	})
	s.records = append(s.records, nil)
	copy(s.records[pos+1:], s.records[pos:])
	s.records[pos] = &cp
	s.byID[cp.ID] = &cp

	for s.maxRecords > 0 && len(s.records) > s.maxRecords {
		oldest := s.records[len(s.records)-1]
		s.records = s.records[:len(s.records)-1]
		delete(s.byID, oldest.ID)
	}
	return nil
}

// Get 取得紀錄
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// List 由新到舊列出紀錄
func (s *MemoryStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*Record{}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.records) {
		return out, nil
	}
	end := len(s.records)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	for _, rec := range s.records[offset:end] {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// Delete 刪除紀錄
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrNotFound
	}
	s.removeLocked(id)
	return nil
}

func (s *MemoryStore) removeLocked(id string) {
	delete(s.byID, id)
	for i, rec := range s.records {
		if rec.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return
		}
	}
}

// Ping 記憶體儲存永遠可用
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close 無需釋放資源
func (s *MemoryStore) Close() error { return nil }
