package preferences

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"menu-analyzer/internal/core/analysis"
	"menu-analyzer/internal/pkg/common"
)

// ErrNotFound 偏好設定不存在
var ErrNotFound = errors.New("preferences profile not found")

var profileIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)

// ValidateProfileID 檢查 profile ID 格式
func ValidateProfileID(id string) error {
	if !profileIDPattern.MatchString(id) {
		return common.NewValidationError("profile_id must be 1-64 characters of letters, digits, '_', '-', '.', ':'")
	}
	return nil
}

// Store 使用者偏好儲存；讀出的值為快照，之後的修改不影響已取得的值
type Store interface {
	Get(ctx context.Context, profileID string) (analysis.UserPreferences, error)
	Put(ctx context.Context, profileID string, prefs analysis.UserPreferences) (analysis.UserPreferences, error)
	Ping(ctx context.Context) error
}

// MemoryStore 記憶體偏好儲存
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]analysis.UserPreferences
}

// NewMemoryStore 創建記憶體偏好儲存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]analysis.UserPreferences)}
}

// Get 取得偏好
func (s *MemoryStore) Get(ctx context.Context, profileID string) (analysis.UserPreferences, error) {
	if err := ValidateProfileID(profileID); err != nil {
		return analysis.UserPreferences{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs, ok := s.profiles[profileID]
	if !ok {
		return analysis.UserPreferences{}, ErrNotFound
	}
	return clone(prefs), nil
}

// Put 正規化後儲存偏好並回傳儲存的值
func (s *MemoryStore) Put(ctx context.Context, profileID string, prefs analysis.UserPreferences) (analysis.UserPreferences, error) {
	if err := ValidateProfileID(profileID); err != nil {
		return analysis.UserPreferences{}, err
	}
	prefs = prefs.Normalize()

	s.mu.Lock()
	s.profiles[profileID] = prefs
	s.mu.Unlock()

	return clone(prefs), nil
}

// Ping 記憶體儲存永遠可用
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func clone(p analysis.UserPreferences) analysis.UserPreferences {
	return analysis.UserPreferences{
		Allergies:   append([]string{}, p.Allergies...),
		Dislikes:    append([]string{}, p.Dislikes...),
		HealthGoals: append([]string{}, p.HealthGoals...),
	}
}
