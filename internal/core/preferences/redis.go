package preferences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"menu-analyzer/internal/core/analysis"

	"github.com/go-redis/redis/v8"
)

// RedisStore 以 Redis 儲存偏好，每個 profile 一個 JSON 值
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 創建 Redis 偏好儲存；client 由呼叫方負責關閉
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(profileID string) string {
	return s.prefix + "preferences:" + profileID
}

// Get 取得偏好
func (s *RedisStore) Get(ctx context.Context, profileID string) (analysis.UserPreferences, error) {
	if err := ValidateProfileID(profileID); err != nil {
		return analysis.UserPreferences{}, err
	}

	data, err := s.client.Get(ctx, s.key(profileID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return analysis.UserPreferences{}, ErrNotFound
	}
	if err != nil {
		return analysis.UserPreferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}

	var prefs analysis.UserPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return analysis.UserPreferences{}, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	return prefs.Normalize(), nil
}

// Put 正規化後儲存偏好並回傳儲存的值
func (s *RedisStore) Put(ctx context.Context, profileID string, prefs analysis.UserPreferences) (analysis.UserPreferences, error) {
	if err := ValidateProfileID(profileID); err != nil {
		return analysis.UserPreferences{}, err
	}
	prefs = prefs.Normalize()

	data, err := json.Marshal(prefs)
	if err != nil {
		return analysis.UserPreferences{}, fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := s.client.Set(ctx, s.key(profileID), data, 0).Err(); err != nil {
		return analysis.UserPreferences{}, fmt.Errorf("failed to save preferences: %w", err)
	}
	return prefs, nil
}

// Ping 檢查 Redis 連線
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
