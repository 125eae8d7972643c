package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisStore 以 Redis 儲存紀錄：每筆紀錄一個 JSON 值，另以 sorted set 依時間索引
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRecords int
}

// NewRedisStore 創建 Redis 儲存；client 由呼叫方負責關閉
func NewRedisStore(client *redis.Client, prefix string, maxRecords int) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, maxRecords: maxRecords}
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + "history:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "history:index"
}

// Save 儲存紀錄並裁掉超過上限的舊紀錄
func (s *RedisStore) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(rec.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), &redis.Z{
			Score:  float64(rec.CreatedAt.UnixMilli()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	if s.maxRecords > 0 {
		return s.trim(ctx)
	}
	return nil
}

// trim 刪除最舊、超出上限的紀錄
func (s *RedisStore) trim(ctx context.Context) error {
	stale, err := s.client.ZRange(ctx, s.indexKey(), 0, int64(-s.maxRecords-1)).Result()
	if err != nil {
		return fmt.Errorf("failed to read history index: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	keys := make([]string, len(stale))
	members := make([]interface{}, len(stale))
	for i, id := range stale {
		keys[i] = s.recordKey(id)
		members[i] = id
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, s.indexKey(), members...)
		return nil
	})
	return err
}

// Get 取得紀錄
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// List 由新到舊列出紀錄
func (s *RedisStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	if offset < 0 {
		offset = 0
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), int64(offset), stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history index: %w", err)
	}
	out := []*Record{}
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// 索引還在但值已被刪除
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Delete 刪除紀錄
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping 檢查 Redis 連線
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close client 由呼叫方關閉
func (s *RedisStore) Close() error { return nil }
