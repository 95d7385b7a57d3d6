package job

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"token-analyzer/pkg/utils"
)

// RedisProgressStore 进度快照写入 redis，key 为 token_analyzer:progress:<tokenId>
type RedisProgressStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisProgressStore(rdb redis.Cmdable, ttl time.Duration) *RedisProgressStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProgressStore{rdb: rdb, ttl: ttl}
}

func (s *RedisProgressStore) Save(ctx context.Context, snap RunSnapshot) error {
	data, err := sonic.Marshal(snap)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, utils.ProgressKey(snap.TokenID), data, s.ttl).Err()
}

// Load 没有记录时返回 nil, nil
func (s *RedisProgressStore) Load(ctx context.Context, tokenID string) (*RunSnapshot, error) {
	data, err := s.rdb.Get(ctx, utils.ProgressKey(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var snap RunSnapshot
	if err := sonic.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
