package cache

import (
	"context"
	"errors"
	"time"

	ri "github.com/redis/go-redis/v9"

	"atlaswd/config"
	"atlaswd/internal/authflow"
	"atlaswd/storage/redis"
)

// 推荐码：atlas:referral:{clientID}
// TTL: REFERRAL_TTL_DAYS
const referralPrefix = "referral"

// ReferralStore 按浏览器客户端隔离的推荐码存储
type ReferralStore struct {
	clientID string
}

var _ authflow.ReferralStore = (*ReferralStore)(nil)

func NewReferralStore(clientID string) *ReferralStore {
	return &ReferralStore{clientID: clientID}
}

func (s *ReferralStore) key() string {
	return redis.Key(referralPrefix, s.clientID)
}

func (s *ReferralStore) Get(ctx context.Context) (string, error) {
	code, err := redis.Client().Get(ctx, s.key()).Result()
	if errors.Is(err, ri.Nil) {
		return "", nil
	}
	return code, err
}

func (s *ReferralStore) Set(ctx context.Context, code string) error {
	ttl := time.Duration(config.Cfg.ReferralTTLDays) * 24 * time.Hour
	return redis.Client().Set(ctx, s.key(), code, ttl).Err()
}

func (s *ReferralStore) Clear(ctx context.Context) error {
	return redis.Client().Del(ctx, s.key()).Err()
}
