package cache

import (
	"context"
	"errors"
	"time"

	ri "github.com/redis/go-redis/v9"

	"atlaswd/storage/redis"
	"atlaswd/utils"
)

// 每日验证码请求计数：atlas:otp:count:{emailHash}:{date}
// TTL: 到 UTC 当日结束
const otpPrefix = "otp"

// IncrOTPCount 增加今日请求计数，返回当前次数
func IncrOTPCount(ctx context.Context, emailHash string, now time.Time) (int, error) {
	key := redis.Key(otpPrefix, "count", emailHash, utils.DayKey(now))

	count, err := redis.Client().Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	// 当日第一次请求，次日零点过期
	if count == 1 {
		if err := redis.Client().Expire(ctx, key, utils.UntilEndOfDay(now)).Err(); err != nil {
			return 0, err
		}
	}

	return int(count), nil
}

func GetOTPCount(ctx context.Context, emailHash string, now time.Time) (int, error) {
	key := redis.Key(otpPrefix, "count", emailHash, utils.DayKey(now))

	count, err := redis.Client().Get(ctx, key).Int()
	if errors.Is(err, ri.Nil) {
		return 0, nil
	}
	return count, err
}
