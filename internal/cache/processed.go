package cache

import (
	"context"
	"time"

	"atlaswd/storage/redis"
)

// 消息去重：atlas:mq:processed:{messageID}
// TTL: 24 小时，覆盖 broker 的重投窗口
const processedTTL = 24 * time.Hour

// MarkProcessed 第一次标记时返回 true
func MarkProcessed(ctx context.Context, messageID string) (bool, error) {
	return redis.Client().SetNX(ctx, redis.Key("mq", "processed", messageID), 1, processedTTL).Result()
}

// UnmarkProcessed 处理失败需要重投时撤销标记
func UnmarkProcessed(ctx context.Context, messageID string) error {
	return redis.Client().Del(ctx, redis.Key("mq", "processed", messageID)).Err()
}
