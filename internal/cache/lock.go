package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	ri "github.com/redis/go-redis/v9"

	"atlaswd/storage/redis"
)

// 分布式锁：atlas:lock:{key}，值为持有者 token，只有持有者能释放
const (
	lockPrefix = "lock"

	// FlowLockTTL 单次提交的最长处理时间
	FlowLockTTL = 30 * time.Second
)

// compareAndDelete 值匹配时才删除
var compareAndDelete = ri.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock 获取成功时返回持有者 token
func TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := redis.Client().SetNX(ctx, redis.Key(lockPrefix, key), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func Unlock(ctx context.Context, key, token string) error {
	return compareAndDelete.Run(ctx, redis.Client(), []string{redis.Key(lockPrefix, key)}, token).Err()
}

// FlowLockKey 同一流程同一时间只处理一个提交
func FlowLockKey(flowID string) string {
	return "flow:" + flowID
}
