package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ri "github.com/redis/go-redis/v9"

	"atlaswd/config"
	"atlaswd/storage/redis"
	"atlaswd/utils"
)

const sessionPrefix = "session"

// ErrSessionNotFound 会话不存在或已过期
var ErrSessionNotFound = errors.New("session not found")

func refreshTTL() time.Duration {
	return time.Duration(config.Cfg.JWTRefreshDays) * 24 * time.Hour
}

// SetRefreshToken 存储 refresh token
// Key: atlas:session:refresh:{userID}
// TTL: JWT_REFRESH_DAYS
func SetRefreshToken(ctx context.Context, userID, refreshToken string) error {
	key := redis.Key(sessionPrefix, "refresh", userID)
	return redis.Client().Set(ctx, key, refreshToken, refreshTTL()).Err()
}

func GetRefreshToken(ctx context.Context, userID string) (string, error) {
	key := redis.Key(sessionPrefix, "refresh", userID)
	return redis.Client().Get(ctx, key).Result()
}

// rotateRefresh 旧值匹配时才写入新值，保证一个 refresh token 只能兑换一次
var rotateRefresh = ri.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

// RotateRefreshToken 原子地把 oldToken 换成 newToken，oldToken 已被使用或不匹配时返回 false
func RotateRefreshToken(ctx context.Context, userID, oldToken, newToken string) (bool, error) {
	key := redis.Key(sessionPrefix, "refresh", userID)
	n, err := rotateRefresh.Run(ctx, redis.Client(), []string{key},
		oldToken, newToken, refreshTTL().Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ValidateRefreshTokenExists 检查 refresh token 是否存在且匹配
func ValidateRefreshTokenExists(ctx context.Context, userID, refreshToken string) bool {
	storedToken, err := GetRefreshToken(ctx, userID)
	if err != nil {
		return false
	}
	return storedToken == refreshToken
}

// SessionUser 登录后保存的上游用户快照
type SessionUser struct {
	UserID        string         `json:"user_id"`
	Email         string         `json:"email"`
	Profile       map[string]any `json:"profile,omitempty"`
	UpstreamToken string         `json:"upstream_token"`
	// UpstreamExpiresAt 上游 token 的过期时间，未知时为 0
	UpstreamExpiresAt int64 `json:"upstream_expires_at,omitempty"`
	SignedInAt        int64 `json:"signed_in_at"`
}

// SetSessionUser 上游 token 加密后落盘
// Key: atlas:session:user:{userID}
// TTL: 与 refresh token 一致
func SetSessionUser(ctx context.Context, user SessionUser) error {
	if user.UpstreamToken != "" {
		enc, err := utils.Encrypt(user.UpstreamToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt upstream token: %w", err)
		}
		user.UpstreamToken = enc
	}

	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal session user: %w", err)
	}

	key := redis.Key(sessionPrefix, "user", user.UserID)
	return redis.Client().Set(ctx, key, data, refreshTTL()).Err()
}

func GetSessionUser(ctx context.Context, userID string) (*SessionUser, error) {
	key := redis.Key(sessionPrefix, "user", userID)
	data, err := redis.Client().Get(ctx, key).Bytes()
	if errors.Is(err, ri.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var user SessionUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session user: %w", err)
	}
	if user.UpstreamToken != "" {
		plain, err := utils.Decrypt(user.UpstreamToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt upstream token: %w", err)
		}
		user.UpstreamToken = plain
	}
	return &user, nil
}

// DeleteSession 登出时清理用户快照与 refresh token
func DeleteSession(ctx context.Context, userID string) error {
	return redis.Client().Del(ctx,
		redis.Key(sessionPrefix, "user", userID),
		redis.Key(sessionPrefix, "refresh", userID),
	).Err()
}
