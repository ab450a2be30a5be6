package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"atlaswd/config"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/response"
	"atlaswd/storage/redis"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// 时间窗口（秒）
	Window int
	// 时间窗口内最大请求数
	MaxRequests int
	// 限流键前缀
	KeyPrefix string
	// 已登录时按用户 ID 限流
	ByUserID bool
	ByIP     bool
	// 超过限制后的封禁时长（秒），0 表示不封禁
	BlockDuration int
	ErrorMessage  string
}

// FlowRateLimitConfig 认证向导的步骤提交
var FlowRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   30,
	KeyPrefix:     "rate:flow",
	ByIP:          true,
	BlockDuration: 300,
	ErrorMessage:  "Too many attempts. Please try again later.",
}

// SliderRateLimitConfig 滑块校验按 IP 限流
var SliderRateLimitConfig = RateLimitConfig{
	Window:        60,
	MaxRequests:   5,
	KeyPrefix:     "rate:slider",
	ByIP:          true,
	BlockDuration: 1800,
	ErrorMessage:  "Too many verification attempts. Please try again later.",
}

// SessionRateLimitConfig 会话接口
var SessionRateLimitConfig = RateLimitConfig{
	Window:       60,
	MaxRequests:  60,
	KeyPrefix:    "rate:session",
	ByUserID:     true,
	ByIP:         true,
	ErrorMessage: "Too many requests",
}

// RateLimiter 基于 zset 的滑动窗口限流
type RateLimiter struct {
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	return &RateLimiter{config: config, now: time.Now}
}

func (rl *RateLimiter) identifier(ctx context.Context, c *app.RequestContext) string {
	if rl.config.ByUserID {
		if userID, exists := GetUserID(ctx, c); exists {
			return "user:" + userID
		}
	}
	if rl.config.ByIP {
		return "ip:" + c.ClientIP()
	}
	return "global"
}

// Allow 返回是否放行以及窗口内的请求数
func (rl *RateLimiter) Allow(ctx context.Context, id string) (bool, int, error) {
	key := redis.Key(rl.config.KeyPrefix, id)
	now := rl.now()
	windowStart := now.Add(-time.Duration(rl.config.Window) * time.Second)

	pipe := redis.Client().Pipeline()

	// 先移除窗口外的记录
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))

	// member 需唯一，同一纳秒内的并发请求也要分别计数
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	zcard := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, time.Duration(rl.config.Window+10)*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcard.Val())
	return count <= rl.config.MaxRequests, count, nil
}

func (rl *RateLimiter) blockKey(id string) string {
	return redis.Key(rl.config.KeyPrefix, "block", id)
}

func (rl *RateLimiter) Block(ctx context.Context, id string) error {
	if rl.config.BlockDuration <= 0 {
		return nil
	}
	return redis.Client().Set(ctx, rl.blockKey(id), "1", time.Duration(rl.config.BlockDuration)*time.Second).Err()
}

func (rl *RateLimiter) IsBlocked(ctx context.Context, id string) (bool, error) {
	n, err := redis.Client().Exists(ctx, rl.blockKey(id)).Result()
	return n > 0, err
}

// RateLimitMiddleware Redis 出错时放行，限流不能影响登录可用性
func RateLimitMiddleware(config RateLimitConfig) app.HandlerFunc {
	limiter := NewRateLimiter(config)
	return limiter.Handler()
}

func (rl *RateLimiter) Handler() app.HandlerFunc {
	cfg := rl.config
	tooMany := pkgerrors.TooManyRequests.WithMessage(cfg.ErrorMessage)

	return func(ctx context.Context, c *app.RequestContext) {
		if !config.Cfg.RateLimitEnabled {
			c.Next(ctx)
			return
		}

		id := rl.identifier(ctx, c)

		blocked, err := rl.IsBlocked(ctx, id)
		if err != nil {
			logger.Logger.Error("Failed to check block status", zap.Error(err))
			c.Next(ctx)
			return
		}
		if blocked {
			response.Error(ctx, c, tooMany)
			c.Abort()
			return
		}

		allowed, count, err := rl.Allow(ctx, id)
		if err != nil {
			logger.Logger.Error("Failed to check rate limit", zap.Error(err))
			c.Next(ctx)
			return
		}

		remaining := cfg.MaxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(rl.now().Add(time.Duration(cfg.Window)*time.Second).Unix(), 10))

		if !allowed {
			if err := rl.Block(ctx, id); err != nil {
				logger.Logger.Error("Failed to block client", zap.String("id", id), zap.Error(err))
			}
			logger.Logger.Warn("Rate limit exceeded",
				zap.String("prefix", cfg.KeyPrefix),
				zap.String("id", id),
				zap.Int("count", count),
			)
			response.Error(ctx, c, tooMany)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

func FlowRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(FlowRateLimitConfig)
}

func SliderRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(SliderRateLimitConfig)
}

func SessionRateLimitMiddleware() app.HandlerFunc {
	return RateLimitMiddleware(SessionRateLimitConfig)
}
