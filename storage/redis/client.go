package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"atlaswd/config"
	redisotel "atlaswd/pkg/redis"
)

var (
	client *redis.Client
	once   sync.Once
	err    error
	mu     sync.RWMutex
)

func Init() error {
	once.Do(func() {
		cfg := config.Cfg

		c := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			MinIdleConns: 5,
			MaxRetries:   3,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err = c.Ping(ctx).Err(); err != nil {
			return
		}

		if cfg.OTelEnabled {
			c.AddHook(redisotel.NewTracingHook(cfg.ServiceName, cfg.RedisDB))
		}
		SetClient(c)
	})

	return err
}

// SetClient 替换全局客户端，测试中注入 miniredis
func SetClient(c *redis.Client) {
	mu.Lock()
	defer mu.Unlock()
	client = c
}

func Client() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	if client == nil {
		panic("Redis client not init")
	}
	return client
}

func Close(ctx context.Context) error {
	mu.RLock()
	defer mu.RUnlock()
	if client == nil {
		return nil
	}

	return client.Close()
}

// Key 以配置的前缀拼接 key，空片段跳过
func Key(parts ...string) string {
	prefix := config.Cfg.RedisPrefix
	if prefix == "" {
		prefix = "atlas"
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}

	return sb.String()
}
