package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"atlaswd/pkg/logger"
	"atlaswd/storage/database"
	"atlaswd/storage/mq"
	"atlaswd/storage/redis"
)

const closeTimeout = 15 * time.Second

type closer struct {
	name  string
	close func(context.Context) error
}

// 先停 MQ，不再投递完成事件；流程状态在 Redis；数据库只有 worker 连接
var closers = []closer{
	{"rabbitmq", mq.Close},
	{"redis", redis.Close},
	{"postgres", database.Close},
}

// Close 按顺序关闭全部连接，某一个失败不影响后续关闭
func Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return closeAll(ctx, closers)
}

func closeAll(ctx context.Context, cs []closer) error {
	var errs []error
	for _, c := range cs {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Storage close failed", zap.String("backend", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		logger.Logger.Debug("Storage closed", zap.String("backend", c.name))
	}
	return errors.Join(errs...)
}
