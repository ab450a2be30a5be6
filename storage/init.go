package storage

import (
	"atlaswd/storage/database"
	"atlaswd/storage/mq"
	"atlaswd/storage/redis"
)

// Init 统一初始化 storage 层。server 不连数据库，完成记录由 worker 落库
func Init(withDatabase bool) error {
	if withDatabase {
		if err := database.Init(); err != nil {
			return err
		}
	}

	if err := redis.Init(); err != nil {
		return err
	}

	if err := mq.Init(); err != nil {
		return err
	}

	return nil
}
