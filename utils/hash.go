package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"atlaswd/config"
)

// HashEmail 邮箱加盐哈希，用于 redis key 与事件载荷，盐 + ":" + email
func HashEmail(email string) string {
	key := config.Cfg.EmailHashSalt

	sum := sha256.Sum256([]byte(key + ":" + strings.ToLower(strings.TrimSpace(email))))

	return hex.EncodeToString(sum[:])
}
