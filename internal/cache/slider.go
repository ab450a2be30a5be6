package cache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"atlaswd/storage/redis"
)

/*
1. 同一邮箱当日验证码请求次数超过阈值
   POST /v1/auth/flows/current/otp -> 429 VERIFICATION_SLIDER_REQUIRED
2. 前端完成滑块，拿到 captcha_verify_param
   POST /v1/auth/slider/verify
3. 服务端校验通过后签发 slider_token（绑定邮箱哈希）
4. 前端携带 slider_token 再次请求验证码，token 一次性使用
*/

// 滑块通过凭证：atlas:slider:verify:{emailHash}
// TTL: 10 分钟
const (
	sliderPrefix   = "slider"
	SliderTokenTTL = 10 * time.Minute
)

// SetSliderVerificationToken 签发新的凭证，覆盖旧凭证
func SetSliderVerificationToken(ctx context.Context, emailHash string) (string, error) {
	token := uuid.NewString()
	key := redis.Key(sliderPrefix, "verify", emailHash)
	if err := redis.Client().Set(ctx, key, token, SliderTokenTTL).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// ConsumeSliderVerificationToken 校验并作废凭证
func ConsumeSliderVerificationToken(ctx context.Context, emailHash, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	key := redis.Key(sliderPrefix, "verify", emailHash)
	n, err := compareAndDelete.Run(ctx, redis.Client(), []string{key}, token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
