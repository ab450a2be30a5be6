package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"atlaswd/config"
	"atlaswd/internal/cache"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/slider"
	"atlaswd/utils"
)

var (
	verificationService *VerificationService
	verifyOnce          sync.Once
)

func Verification() *VerificationService {
	verifyOnce.Do(func() {
		verificationService = NewVerificationService(time.Now)
	})
	return verificationService
}

// VerificationService 验证码请求的频控与滑块校验
type VerificationService struct {
	now func() time.Time
}

func NewVerificationService(now func() time.Time) *VerificationService {
	return &VerificationService{now: now}
}

// CheckOTPRequest 每次向上游请求验证码前调用：
// 当日次数达到 OTP_MAX_DAILY 拒绝，达到 OTP_SLIDER_THRESHOLD 后需要一次性滑块凭证
func (s *VerificationService) CheckOTPRequest(ctx context.Context, email, sliderToken string) error {
	cfg := config.Cfg
	emailHash := utils.HashEmail(email)
	now := s.now()

	count, err := cache.GetOTPCount(ctx, emailHash, now)
	if err != nil {
		return fmt.Errorf("failed to check otp count: %w", err)
	}

	if count >= cfg.OTPMaxDaily {
		return pkgerrors.OTPRateLimited
	}

	if count >= cfg.OTPSliderThreshold {
		if sliderToken == "" {
			return pkgerrors.VerificationSliderRequired
		}
		ok, err := cache.ConsumeSliderVerificationToken(ctx, emailHash, sliderToken)
		if err != nil {
			return fmt.Errorf("failed to validate slider token: %w", err)
		}
		if !ok {
			return pkgerrors.VerificationSliderFailed
		}
	}

	if _, err := cache.IncrOTPCount(ctx, emailHash, now); err != nil {
		return fmt.Errorf("failed to increase otp count: %w", err)
	}
	return nil
}

// VerifySlider 校验滑块参数，通过后签发绑定邮箱的一次性凭证
func (s *VerificationService) VerifySlider(ctx context.Context, email, captchaVerifyParam, sceneID string) (string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !utils.ValidateEmail(email) {
		return "", time.Time{}, pkgerrors.ValidationFailed.WithMessage("Please enter a valid email address")
	}

	// 场景 id 以服务端配置为准，前端传入不一致视为篡改
	expected := config.Cfg.CaptchaSceneID
	if sceneID == "" {
		sceneID = expected
	}
	if expected != "" && sceneID != expected {
		return "", time.Time{}, pkgerrors.VerificationSliderFailed
	}

	ok, err := slider.Verify(ctx, captchaVerifyParam, sceneID)
	if err != nil {
		logger.Logger.Warn("Slider verification error", zap.Error(err))
		return "", time.Time{}, pkgerrors.VerificationSliderFailed
	}
	if !ok {
		return "", time.Time{}, pkgerrors.VerificationSliderFailed
	}

	token, err := cache.SetSliderVerificationToken(ctx, utils.HashEmail(email))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store slider token: %w", err)
	}
	return token, s.now().Add(cache.SliderTokenTTL), nil
}
