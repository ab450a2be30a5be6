package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"atlaswd/pkg/atlasapi"
)

// AuthAPI 步骤组件依赖的上游认证接口
type AuthAPI interface {
	Login(ctx context.Context, req atlasapi.LoginRequest) (*atlasapi.Result, error)
	InitiateRegistration(ctx context.Context, email string) (*atlasapi.Result, error)
	VerifyRegistrationOTP(ctx context.Context, email, otp string) (*atlasapi.Result, error)
	ResendRegistrationOTP(ctx context.Context, email string) (*atlasapi.Result, error)
	CompleteRegistration(ctx context.Context, req atlasapi.RegistrationRequest) (*atlasapi.Result, error)
	RequestPasswordReset(ctx context.Context, email string) (*atlasapi.Result, error)
	VerifyPasswordResetOTP(ctx context.Context, email, otp string) (*atlasapi.Result, error)
	ResendPasswordResetOTP(ctx context.Context, email string) (*atlasapi.Result, error)
	ResetPassword(ctx context.Context, req atlasapi.ResetPasswordRequest) (*atlasapi.Result, error)
}

// ErrResendTooSoon 冷却时间内重复请求验证码
var ErrResendTooSoon = errors.New("otp resend cooldown has not elapsed")

// CooldownError 携带剩余冷却时间
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp resend available in %s", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error {
	return ErrResendTooSoon
}

// Steps 各步骤组件：本地校验 -> 调用上游 -> 成功后回调 Controller 推进状态
// 失败只写入内联错误，不推进状态，也不重试
type Steps struct {
	ctrl     *Controller
	api      AuthAPI
	cooldown time.Duration
}

func NewSteps(ctrl *Controller, api AuthAPI, cooldown time.Duration) *Steps {
	return &Steps{ctrl: ctrl, api: api, cooldown: cooldown}
}

func (s *Steps) Controller() *Controller {
	return s.ctrl
}

// call 包装一次上游请求：请求期间置 loading，失败时记录内联错误
func (s *Steps) call(fn func() (*atlasapi.Result, error)) (*atlasapi.Result, error) {
	s.ctrl.clearError()
	s.ctrl.setLoading(true)
	res, err := fn()
	s.ctrl.setLoading(false)

	if err != nil {
		s.ctrl.fail(UserMessage(err))
		return nil, err
	}
	if res == nil {
		res = &atlasapi.Result{}
	}
	return res, nil
}

// reject 本地校验失败
func (s *Steps) reject(err error) error {
	s.ctrl.fail(UserMessage(err))
	return err
}

// Login 邮箱密码登录，成功后流程进入 logged_in 终态
func (s *Steps) Login(ctx context.Context, email, password string) (*atlasapi.Result, error) {
	if err := s.ctrl.require(EventLoggedIn, StepLogin); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, s.reject(err)
	}
	if password == "" {
		return nil, s.reject(invalid("password", "Password is required"))
	}

	res, err := s.call(func() (*atlasapi.Result, error) {
		return s.api.Login(ctx, atlasapi.LoginRequest{Email: email, Password: password})
	})
	if err != nil {
		return nil, err
	}

	if err := s.ctrl.Dispatch(ctx, Event{Kind: EventLoggedIn}); err != nil {
		return nil, err
	}
	return res, nil
}

// ForgotPassword login -> requestOTP
func (s *Steps) ForgotPassword(ctx context.Context) error {
	return s.ctrl.Dispatch(ctx, Event{Kind: EventForgotPassword})
}

// Signup login -> requestOTPSignup
func (s *Steps) Signup(ctx context.Context) error {
	return s.ctrl.Dispatch(ctx, Event{Kind: EventSignup})
}

func (s *Steps) Back(ctx context.Context) error {
	return s.ctrl.Back(ctx)
}

// RequestOTP 在 requestOTP（找回密码）或 requestOTPSignup（注册）步骤发送验证码
func (s *Steps) RequestOTP(ctx context.Context, email string) error {
	if err := s.ctrl.require(EventOTPRequested, StepRequestOTP, StepRequestOTPSignup); err != nil {
		return err
	}

	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return s.reject(err)
	}

	signup := s.ctrl.Step() == StepRequestOTPSignup
	_, err := s.call(func() (*atlasapi.Result, error) {
		if signup {
			return s.api.InitiateRegistration(ctx, email)
		}
		return s.api.RequestPasswordReset(ctx, email)
	})
	if err != nil {
		return err
	}

	s.ctrl.state.ResendAvailableAt = s.ctrl.now().Add(s.cooldown)
	return s.ctrl.Dispatch(ctx, Event{Kind: EventOTPRequested, Email: email})
}

// ResendRemaining 距离可以重发验证码还剩多久
func (s *Steps) ResendRemaining() time.Duration {
	remaining := s.ctrl.state.ResendAvailableAt.Sub(s.ctrl.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ResendOTP 冷却结束后在校验步骤重发验证码，不改变步骤
func (s *Steps) ResendOTP(ctx context.Context) error {
	if err := s.ctrl.require(EventOTPRequested, StepVerifyOTPPassword, StepVerifyOTPSignup); err != nil {
		return err
	}

	if remaining := s.ResendRemaining(); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}

	email := s.ctrl.state.Data.Email()
	signup := s.ctrl.Step() == StepVerifyOTPSignup
	_, err := s.call(func() (*atlasapi.Result, error) {
		if signup {
			return s.api.ResendRegistrationOTP(ctx, email)
		}
		return s.api.ResendPasswordResetOTP(ctx, email)
	})
	if err != nil {
		return err
	}

	s.ctrl.state.ResendAvailableAt = s.ctrl.now().Add(s.cooldown)
	s.ctrl.state.UpdatedAt = s.ctrl.now()
	return nil
}

// VerifyOTP 校验 4 位验证码，成功后合并上游返回的全部校验数据
func (s *Steps) VerifyOTP(ctx context.Context, otp string) error {
	if err := s.ctrl.require(EventOTPVerified, StepVerifyOTPPassword, StepVerifyOTPSignup); err != nil {
		return err
	}

	otp = strings.TrimSpace(otp)
	if err := validateOTP(otp); err != nil {
		return s.reject(err)
	}

	email := s.ctrl.state.Data.Email()
	signup := s.ctrl.Step() == StepVerifyOTPSignup
	res, err := s.call(func() (*atlasapi.Result, error) {
		if signup {
			return s.api.VerifyRegistrationOTP(ctx, email, otp)
		}
		return s.api.VerifyPasswordResetOTP(ctx, email, otp)
	})
	if err != nil {
		return err
	}

	verification := make(map[string]any, len(res.Data)+2)
	for k, v := range res.Data {
		verification[k] = v
	}
	verification[KeyOTP] = otp
	if _, ok := verification[KeyEmail]; !ok {
		verification[KeyEmail] = email
	}

	return s.ctrl.Dispatch(ctx, Event{Kind: EventOTPVerified, Verification: verification})
}

// SetNewPassword 找回密码的最后一步，成功后进入 password_reset 终态
func (s *Steps) SetNewPassword(ctx context.Context, password, confirm string) error {
	if err := s.ctrl.require(EventPasswordUpdated, StepNewPassword); err != nil {
		return err
	}

	if err := validateNewPassword(password, confirm); err != nil {
		return s.reject(err)
	}

	data := s.ctrl.state.Data
	_, err := s.call(func() (*atlasapi.Result, error) {
		return s.api.ResetPassword(ctx, atlasapi.ResetPasswordRequest{
			Email:      data.Email(),
			OTP:        data.OTP(),
			ResetToken: data.String(KeyResetToken),
			Password:   password,
		})
	})
	if err != nil {
		return err
	}

	return s.ctrl.Dispatch(ctx, Event{Kind: EventPasswordUpdated})
}

// CompleteRegistration 提交注册资料。上游直接返回 token 时进入 registered 终态，
// 否则回到 login 由用户自行登录
func (s *Steps) CompleteRegistration(ctx context.Context, in RegistrationInput) (*atlasapi.Result, error) {
	if err := s.ctrl.require(EventRegistered, StepCompleteRegistration); err != nil {
		return nil, err
	}

	if err := in.validate(); err != nil {
		return nil, s.reject(err)
	}

	referral, err := s.ctrl.referrals.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read referral code: %w", err)
	}

	data := s.ctrl.state.Data
	res, err := s.call(func() (*atlasapi.Result, error) {
		return s.api.CompleteRegistration(ctx, atlasapi.RegistrationRequest{
			Email:        data.Email(),
			OTP:          data.OTP(),
			FirstName:    strings.TrimSpace(in.FirstName),
			LastName:     strings.TrimSpace(in.LastName),
			CompanyName:  strings.TrimSpace(in.CompanyName),
			Phone:        strings.TrimSpace(in.Phone),
			Password:     in.Password,
			ReferralCode: referral,
		})
	})
	if err != nil {
		return nil, err
	}

	// 推荐码清除前留给终态事件使用
	if referral != "" {
		s.ctrl.state.Data = s.ctrl.state.Data.Merge(map[string]any{KeyReferralCode: referral})
	}

	showLogin := res.Token == ""
	if err := s.ctrl.Dispatch(ctx, Event{Kind: EventRegistered, ShowLogin: showLogin}); err != nil {
		return nil, err
	}
	return res, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
