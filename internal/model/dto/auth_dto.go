package dto

import "time"

// ========== Flow 相关 DTO ==========

// LoginRequest 登录步骤提交
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RequestOTPRequest 请求验证码，超过阈值后需要携带滑块验证 token
type RequestOTPRequest struct {
	Email       string `json:"email"`
	SliderToken string `json:"slider_token,omitempty"`
}

// ResendOTPRequest 重发验证码，body 可为空
type ResendOTPRequest struct {
	SliderToken string `json:"slider_token,omitempty"`
}

// VerifyOTPRequest 校验验证码
type VerifyOTPRequest struct {
	OTP string `json:"otp"`
}

// NewPasswordRequest 找回密码的新密码
type NewPasswordRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// RegistrationRequest 完成注册
type RegistrationRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	CompanyName     string `json:"company_name"`
	Phone           string `json:"phone,omitempty"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// FlowView 返回给前端的当前步骤视图，不包含 otp 等敏感字段
type FlowView struct {
	Data            FlowData  `json:"data"`
	Session         *Session  `json:"session,omitempty"`
	ID              string    `json:"id"`
	Step            string    `json:"step"`
	Mode            string    `json:"mode"`
	Error           string    `json:"error,omitempty"`
	Outcome         string    `json:"outcome,omitempty"`
	ResendInSeconds int       `json:"resend_in_seconds"`
	CanGoBack       bool      `json:"can_go_back"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type FlowData struct {
	Email        string `json:"email,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// ========== Slider 相关 DTO ==========

// VerifySliderRequest 滑块验证请求
type VerifySliderRequest struct {
	Email              string `json:"email"`
	CaptchaVerifyParam string `json:"captcha_verify_param"`
	SceneID            string `json:"scene_id,omitempty"`
}

// VerifySliderResponse 滑块验证响应
type VerifySliderResponse struct {
	SliderVerificationToken string    `json:"slider_verification_token"`
	ExpiresAt               time.Time `json:"expires_at"`
}
