package atlasapi

import "context"

const (
	pathLogin             = "/api/auth/login"
	pathRegisterInitiate  = "/api/auth/register/initiate"
	pathRegisterVerifyOTP = "/api/auth/register/verify-otp"
	pathRegisterResendOTP = "/api/auth/register/resend-otp"
	pathRegisterComplete  = "/api/auth/register/complete"
	pathPasswordForgot    = "/api/auth/password/forgot"
	pathPasswordVerifyOTP = "/api/auth/password/verify-otp"
	pathPasswordResendOTP = "/api/auth/password/resend-otp"
	pathPasswordReset     = "/api/auth/password/reset"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegistrationRequest struct {
	Email        string `json:"email"`
	OTP          string `json:"otp"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	CompanyName  string `json:"companyName"`
	Phone        string `json:"phone,omitempty"`
	Password     string `json:"password"`
	ReferralCode string `json:"referralCode,omitempty"`
}

type ResetPasswordRequest struct {
	Email      string `json:"email"`
	OTP        string `json:"otp"`
	ResetToken string `json:"resetToken,omitempty"`
	Password   string `json:"newPassword"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*Result, error) {
	return c.post(ctx, pathLogin, req)
}

// InitiateRegistration 向邮箱发送注册验证码
func (c *Client) InitiateRegistration(ctx context.Context, email string) (*Result, error) {
	return c.post(ctx, pathRegisterInitiate, emailRequest{Email: email})
}

func (c *Client) VerifyRegistrationOTP(ctx context.Context, email, otp string) (*Result, error) {
	return c.post(ctx, pathRegisterVerifyOTP, otpRequest{Email: email, OTP: otp})
}

func (c *Client) ResendRegistrationOTP(ctx context.Context, email string) (*Result, error) {
	return c.post(ctx, pathRegisterResendOTP, emailRequest{Email: email})
}

func (c *Client) CompleteRegistration(ctx context.Context, req RegistrationRequest) (*Result, error) {
	return c.post(ctx, pathRegisterComplete, req)
}

// RequestPasswordReset 向邮箱发送找回密码验证码
func (c *Client) RequestPasswordReset(ctx context.Context, email string) (*Result, error) {
	return c.post(ctx, pathPasswordForgot, emailRequest{Email: email})
}

func (c *Client) VerifyPasswordResetOTP(ctx context.Context, email, otp string) (*Result, error) {
	return c.post(ctx, pathPasswordVerifyOTP, otpRequest{Email: email, OTP: otp})
}

func (c *Client) ResendPasswordResetOTP(ctx context.Context, email string) (*Result, error) {
	return c.post(ctx, pathPasswordResendOTP, emailRequest{Email: email})
}

func (c *Client) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*Result, error) {
	return c.post(ctx, pathPasswordReset, req)
}
