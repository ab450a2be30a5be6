package errors

import "errors"

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// Is 让 errors.Is 按错误码比较，WithMessage 生成的副本仍能匹配原定义。
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	if !ok {
		return false
	}
	return t.Code == d.Code
}

// WithMessage 返回同错误码、不同提示信息的副本。
func (d Definition) WithMessage(message string) Definition {
	return Definition{Code: d.Code, Message: message}
}

// 通用错误。
var (
	InvalidRequest      = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	ValidationFailed    = Definition{Code: "VALIDATION_FAILED", Message: "Validation failed"}
	TooManyRequests     = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests"}
	Unauthorized        = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	CSRFInvalid         = Definition{Code: "CSRF_INVALID", Message: "Invalid CSRF token"}
	InternalError       = Definition{Code: "INTERNAL_ERROR", Message: "Internal server error"}
	UpstreamUnavailable = Definition{Code: "UPSTREAM_UNAVAILABLE", Message: "Authentication service is unavailable"}
	UpstreamRejected    = Definition{Code: "UPSTREAM_REJECTED", Message: "Something went wrong. Please try again."}
)

// 认证流程错误。
var (
	FlowNotFound      = Definition{Code: "FLOW_NOT_FOUND", Message: "Authentication flow not found or expired"}
	FlowBusy          = Definition{Code: "FLOW_BUSY", Message: "A request for this flow is already in progress"}
	FlowFinished      = Definition{Code: "FLOW_FINISHED", Message: "Authentication flow already finished"}
	InvalidTransition = Definition{Code: "INVALID_TRANSITION", Message: "Action not allowed in the current step"}
)

// 验证码相关错误。
var (
	OTPRateLimited             = Definition{Code: "OTP_RATE_LIMITED", Message: "Too many verification codes requested today"}
	OTPResendTooSoon           = Definition{Code: "OTP_RESEND_TOO_SOON", Message: "Please wait before requesting a new code"}
	VerificationSliderRequired = Definition{Code: "VERIFICATION_SLIDER_REQUIRED", Message: "Slider verification required"}
	VerificationSliderFailed   = Definition{Code: "VERIFICATION_SLIDER_FAILED", Message: "Slider verification failed"}
)

// 会话相关错误。
var (
	SessionNotFound = Definition{Code: "SESSION_NOT_FOUND", Message: "Session not found"}
	RefreshInvalid  = Definition{Code: "REFRESH_TOKEN_INVALID", Message: "Refresh token invalid"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	InvalidRequest.Code:             InvalidRequest,
	ValidationFailed.Code:           ValidationFailed,
	TooManyRequests.Code:            TooManyRequests,
	Unauthorized.Code:               Unauthorized,
	CSRFInvalid.Code:                CSRFInvalid,
	InternalError.Code:              InternalError,
	UpstreamUnavailable.Code:        UpstreamUnavailable,
	UpstreamRejected.Code:           UpstreamRejected,
	FlowNotFound.Code:               FlowNotFound,
	FlowBusy.Code:                   FlowBusy,
	FlowFinished.Code:               FlowFinished,
	InvalidTransition.Code:          InvalidTransition,
	OTPRateLimited.Code:             OTPRateLimited,
	OTPResendTooSoon.Code:           OTPResendTooSoon,
	VerificationSliderRequired.Code: VerificationSliderRequired,
	VerificationSliderFailed.Code:   VerificationSliderFailed,
	SessionNotFound.Code:            SessionNotFound,
	RefreshInvalid.Code:             RefreshInvalid,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// 基础设施层的哨兵错误。
var (
	ErrTokenGeneratorNotInitialized = errors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = errors.New("unexpected signing method")
	ErrInvalidToken                 = errors.New("invalid token")
	ErrInvalidTokenClaims           = errors.New("invalid token claims")
	ErrInvalidTokenType             = errors.New("invalid token type")
	ErrUserIDNotFound               = errors.New("user id not found in token")

	ErrUnsupportedCaptchaProvider = errors.New("unsupported captcha provider")
	ErrCaptchaTokenRequired       = errors.New("captcha verify param is required")
	ErrCaptchaResponseNil         = errors.New("captcha response is nil")
	ErrCaptchaVerificationFailed  = errors.New("captcha verification failed")

	ErrUnsupportedSMSProvider = errors.New("unsupported sms provider")
	ErrSignNameRequired       = errors.New("sms sign name is required")
	ErrTemplateCodeRequired   = errors.New("sms template code is required")
)

// SkipMessageError 消息无法处理且重投无意义（如载荷损坏），消费者直接拒绝进入死信
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}
