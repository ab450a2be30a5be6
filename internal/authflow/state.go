package authflow

import "time"

// Step 认证向导的当前步骤
type Step string

const (
	StepLogin                Step = "login"
	StepRequestOTP           Step = "requestOTP"
	StepRequestOTPSignup     Step = "requestOTPSignup"
	StepVerifyOTPPassword    Step = "verifyOTPPassword"
	StepVerifyOTPSignup      Step = "verifyOTPSignup"
	StepNewPassword          Step = "newPassword"
	StepCompleteRegistration Step = "completeRegistration"
)

// Steps 的固定枚举顺序
var AllSteps = []Step{
	StepLogin,
	StepRequestOTP,
	StepRequestOTPSignup,
	StepVerifyOTPPassword,
	StepVerifyOTPSignup,
	StepNewPassword,
	StepCompleteRegistration,
}

func (s Step) Valid() bool {
	for _, step := range AllSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Mode 挂载时的入口模式
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeSignup Mode = "signup"
)

// ParseMode 未知值一律按 login 处理
func ParseMode(raw string) Mode {
	if Mode(raw) == ModeSignup {
		return ModeSignup
	}
	return ModeLogin
}

// InitialStep 返回入口模式对应的初始步骤
func InitialStep(mode Mode) Step {
	if mode == ModeSignup {
		return StepRequestOTPSignup
	}
	return StepLogin
}

// Outcome 流程的终态
type Outcome string

const (
	OutcomeNone          Outcome = ""
	OutcomeLoggedIn      Outcome = "logged_in"
	OutcomePasswordReset Outcome = "password_reset"
	OutcomeRegistered    Outcome = "registered"
)

// AuthData 中的约定键
const (
	KeyEmail        = "email"
	KeyOTP          = "otp"
	KeyReferralCode = "referralCode"
	KeyResetToken   = "resetToken"
)

// AuthData 流程中累积的认证数据（email、otp、推荐码以及校验接口返回的字段）
type AuthData map[string]any

// Merge 返回合并后的新副本，src 中的同名键覆盖原值
func (d AuthData) Merge(src map[string]any) AuthData {
	out := make(AuthData, len(d)+len(src))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Without 返回去掉指定键的新副本
func (d AuthData) Without(keys ...string) AuthData {
	out := make(AuthData, len(d))
	for k, v := range d {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func (d AuthData) String(key string) string {
	v, ok := d[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func (d AuthData) Email() string        { return d.String(KeyEmail) }
func (d AuthData) OTP() string          { return d.String(KeyOTP) }
func (d AuthData) ReferralCode() string { return d.String(KeyReferralCode) }

// FlowState 单个认证流程的全部状态，由 Controller 独占修改
type FlowState struct {
	ID      string   `json:"id"`
	Mode    Mode     `json:"mode"`
	Step    Step     `json:"step"`
	Data    AuthData `json:"data"`
	Outcome Outcome  `json:"outcome,omitempty"`

	// 瞬时的界面状态
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`

	ResendAvailableAt time.Time `json:"resend_available_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Finished 流程已进入终态
func (s FlowState) Finished() bool {
	return s.Outcome != OutcomeNone
}

// CanGoBack 当前步骤是否存在回退目标
func (s FlowState) CanGoBack() bool {
	if s.Finished() {
		return false
	}
	_, ok := backTargets[s.Step]
	return ok
}
