package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"atlaswd/config"
	"atlaswd/internal/authflow"
	"atlaswd/internal/cache"
	"atlaswd/internal/model"
	"atlaswd/internal/model/dto"
	"atlaswd/internal/queue"
	"atlaswd/pkg/atlasapi"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/metrics"
	"atlaswd/utils"
)

// EventPublisher 终态事件的投递方
type EventPublisher interface {
	PublishFlowCompleted(ctx context.Context, msg model.FlowCompletedMessage) error
}

// FlowRef 会话 cookie 中保存的客户端与流程标识
type FlowRef struct {
	ClientID string
	FlowID   string
}

var (
	flowService *FlowService
	flowOnce    sync.Once
)

func Flow() *FlowService {
	flowOnce.Do(func() {
		flowService = NewFlowService(atlasapi.Default(), queue.Publisher{}, Verification(), Session(), time.Now)
	})
	return flowService
}

// FlowService 每次提交：加锁 -> 恢复状态 -> 执行步骤 -> 保存或丢弃
type FlowService struct {
	api       authflow.AuthAPI
	publisher EventPublisher
	verify    *VerificationService
	sessions  *SessionService
	now       func() time.Time
}

func NewFlowService(
	api authflow.AuthAPI,
	publisher EventPublisher,
	verify *VerificationService,
	sessions *SessionService,
	now func() time.Time,
) *FlowService {
	return &FlowService{
		api:       api,
		publisher: publisher,
		verify:    verify,
		sessions:  sessions,
		now:       now,
	}
}

// submission 一次步骤执行中需要带到终态处理的数据
type submission struct {
	email     string
	phone     string
	firstName string
	result    *atlasapi.Result
	// registered 上游已接受注册，referral 是提交时流程里的推荐码
	registered bool
	referral   string
}

// Mount 创建新流程，读取入口参数中的推荐码
func (s *FlowService) Mount(ctx context.Context, clientID, mode string, entry url.Values) (*dto.FlowView, error) {
	ctrl := authflow.New(uuid.NewString(), authflow.ParseMode(mode), cache.NewReferralStore(clientID),
		authflow.WithClock(s.now))

	if err := ctrl.Mount(ctx, entry); err != nil {
		return nil, err
	}

	state := ctrl.State()
	if err := cache.SaveFlow(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	metrics.GetMetrics().RecordFlowStarted(ctx, string(state.Mode), state.Data.ReferralCode() != "")
	logger.Flow(state.ID, string(state.Step)).Info("Auth flow mounted",
		zap.String("mode", string(state.Mode)),
	)

	return s.view(state), nil
}

// Current 当前步骤视图
func (s *FlowService) Current(ctx context.Context, ref FlowRef) (*dto.FlowView, error) {
	state, err := s.load(ctx, ref.FlowID)
	if err != nil {
		return nil, err
	}
	return s.view(state), nil
}

func (s *FlowService) Back(ctx context.Context, ref FlowRef) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, _ *submission) error {
		return steps.Back(ctx)
	})
}

func (s *FlowService) ForgotPassword(ctx context.Context, ref FlowRef) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, _ *submission) error {
		return steps.ForgotPassword(ctx)
	})
}

func (s *FlowService) Signup(ctx context.Context, ref FlowRef) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, _ *submission) error {
		return steps.Signup(ctx)
	})
}

func (s *FlowService) Login(ctx context.Context, ref FlowRef, req dto.LoginRequest) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, sub *submission) error {
		res, err := steps.Login(ctx, req.Email, req.Password)
		if err != nil {
			return err
		}
		sub.email = req.Email
		sub.result = res
		return nil
	})
}

// RequestOTP 请求验证码前先过频控，非法邮箱不计数
func (s *FlowService) RequestOTP(ctx context.Context, ref FlowRef, req dto.RequestOTPRequest) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, _ *submission) error {
		step := steps.Controller().Step()
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if (step == authflow.StepRequestOTP || step == authflow.StepRequestOTPSignup) && utils.ValidateEmail(email) {
			if err := s.verify.CheckOTPRequest(ctx, email, req.SliderToken); err != nil {
				return err
			}
		}

		if err := steps.RequestOTP(ctx, req.Email); err != nil {
			return err
		}
		metrics.GetMetrics().RecordOTPSent(ctx, otpPurpose(step), false)
		return nil
	})
}

// ResendOTP 冷却结束后重发，同样计入当日次数
func (s *FlowService) ResendOTP(ctx context.Context, ref FlowRef, sliderToken string) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, _ *submission) error {
		state := steps.Controller().State()
		verifying := state.Step == authflow.StepVerifyOTPPassword || state.Step == authflow.StepVerifyOTPSignup
		if verifying && !state.Finished() && steps.ResendRemaining() == 0 {
			if err := s.verify.CheckOTPRequest(ctx, state.Data.Email(), sliderToken); err != nil {
				return err
			}
		}

		if err := steps.ResendOTP(ctx); err != nil {
			return err
		}
		metrics.GetMetrics().RecordOTPSent(ctx, otpPurpose(state.Step), true)
		return nil
	})
}

func (s *FlowService) VerifyOTP(ctx context.Context, ref FlowRef, req dto.VerifyOTPRequest) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, _ *submission) error {
		return steps.VerifyOTP(ctx, req.OTP)
	})
}

func (s *FlowService) SetNewPassword(ctx context.Context, ref FlowRef, req dto.NewPasswordRequest) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, sub *submission) error {
		sub.email = steps.Controller().State().Data.Email()
		return steps.SetNewPassword(ctx, req.Password, req.ConfirmPassword)
	})
}

func (s *FlowService) CompleteRegistration(ctx context.Context, ref FlowRef, req dto.RegistrationRequest) (*dto.FlowView, error) {
	return s.run(ctx, ref, func(ctx context.Context, steps *authflow.Steps, sub *submission) error {
		data := steps.Controller().State().Data
		sub.email = data.Email()
		sub.referral = data.ReferralCode()
		res, err := steps.CompleteRegistration(ctx, authflow.RegistrationInput{
			FirstName:       req.FirstName,
			LastName:        req.LastName,
			CompanyName:     req.CompanyName,
			Phone:           req.Phone,
			Password:        req.Password,
			ConfirmPassword: req.ConfirmPassword,
		})
		if err != nil {
			return err
		}
		sub.result = res
		sub.registered = true
		sub.phone = utils.NormalizePhone(req.Phone)
		sub.firstName = strings.TrimSpace(req.FirstName)
		return nil
	})
}

type stepFunc func(ctx context.Context, steps *authflow.Steps, sub *submission) error

func (s *FlowService) run(ctx context.Context, ref FlowRef, fn stepFunc) (*dto.FlowView, error) {
	lockKey := cache.FlowLockKey(ref.FlowID)
	lockToken, ok, err := cache.TryLock(ctx, lockKey, cache.FlowLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to lock flow: %w", err)
	}
	if !ok {
		return nil, pkgerrors.FlowBusy
	}
	defer func() {
		if err := cache.Unlock(context.WithoutCancel(ctx), lockKey, lockToken); err != nil {
			logger.Logger.Warn("Failed to unlock flow", zap.String("flow_id", ref.FlowID), zap.Error(err))
		}
	}()

	state, err := s.load(ctx, ref.FlowID)
	if err != nil {
		return nil, err
	}

	var completion *authflow.Completion
	ctrl := authflow.Restore(state, cache.NewReferralStore(ref.ClientID),
		authflow.WithClock(s.now),
		authflow.WithCompletion(func(c authflow.Completion) { completion = &c }),
	)
	steps := authflow.NewSteps(ctrl, s.api, time.Duration(config.Cfg.OTPResendCooldownSeconds)*time.Second)

	sub := &submission{}
	stepErr := fn(ctx, steps, sub)
	next := ctrl.State()

	if completion != nil {
		view, err := s.complete(ctx, *completion, sub)
		if err != nil {
			return nil, err
		}
		return view, nil
	}

	// 内联错误也需要保存，前端刷新后仍能看到
	if err := cache.SaveFlow(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	if stepErr != nil {
		metrics.GetMetrics().RecordStepError(ctx, string(state.Step), errorKind(stepErr))
		return nil, mapStepError(stepErr)
	}

	// 注册成功但上游要求重新登录：流程回到 login 继续，注册事件照常发布
	if sub.registered {
		s.publish(ctx, next.ID, authflow.OutcomeRegistered, sub.referral, sub.email, sub)
		metrics.GetMetrics().RecordFlowCompleted(ctx, string(authflow.OutcomeRegistered))
	}
	return s.view(next), nil
}

// complete 终态：丢弃流程、发布事件，上游返回 token 时建立会话
func (s *FlowService) complete(ctx context.Context, c authflow.Completion, sub *submission) (*dto.FlowView, error) {
	if err := cache.DeleteFlow(ctx, c.FlowID); err != nil {
		logger.Logger.Warn("Failed to delete finished flow", zap.String("flow_id", c.FlowID), zap.Error(err))
	}

	email := sub.email
	if email == "" {
		email = c.Data.Email()
	}

	s.publish(ctx, c.FlowID, c.Outcome, c.ReferralCode, email, sub)

	metrics.GetMetrics().RecordFlowCompleted(ctx, string(c.Outcome))
	logger.Flow(c.FlowID, "completed").Info("Auth flow completed",
		zap.String("outcome", string(c.Outcome)),
		logger.Email(email),
	)

	view := &dto.FlowView{
		ID:        c.FlowID,
		Outcome:   string(c.Outcome),
		UpdatedAt: s.now(),
	}

	if c.Outcome == authflow.OutcomeLoggedIn || c.Outcome == authflow.OutcomeRegistered {
		session, err := s.sessions.SignIn(ctx, email, sub.result)
		if err != nil {
			// 上游已完成登录或注册，会话建立失败时前端走登录页
			logger.Flow(c.FlowID, "completed").Error("Failed to create session", zap.Error(err))
			return view, nil
		}
		view.Session = session
	}
	return view, nil
}

// publish 发布 auth.flow.completed，事件丢失只影响统计，不影响用户
func (s *FlowService) publish(ctx context.Context, flowID string, outcome authflow.Outcome, referral, email string, sub *submission) {
	msg := model.FlowCompletedMessage{
		FlowID:       flowID,
		Outcome:      string(outcome),
		ReferralCode: referral,
		OccurredAt:   s.now().UTC().Format(time.RFC3339),
		Phone:        sub.phone,
		FirstName:    sub.firstName,
	}
	if email != "" {
		msg.EmailHash = utils.HashEmail(email)
	}
	if err := s.publisher.PublishFlowCompleted(ctx, msg); err != nil {
		logger.Logger.Error("Failed to publish flow completion",
			zap.String("flow_id", flowID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}

func (s *FlowService) load(ctx context.Context, flowID string) (authflow.FlowState, error) {
	state, err := cache.LoadFlow(ctx, flowID)
	if errors.Is(err, cache.ErrFlowNotFound) {
		return state, pkgerrors.FlowNotFound
	}
	if err != nil {
		return state, fmt.Errorf("failed to load flow: %w", err)
	}
	return state, nil
}

func (s *FlowService) view(state authflow.FlowState) *dto.FlowView {
	v := &dto.FlowView{
		ID:   state.ID,
		Step: string(state.Step),
		Mode: string(state.Mode),
		Data: dto.FlowData{
			Email:        state.Data.Email(),
			ReferralCode: state.Data.ReferralCode(),
		},
		Error:     state.Error,
		Outcome:   string(state.Outcome),
		CanGoBack: state.CanGoBack(),
		UpdatedAt: state.UpdatedAt,
	}
	if remaining := state.ResendAvailableAt.Sub(s.now()); remaining > 0 {
		v.ResendInSeconds = int(math.Ceil(remaining.Seconds()))
	}
	return v
}

func otpPurpose(step authflow.Step) string {
	if step == authflow.StepRequestOTPSignup || step == authflow.StepVerifyOTPSignup {
		return "signup"
	}
	return "password_reset"
}

// errorKind 指标维度：validation / upstream / flow / infra
func errorKind(err error) string {
	var (
		verr *authflow.ValidationError
		def  pkgerrors.Definition
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, atlasapi.ErrUnavailable), errors.Is(err, atlasapi.ErrMalformedResponse):
		return "upstream"
	case errors.As(err, new(*atlasapi.APIError)):
		return "upstream"
	case errors.Is(err, authflow.ErrInvalidTransition), errors.Is(err, authflow.ErrNoPredecessor),
		errors.Is(err, authflow.ErrFlowFinished), errors.Is(err, authflow.ErrResendTooSoon),
		errors.As(err, &def):
		return "flow"
	default:
		return "infra"
	}
}

// mapStepError 把步骤错误转换成业务错误码，原错误保留在链上供 handler 读取字段
func mapStepError(err error) error {
	var (
		verr     *authflow.ValidationError
		cooldown *authflow.CooldownError
		def      pkgerrors.Definition
	)
	switch {
	case errors.As(err, &def):
		return err
	case errors.As(err, &verr):
		return fmt.Errorf("%w: %w", pkgerrors.ValidationFailed.WithMessage(verr.Message), err)
	case errors.Is(err, atlasapi.ErrUnavailable), errors.Is(err, atlasapi.ErrMalformedResponse):
		return fmt.Errorf("%w: %w", pkgerrors.UpstreamUnavailable, err)
	case errors.As(err, new(*atlasapi.APIError)):
		return fmt.Errorf("%w: %w", pkgerrors.UpstreamRejected.WithMessage(authflow.UserMessage(err)), err)
	case errors.As(err, &cooldown):
		return fmt.Errorf("%w: %w", pkgerrors.OTPResendTooSoon, err)
	case errors.Is(err, authflow.ErrFlowFinished):
		return fmt.Errorf("%w: %w", pkgerrors.FlowFinished, err)
	case errors.Is(err, authflow.ErrInvalidTransition), errors.Is(err, authflow.ErrNoPredecessor):
		return fmt.Errorf("%w: %w", pkgerrors.InvalidTransition, err)
	default:
		return err
	}
}

// ErrorDetails handler 用于补充错误响应中的 details
func ErrorDetails(err error) map[string]interface{} {
	var (
		verr     *authflow.ValidationError
		cooldown *authflow.CooldownError
	)
	switch {
	case errors.As(err, &verr):
		return map[string]interface{}{"field": verr.Field}
	case errors.As(err, &cooldown):
		return map[string]interface{}{"resend_in_seconds": int(math.Ceil(cooldown.Remaining.Seconds()))}
	}
	return nil
}
