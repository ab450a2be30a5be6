package authflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ReferralParam 入口 URL 中携带推荐码的查询参数
const ReferralParam = "ref"

// ReferralStore 推荐码的持久化存储，按客户端隔离，由调用方注入
type ReferralStore interface {
	// Get 不存在时返回空字符串
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, code string) error
	Clear(ctx context.Context) error
}

// Completion 流程进入终态时回调的数据
type Completion struct {
	FlowID       string
	Outcome      Outcome
	Data         AuthData
	ReferralCode string
}

type Option func(*Controller)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithCompletion 注册终态回调
func WithCompletion(fn func(Completion)) Option {
	return func(c *Controller) {
		c.onComplete = fn
	}
}

// Controller 认证向导的状态机，持有当前步骤与累积数据
// 只在单个请求内使用，不做并发保护
type Controller struct {
	state      FlowState
	referrals  ReferralStore
	now        func() time.Time
	onComplete func(Completion)
}

// New 以入口模式创建新流程
func New(id string, mode Mode, referrals ReferralStore, opts ...Option) *Controller {
	c := &Controller{referrals: referrals, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	now := c.now()
	c.state = FlowState{
		ID:        id,
		Mode:      mode,
		Step:      InitialStep(mode),
		Data:      AuthData{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return c
}

// Restore 从持久化的状态恢复
func Restore(state FlowState, referrals ReferralStore, opts ...Option) *Controller {
	c := &Controller{referrals: referrals, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if state.Data == nil {
		state.Data = AuthData{}
	}
	c.state = state
	return c
}

// State 返回当前状态的副本
func (c *Controller) State() FlowState {
	s := c.state
	s.Data = c.state.Data.Merge(nil)
	return s
}

func (c *Controller) Step() Step {
	return c.state.Step
}

// Mount 读取入口参数中的推荐码：有则保存，无则清除之前保存的推荐码
func (c *Controller) Mount(ctx context.Context, entry url.Values) error {
	code := strings.TrimSpace(entry.Get(ReferralParam))
	if code == "" {
		if err := c.referrals.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear referral code: %w", err)
		}
		c.state.Data = c.state.Data.Without(KeyReferralCode)
		return nil
	}

	if err := c.referrals.Set(ctx, code); err != nil {
		return fmt.Errorf("failed to store referral code: %w", err)
	}
	c.state.Data = c.state.Data.Merge(map[string]any{KeyReferralCode: code})
	return nil
}

// Dispatch 应用事件，失败时状态保持不变
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	if c.state.Finished() {
		return ErrFlowFinished
	}

	next, outcome, err := Next(c.state.Step, ev)
	if err != nil {
		return err
	}

	data := c.state.Data
	referral := data.ReferralCode()
	switch ev.Kind {
	case EventOTPRequested:
		data = data.Merge(map[string]any{KeyEmail: ev.Email})
	case EventOTPVerified:
		data = data.Merge(ev.Verification)
	case EventRegistered:
		// 注册提交后（无论是否直接登录）推荐码都已使用
		if err := c.referrals.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear referral code: %w", err)
		}
		data = data.Without(KeyReferralCode)
	}

	c.state.Step = next
	c.state.Data = data
	c.state.Error = ""
	c.state.UpdatedAt = c.now()

	if outcome != OutcomeNone {
		c.state.Outcome = outcome
		if c.onComplete != nil {
			c.onComplete(Completion{
				FlowID:       c.state.ID,
				Outcome:      outcome,
				Data:         c.state.Data.Merge(nil),
				ReferralCode: referral,
			})
		}
	}
	return nil
}

// Back 按回退映射返回上一步
func (c *Controller) Back(ctx context.Context) error {
	return c.Dispatch(ctx, Event{Kind: EventBack})
}

func (c *Controller) setLoading(loading bool) {
	c.state.Loading = loading
}

func (c *Controller) fail(message string) {
	c.state.Error = message
	c.state.UpdatedAt = c.now()
}

func (c *Controller) clearError() {
	c.state.Error = ""
}

// require 校验当前步骤是否属于 allowed
func (c *Controller) require(kind EventKind, allowed ...Step) error {
	if c.state.Finished() {
		return ErrFlowFinished
	}
	for _, step := range allowed {
		if c.state.Step == step {
			return nil
		}
	}
	return &TransitionError{From: c.state.Step, Event: kind}
}
