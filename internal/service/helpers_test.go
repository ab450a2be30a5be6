package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"atlaswd/config"
	"atlaswd/internal/model"
	"atlaswd/pkg/atlasapi"
	"atlaswd/pkg/slider"
	"atlaswd/pkg/token"
	"atlaswd/storage/redis"
)

// stubAPI 按方法名返回预设结果或错误
type stubAPI struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]*atlasapi.Result
	errs    map[string]error
}

func newStubAPI() *stubAPI {
	return &stubAPI{
		calls:   map[string]int{},
		results: map[string]*atlasapi.Result{},
		errs:    map[string]error{},
	}
}

func (s *stubAPI) do(name string) (*atlasapi.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	if err := s.errs[name]; err != nil {
		return nil, err
	}
	if res, ok := s.results[name]; ok {
		return res, nil
	}
	return &atlasapi.Result{}, nil
}

func (s *stubAPI) Login(context.Context, atlasapi.LoginRequest) (*atlasapi.Result, error) {
	return s.do("login")
}

func (s *stubAPI) InitiateRegistration(context.Context, string) (*atlasapi.Result, error) {
	return s.do("register.initiate")
}

func (s *stubAPI) VerifyRegistrationOTP(context.Context, string, string) (*atlasapi.Result, error) {
	return s.do("register.verify")
}

func (s *stubAPI) ResendRegistrationOTP(context.Context, string) (*atlasapi.Result, error) {
	return s.do("register.resend")
}

func (s *stubAPI) CompleteRegistration(context.Context, atlasapi.RegistrationRequest) (*atlasapi.Result, error) {
	return s.do("register.complete")
}

func (s *stubAPI) RequestPasswordReset(context.Context, string) (*atlasapi.Result, error) {
	return s.do("password.forgot")
}

func (s *stubAPI) VerifyPasswordResetOTP(context.Context, string, string) (*atlasapi.Result, error) {
	return s.do("password.verify")
}

func (s *stubAPI) ResendPasswordResetOTP(context.Context, string) (*atlasapi.Result, error) {
	return s.do("password.resend")
}

func (s *stubAPI) ResetPassword(context.Context, atlasapi.ResetPasswordRequest) (*atlasapi.Result, error) {
	return s.do("password.reset")
}

// memPublisher 记录发布的事件
type memPublisher struct {
	msgs []model.FlowCompletedMessage
}

func (p *memPublisher) PublishFlowCompleted(_ context.Context, msg model.FlowCompletedMessage) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	mr        *miniredis.Miniredis
	api       *stubAPI
	publisher *memPublisher
	clock     *fakeClock
	flows     *FlowService
	sessions  *SessionService
	verify    *VerificationService
}

func setupEnv(t *testing.T) *env {
	t.Helper()

	mr := miniredis.RunT(t)
	c := ri.NewClient(&ri.Options{Addr: mr.Addr()})
	redis.SetClient(c)

	saved := config.Cfg
	config.Cfg.JWTSecret = "test-secret"
	config.Cfg.EncryptionKey = "0123456789abcdef"
	config.Cfg.CaptchaSceneID = ""
	require.NoError(t, token.Init())
	slider.SetClient(&slider.MockClient{})

	t.Cleanup(func() {
		_ = c.Close()
		config.Cfg = saved
		slider.SetClient(nil)
	})

	clock := &fakeClock{t: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	e := &env{
		mr:        mr,
		api:       newStubAPI(),
		publisher: &memPublisher{},
		clock:     clock,
		sessions:  NewSessionService(clock.Now),
		verify:    NewVerificationService(clock.Now),
	}
	e.flows = NewFlowService(e.api, e.publisher, e.verify, e.sessions, clock.Now)
	return e
}
