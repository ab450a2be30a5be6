package authflow

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memReferrals 进程内的推荐码存储
type memReferrals struct {
	code string
}

func (m *memReferrals) Get(context.Context) (string, error) { return m.code, nil }

func (m *memReferrals) Set(_ context.Context, c string) error {
	m.code = c
	return nil
}

func (m *memReferrals) Clear(context.Context) error {
	m.code = ""
	return nil
}

func TestNext_Transitions(t *testing.T) {
	tests := []struct {
		from    Step
		ev      Event
		to      Step
		outcome Outcome
	}{
		{StepLogin, Event{Kind: EventForgotPassword}, StepRequestOTP, OutcomeNone},
		{StepLogin, Event{Kind: EventSignup}, StepRequestOTPSignup, OutcomeNone},
		{StepLogin, Event{Kind: EventLoggedIn}, StepLogin, OutcomeLoggedIn},
		{StepRequestOTP, Event{Kind: EventOTPRequested}, StepVerifyOTPPassword, OutcomeNone},
		{StepRequestOTPSignup, Event{Kind: EventOTPRequested}, StepVerifyOTPSignup, OutcomeNone},
		{StepVerifyOTPPassword, Event{Kind: EventOTPVerified}, StepNewPassword, OutcomeNone},
		{StepVerifyOTPSignup, Event{Kind: EventOTPVerified}, StepCompleteRegistration, OutcomeNone},
		{StepNewPassword, Event{Kind: EventPasswordUpdated}, StepNewPassword, OutcomePasswordReset},
		{StepCompleteRegistration, Event{Kind: EventRegistered}, StepCompleteRegistration, OutcomeRegistered},
		{StepCompleteRegistration, Event{Kind: EventRegistered, ShowLogin: true}, StepLogin, OutcomeNone},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev.Kind), func(t *testing.T) {
			to, outcome, err := Next(tt.from, tt.ev)
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestNext_RejectsUnlistedEvents(t *testing.T) {
	kinds := []EventKind{
		EventForgotPassword, EventSignup, EventLoggedIn, EventOTPRequested,
		EventOTPVerified, EventPasswordUpdated, EventRegistered,
	}
	allowed := map[Step][]EventKind{
		StepLogin:                {EventForgotPassword, EventSignup, EventLoggedIn},
		StepRequestOTP:           {EventOTPRequested},
		StepRequestOTPSignup:     {EventOTPRequested},
		StepVerifyOTPPassword:    {EventOTPVerified},
		StepVerifyOTPSignup:      {EventOTPVerified},
		StepNewPassword:          {EventPasswordUpdated},
		StepCompleteRegistration: {EventRegistered},
	}

	for _, step := range AllSteps {
		for _, kind := range kinds {
			if contains(allowed[step], kind) {
				continue
			}
			to, outcome, err := Next(step, Event{Kind: kind})
			assert.ErrorIs(t, err, ErrInvalidTransition, "%s/%s", step, kind)
			assert.Equal(t, step, to)
			assert.Equal(t, OutcomeNone, outcome)
		}
	}

	_, _, err := Next(Step("bogus"), Event{Kind: EventSignup})
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func contains(kinds []EventKind, k EventKind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func TestBack(t *testing.T) {
	tests := map[Step]Step{
		StepRequestOTP:           StepLogin,
		StepRequestOTPSignup:     StepLogin,
		StepVerifyOTPPassword:    StepRequestOTP,
		StepVerifyOTPSignup:      StepRequestOTPSignup,
		StepNewPassword:          StepVerifyOTPPassword,
		StepCompleteRegistration: StepVerifyOTPSignup,
	}
	for from, want := range tests {
		ctrl := Restore(FlowState{ID: "f1", Step: from}, &memReferrals{})
		require.NoError(t, ctrl.Back(context.Background()))
		assert.Equal(t, want, ctrl.Step(), "back from %s", from)
	}

	ctrl := New("f1", ModeLogin, &memReferrals{})
	assert.False(t, ctrl.State().CanGoBack())
	assert.ErrorIs(t, ctrl.Back(context.Background()), ErrNoPredecessor)
	assert.Equal(t, StepLogin, ctrl.Step())
}

func TestInitialStep(t *testing.T) {
	assert.Equal(t, StepLogin, New("f", ParseMode(""), &memReferrals{}).Step())
	assert.Equal(t, StepLogin, New("f", ParseMode("whatever"), &memReferrals{}).Step())
	assert.Equal(t, StepRequestOTPSignup, New("f", ParseMode("signup"), &memReferrals{}).Step())
}

func TestMount_StoresOrClearsReferral(t *testing.T) {
	ctx := context.Background()
	store := &memReferrals{}

	ctrl := New("f1", ModeSignup, store)
	require.NoError(t, ctrl.Mount(ctx, url.Values{"ref": {"ABC123"}}))
	assert.Equal(t, "ABC123", store.code)
	assert.Equal(t, "ABC123", ctrl.State().Data.ReferralCode())

	// 新的访问没有 ref，旧的推荐码必须被清除
	ctrl = New("f2", ModeSignup, store)
	require.NoError(t, ctrl.Mount(ctx, url.Values{}))
	assert.Empty(t, store.code)
	assert.NotContains(t, ctrl.State().Data, KeyReferralCode)
}

func TestDispatch_MergesData(t *testing.T) {
	ctx := context.Background()
	ctrl := New("f1", ModeLogin, &memReferrals{})

	require.NoError(t, ctrl.Dispatch(ctx, Event{Kind: EventForgotPassword}))
	require.NoError(t, ctrl.Dispatch(ctx, Event{Kind: EventOTPRequested, Email: "a@b.com"}))
	require.NoError(t, ctrl.Dispatch(ctx, Event{Kind: EventOTPVerified, Verification: map[string]any{
		"otp": "1234", "resetToken": "rt",
	}}))

	state := ctrl.State()
	assert.Equal(t, StepNewPassword, state.Step)
	assert.Equal(t, AuthData{"email": "a@b.com", "otp": "1234", "resetToken": "rt"}, state.Data)

	// State 返回副本
	state.Data["email"] = "x@y.com"
	assert.Equal(t, "a@b.com", ctrl.State().Data.Email())
}

func TestDispatch_InvalidEventLeavesStateUntouched(t *testing.T) {
	ctrl := New("f1", ModeLogin, &memReferrals{})
	before := ctrl.State()

	err := ctrl.Dispatch(context.Background(), Event{Kind: EventOTPVerified})
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StepLogin, terr.From)
	assert.Equal(t, before, ctrl.State())
}

func TestTerminalFlowRejectsEverything(t *testing.T) {
	ctx := context.Background()
	store := &memReferrals{code: "ABC123"}

	var completions []Completion
	ctrl := Restore(FlowState{ID: "f1", Step: StepCompleteRegistration, Data: AuthData{
		KeyEmail: "a@b.com", KeyReferralCode: "ABC123",
	}}, store, WithCompletion(func(c Completion) { completions = append(completions, c) }))

	require.NoError(t, ctrl.Dispatch(ctx, Event{Kind: EventRegistered}))
	assert.Equal(t, OutcomeRegistered, ctrl.State().Outcome)
	assert.Empty(t, store.code)

	require.Len(t, completions, 1)
	assert.Equal(t, "f1", completions[0].FlowID)
	assert.Equal(t, OutcomeRegistered, completions[0].Outcome)
	assert.Equal(t, "ABC123", completions[0].ReferralCode)
	assert.NotContains(t, completions[0].Data, KeyReferralCode)

	assert.ErrorIs(t, ctrl.Back(ctx), ErrFlowFinished)
	assert.ErrorIs(t, ctrl.Dispatch(ctx, Event{Kind: EventRegistered}), ErrFlowFinished)
	assert.False(t, ctrl.State().CanGoBack())
	assert.Len(t, completions, 1)
}
