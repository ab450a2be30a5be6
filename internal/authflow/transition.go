package authflow

import (
	"errors"
	"fmt"
)

// EventKind 驱动状态迁移的事件类型
type EventKind string

const (
	EventForgotPassword  EventKind = "forgot_password"
	EventSignup          EventKind = "signup"
	EventLoggedIn        EventKind = "logged_in"
	EventOTPRequested    EventKind = "otp_requested"
	EventOTPVerified     EventKind = "otp_verified"
	EventPasswordUpdated EventKind = "password_updated"
	EventRegistered      EventKind = "registered"
	EventBack            EventKind = "back"
)

// Event 步骤完成后回调给 Controller 的事件，只有与 Kind 对应的字段有意义
type Event struct {
	Kind EventKind

	// EventOTPRequested
	Email string
	// EventOTPVerified
	Verification map[string]any
	// EventRegistered
	ShowLogin bool
}

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNoPredecessor     = errors.New("step has no back target")
	ErrFlowFinished      = errors.New("flow already finished")
	ErrUnknownStep       = errors.New("unknown step")
)

// TransitionError 事件在当前步骤不被允许
type TransitionError struct {
	From  Step
	Event EventKind
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q not allowed in step %q", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// backTargets 固定的回退映射，login 没有前驱
var backTargets = map[Step]Step{
	StepRequestOTP:           StepLogin,
	StepRequestOTPSignup:     StepLogin,
	StepVerifyOTPPassword:    StepRequestOTP,
	StepVerifyOTPSignup:      StepRequestOTPSignup,
	StepNewPassword:          StepVerifyOTPPassword,
	StepCompleteRegistration: StepVerifyOTPSignup,
}

// BackTarget 返回 step 的回退目标
func BackTarget(step Step) (Step, bool) {
	prev, ok := backTargets[step]
	return prev, ok
}

// Next 纯函数：计算 (step, event) 的目标步骤与终态，失败时返回原步骤
func Next(step Step, ev Event) (Step, Outcome, error) {
	if ev.Kind == EventBack {
		prev, ok := backTargets[step]
		if !ok {
			return step, OutcomeNone, fmt.Errorf("%w: %s", ErrNoPredecessor, step)
		}
		return prev, OutcomeNone, nil
	}

	switch step {
	case StepLogin:
		switch ev.Kind {
		case EventForgotPassword:
			return StepRequestOTP, OutcomeNone, nil
		case EventSignup:
			return StepRequestOTPSignup, OutcomeNone, nil
		case EventLoggedIn:
			return StepLogin, OutcomeLoggedIn, nil
		}
	case StepRequestOTP:
		if ev.Kind == EventOTPRequested {
			return StepVerifyOTPPassword, OutcomeNone, nil
		}
	case StepRequestOTPSignup:
		if ev.Kind == EventOTPRequested {
			return StepVerifyOTPSignup, OutcomeNone, nil
		}
	case StepVerifyOTPPassword:
		if ev.Kind == EventOTPVerified {
			return StepNewPassword, OutcomeNone, nil
		}
	case StepVerifyOTPSignup:
		if ev.Kind == EventOTPVerified {
			return StepCompleteRegistration, OutcomeNone, nil
		}
	case StepNewPassword:
		if ev.Kind == EventPasswordUpdated {
			return StepNewPassword, OutcomePasswordReset, nil
		}
	case StepCompleteRegistration:
		if ev.Kind == EventRegistered {
			if ev.ShowLogin {
				return StepLogin, OutcomeNone, nil
			}
			return StepCompleteRegistration, OutcomeRegistered, nil
		}
	default:
		return step, OutcomeNone, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}

	return step, OutcomeNone, &TransitionError{From: step, Event: ev.Kind}
}
