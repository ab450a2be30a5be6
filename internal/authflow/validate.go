package authflow

import (
	"errors"
	"strings"
	"unicode/utf8"

	"atlaswd/pkg/atlasapi"
	"atlaswd/utils"
)

const (
	OTPLength         = 4
	MinPasswordLength = 8

	// GenericErrorMessage 上游没有给出可读信息时的兜底提示
	GenericErrorMessage = "Something went wrong. Please try again."
)

// ValidationError 本地校验失败，发生在任何网络请求之前
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UserMessage 把错误转换成单条内联提示
func UserMessage(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}

	var apiErr *atlasapi.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	return GenericErrorMessage
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email", "Email is required")
	}
	if !utils.ValidateEmail(email) {
		return invalid("email", "Please enter a valid email address")
	}
	return nil
}

func validateOTP(otp string) error {
	otp = strings.TrimSpace(otp)
	if utf8.RuneCountInString(otp) != OTPLength {
		return invalid("otp", "Please enter the 4-digit code")
	}
	for _, r := range otp {
		if r < '0' || r > '9' {
			return invalid("otp", "The code may only contain digits")
		}
	}
	return nil
}

func validateNewPassword(password, confirm string) error {
	if password == "" {
		return invalid("password", "Password is required")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return invalid("password", "Password must be at least 8 characters")
	}
	if password != confirm {
		return invalid("confirm_password", "Passwords do not match")
	}
	return nil
}

// RegistrationInput 完成注册步骤的表单
type RegistrationInput struct {
	FirstName       string
	LastName        string
	CompanyName     string
	Phone           string
	Password        string
	ConfirmPassword string
}

func (in RegistrationInput) validate() error {
	switch {
	case strings.TrimSpace(in.FirstName) == "":
		return invalid("first_name", "First name is required")
	case strings.TrimSpace(in.LastName) == "":
		return invalid("last_name", "Last name is required")
	case strings.TrimSpace(in.CompanyName) == "":
		return invalid("company_name", "Company name is required")
	}
	if in.Phone != "" && !utils.ValidatePhone(in.Phone) {
		return invalid("phone", "Please enter a valid phone number")
	}
	return validateNewPassword(in.Password, in.ConfirmPassword)
}
