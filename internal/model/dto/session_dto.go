package dto

import "time"

// Session 登录或注册成功后签发的 BFF token
type Session struct {
	User         SessionUser `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
}

// SessionUser 上游用户快照，不包含上游 token
type SessionUser struct {
	Profile    map[string]any `json:"profile,omitempty"`
	ID         string         `json:"id"`
	Email      string         `json:"email"`
	SignedInAt time.Time      `json:"signed_in_at"`
}

// RefreshTokenRequest 刷新 token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}
