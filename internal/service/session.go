package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"atlaswd/internal/cache"
	"atlaswd/internal/model/dto"
	"atlaswd/pkg/atlasapi"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/token"
	"atlaswd/utils"
)

var (
	sessionService *SessionService
	sessionOnce    sync.Once
)

func Session() *SessionService {
	sessionOnce.Do(func() {
		sessionService = NewSessionService(time.Now)
	})
	return sessionService
}

// SessionService 保存上游 token，给前端签发 BFF 自己的 JWT
type SessionService struct {
	now func() time.Time
}

func NewSessionService(now func() time.Time) *SessionService {
	return &SessionService{now: now}
}

// SignIn 上游没有返回 token 时不建立会话，返回 nil
func (s *SessionService) SignIn(ctx context.Context, email string, res *atlasapi.Result) (*dto.Session, error) {
	if res == nil || res.Token == "" {
		return nil, nil
	}

	userID := upstreamUserID(res.User)
	if userID == "" {
		userID = utils.HashEmail(email)[:32]
	}
	if e, ok := res.User["email"].(string); ok && e != "" {
		email = e
	}

	now := s.now()
	user := cache.SessionUser{
		UserID:        userID,
		Email:         email,
		Profile:       res.User,
		UpstreamToken: res.Token,
		SignedInAt:    now.Unix(),
	}
	if exp, ok := token.UpstreamExpiry(res.Token); ok {
		user.UpstreamExpiresAt = exp.Unix()
	}
	if err := cache.SetSessionUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to store session user: %w", err)
	}

	pair, err := s.issue(ctx, userID)
	if err != nil {
		return nil, err
	}

	logger.Logger.Info("Session created", zap.String("user_id", userID))

	return &dto.Session{
		User:         toDTO(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// Refresh 轮换 refresh token，旧 token 立即失效
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	userID, err := token.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, pkgerrors.RefreshInvalid
	}
	if !cache.ValidateRefreshTokenExists(ctx, userID, refreshToken) {
		return nil, pkgerrors.RefreshInvalid
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 上游会话已过期时 BFF 会话一并结束
	if user.UpstreamExpiresAt > 0 && s.now().Unix() >= user.UpstreamExpiresAt {
		if err := cache.DeleteSession(ctx, userID); err != nil {
			logger.Logger.Warn("Failed to delete expired session", zap.String("user_id", userID), zap.Error(err))
		}
		return nil, pkgerrors.SessionNotFound
	}

	pair, err := token.GenerateTokenPair(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token pair: %w", err)
	}
	rotated, err := cache.RotateRefreshToken(ctx, userID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	// 并发刷新时只有一个请求能换到新 token
	if !rotated {
		return nil, pkgerrors.RefreshInvalid
	}
	return &pair, nil
}

func (s *SessionService) Logout(ctx context.Context, userID string) error {
	if err := cache.DeleteSession(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionService) Me(ctx context.Context, userID string) (*dto.SessionUser, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := toDTO(*user)
	return &out, nil
}

// UpstreamToken 调用上游业务接口时使用
func (s *SessionService) UpstreamToken(ctx context.Context, userID string) (string, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.UpstreamToken, nil
}

func (s *SessionService) load(ctx context.Context, userID string) (*cache.SessionUser, error) {
	user, err := cache.GetSessionUser(ctx, userID)
	if errors.Is(err, cache.ErrSessionNotFound) {
		return nil, pkgerrors.SessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	return user, nil
}

func (s *SessionService) issue(ctx context.Context, userID string) (token.Pair, error) {
	pair, err := token.GenerateTokenPair(userID)
	if err != nil {
		return token.Pair{}, fmt.Errorf("failed to generate token pair: %w", err)
	}
	if err := cache.SetRefreshToken(ctx, userID, pair.RefreshToken); err != nil {
		return token.Pair{}, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return pair, nil
}

// upstreamUserID 上游用户 id 可能是 id 或 _id，字符串或数字
func upstreamUserID(user map[string]any) string {
	for _, key := range []string{"id", "_id", "userId"} {
		switch v := user[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}

func toDTO(u cache.SessionUser) dto.SessionUser {
	return dto.SessionUser{
		ID:         u.UserID,
		Email:      u.Email,
		Profile:    u.Profile,
		SignedInAt: time.Unix(u.SignedInAt, 0).UTC(),
	}
}
