package token

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlaswd/config"
	"atlaswd/pkg/errors"
)

func setup(t *testing.T) {
	t.Helper()
	config.Cfg.JWTSecret = "test-secret"
	t.Cleanup(func() {
		config.Cfg.JWTSecret = ""
		sharedGenerator = nil
	})
	require.NoError(t, Init())
}

func TestGenerateAndValidate(t *testing.T) {
	setup(t)

	pair, err := GenerateTokenPair("u1")
	require.NoError(t, err)
	assert.Equal(t, config.Cfg.JWTExpireMinutes*60, pair.ExpiresIn)

	uid, err := ValidateRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)

	// access token 不能当 refresh token 用
	_, err = ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, errors.ErrInvalidTokenType)

	again, err := GenerateTokenPair("u1")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, again.RefreshToken)
}

func TestValidateRefreshToken_RejectsForeignSignature(t *testing.T) {
	setup(t)

	forged, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		IdentityKey: "u1",
		"type":      "refresh",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = ValidateRefreshToken(forged)
	assert.Error(t, err)
}

func TestUpstreamExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	upstream, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"sub": "upstream-user",
		"exp": exp.Unix(),
	}).SignedString([]byte("upstream-key"))
	require.NoError(t, err)

	got, ok := UpstreamExpiry(upstream)
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = UpstreamExpiry("opaque-session-id")
	assert.False(t, ok)
}

func TestGenerate_NotInitialized(t *testing.T) {
	sharedGenerator = nil
	_, err := GenerateTokenPair("u1")
	assert.ErrorIs(t, err, errors.ErrTokenGeneratorNotInitialized)
}
