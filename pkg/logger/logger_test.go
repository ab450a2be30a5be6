package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***@b.com", MaskEmail("ada@b.com"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "***", MaskEmail("@b.com"))
}

func TestLevelOf(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelOf("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, levelOf(" warn "))
	assert.Equal(t, zapcore.InfoLevel, levelOf("verbose"))
}
