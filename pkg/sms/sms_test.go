package sms

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlaswd/config"
	"atlaswd/pkg/errors"
)

func TestParseResponse(t *testing.T) {
	res, err := parseResponse(map[string]interface{}{
		"statusCode": 200,
		"body":       map[string]interface{}{"Code": "OK", "BizId": "biz-1", "RequestId": "req-1"},
	}, "SMS_1")
	require.NoError(t, err)
	assert.Equal(t, "biz-1", res.MessageID)
	assert.Equal(t, "req-1", res.RequestID)

	_, err = parseResponse(map[string]interface{}{"statusCode": 500}, "SMS_1")
	assert.Error(t, err)

	_, err = parseResponse(map[string]interface{}{
		"statusCode": 200,
		"body":       map[string]interface{}{"Code": "isv.SMS_TEMPLATE_ILLEGAL", "Message": "bad template"},
	}, "SMS_1")
	var skip *errors.SkipMessageError
	assert.True(t, stderrors.As(err, &skip))

	_, err = parseResponse(map[string]interface{}{
		"statusCode": 200,
		"body":       map[string]interface{}{"Code": "isv.BUSINESS_LIMIT_CONTROL"},
	}, "SMS_1")
	require.Error(t, err)
	assert.False(t, stderrors.As(err, &skip))
}

func TestSendWelcomeSMS(t *testing.T) {
	mock := NewMockClient()
	SetClient(mock)
	t.Cleanup(func() {
		SetClient(nil)
		config.Cfg.SMSSignName = ""
		config.Cfg.SMSWelcomeTemplateCode = ""
	})
	ctx := context.Background()

	// 未配置模板时跳过
	require.NoError(t, SendWelcomeSMS(ctx, "+4912345678", "Ada"))
	assert.Empty(t, mock.Calls())

	config.Cfg.SMSSignName = "Atlas"
	config.Cfg.SMSWelcomeTemplateCode = "SMS_WELCOME"

	require.NoError(t, SendWelcomeSMS(ctx, "", "Ada"))
	assert.Empty(t, mock.Calls())

	require.NoError(t, SendWelcomeSMS(ctx, "+4912345678", "Ada"))
	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SMS_WELCOME", calls[0].TemplateCode)
	assert.JSONEq(t, `{"name":"Ada"}`, calls[0].TemplateParam)

	mock.FailNext = true
	assert.Error(t, SendWelcomeSMS(ctx, "+4912345678", "Ada"))
}
