package atlasapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Result 上游响应。后端字段命名不统一，这里按候选字段依次取值
type Result struct {
	Token   string
	User    map[string]any
	Message string
	// Data 校验类接口返回的业务数据（data 对象，或去掉通用字段后的顶层字段）
	Data map[string]any
	Raw  map[string]any
}

var (
	tokenFields   = []string{"token", "accessToken", "access_token"}
	userFields    = []string{"user", "profile"}
	messageFields = []string{"message", "msg", "error"}

	// envelopeFields 不属于业务数据的通用字段
	envelopeFields = []string{
		"success", "status", "statusCode", "code",
		"message", "msg", "error",
		"token", "accessToken", "access_token", "refreshToken", "refresh_token",
		"user", "profile",
	}
)

func parseResult(raw []byte) (*Result, error) {
	res := &Result{Raw: map[string]any{}, Data: map[string]any{}}
	if len(bytes.TrimSpace(raw)) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(raw, &res.Raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	data, _ := res.Raw["data"].(map[string]any)

	res.Token = firstString(res.Raw, tokenFields...)
	if res.Token == "" {
		res.Token = firstString(data, tokenFields...)
	}
	res.User = firstObject(res.Raw, userFields...)
	if res.User == nil {
		res.User = firstObject(data, userFields...)
	}
	res.Message = firstString(res.Raw, messageFields...)

	if data != nil {
		res.Data = without(data, envelopeFields...)
	} else {
		res.Data = without(res.Raw, append(envelopeFields, "data")...)
	}
	return res, nil
}

// APIError 上游返回的非 2xx 响应
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("atlas api: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("atlas api: status %d: %s", e.Status, e.Message)
}

// newAPIError 响应体不是 JSON 时 Message 为空，由调用方决定兜底文案
func newAPIError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return e
	}

	e.Code = firstString(body, "code", "errorCode", "error_code")
	e.Message = firstString(body, messageFields...)
	if e.Message == "" {
		// {"error": {"message": "..."}}
		if obj, ok := body["error"].(map[string]any); ok {
			e.Message = firstString(obj, "message", "msg")
			if e.Code == "" {
				e.Code = firstString(obj, "code")
			}
		}
	}
	if e.Message == "" {
		// 校验失败常见格式 {"errors": [{"msg": "..."}]}
		if list, ok := body["errors"].([]any); ok && len(list) > 0 {
			if first, ok := list[0].(map[string]any); ok {
				e.Message = firstString(first, "msg", "message")
			}
		}
	}
	return e
}

// Unauthorized 凭证错误
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstObject(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if obj, ok := m[k].(map[string]any); ok {
			return obj
		}
	}
	return nil
}

func without(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
