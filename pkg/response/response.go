package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
)

// ErrorResponse 统一的错误响应格式
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// SuccessResponse 统一的成功响应格式
type SuccessResponse struct {
	Data interface{}            `json:"data"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// StatusOf 业务错误码到 HTTP 状态码的映射，非 Definition 一律 500
func StatusOf(err error) int {
	var def errors.Definition
	if !stderrors.As(err, &def) {
		return http.StatusInternalServerError
	}

	switch def.Code {
	case errors.InvalidRequest.Code, errors.ValidationFailed.Code, errors.VerificationSliderFailed.Code:
		return http.StatusBadRequest
	case errors.Unauthorized.Code, errors.SessionNotFound.Code, errors.RefreshInvalid.Code:
		return http.StatusUnauthorized
	case errors.CSRFInvalid.Code:
		return http.StatusForbidden
	case errors.FlowNotFound.Code:
		return http.StatusNotFound
	case errors.FlowBusy.Code, errors.FlowFinished.Code, errors.InvalidTransition.Code:
		return http.StatusConflict
	case errors.UpstreamRejected.Code:
		return http.StatusUnprocessableEntity
	case errors.TooManyRequests.Code, errors.OTPRateLimited.Code,
		errors.OTPResendTooSoon.Code, errors.VerificationSliderRequired.Code:
		return http.StatusTooManyRequests
	case errors.UpstreamUnavailable.Code:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

// ErrorWithDetails 未登记的错误只记录日志，不把内部信息返回给前端
func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	statusCode := StatusOf(err)

	var (
		code    = "INTERNAL_ERROR"
		message = "Internal server error"
		def     errors.Definition
	)
	if stderrors.As(err, &def) {
		code = def.Code
		message = def.Message
	} else {
		_ = c.Error(err)
		logger.Logger.Error("Unhandled error",
			zap.String("path", string(c.Path())),
			zap.Error(err),
		)
	}

	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func Success(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
	})
}

func SuccessWithMeta(ctx context.Context, c *app.RequestContext, data interface{}, meta map[string]interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{
		Data: data,
		Meta: meta,
	})
}

func BindError(ctx context.Context, c *app.RequestContext, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    errors.InvalidRequest.Code,
			Message: err.Error(),
		},
	})
}

// NoContent 返回 204 No Content
func NoContent(ctx context.Context, c *app.RequestContext) {
	c.Status(http.StatusNoContent)
}
