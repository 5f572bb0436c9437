package response

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"

	"HealthCheckIn/pkg/errors"
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

func errorToHTTPStatus(err error) int {
	var def errors.Definition
	if stderrors.As(err, &def) {
		switch def.Code {
		case errors.TooManyRequests.Code:
			return http.StatusTooManyRequests // 429
		case errors.CheckInTypeInvalid.Code, errors.AnswersEmpty.Code, errors.InvalidRequest.Code:
			return http.StatusBadRequest // 400
		case errors.SubmissionNotFound.Code:
			return http.StatusNotFound // 404
		case errors.DatasetUnavailable.Code:
			return http.StatusServiceUnavailable // 503
		default:
			return http.StatusInternalServerError // 500
		}
	}

	// 远端 API 失败
	if stderrors.Is(err, errors.ErrTransport) {
		return http.StatusBadGateway // 502
	}
	return http.StatusInternalServerError
}

func describe(err error) (code, message string) {
	var def errors.Definition
	if stderrors.As(err, &def) {
		return def.Code, def.Message
	}
	if stderrors.Is(err, errors.ErrTransport) {
		return "UPSTREAM_UNAVAILABLE", err.Error()
	}
	return "INTERNAL_ERROR", err.Error()
}

// Error 返回错误响应
func Error(ctx context.Context, c *app.RequestContext, err error) {
	ErrorWithDetails(ctx, c, err, nil)
}

func ErrorWithDetails(ctx context.Context, c *app.RequestContext, err error, details map[string]interface{}) {
	code, message := describe(err)
	c.JSON(errorToHTTPStatus(err), ErrorResponse{
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

// Accepted 202，用于触发后台刷新一类的操作
func Accepted(ctx context.Context, c *app.RequestContext, data interface{}) {
	c.JSON(http.StatusAccepted, SuccessResponse{
		Data: data,
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
