package errors

import (
	stderrors "errors"
	"fmt"
)

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 打卡 / 历史模块错误。
var (
	SubmissionNotFound = Definition{Code: "SUBMISSION_NOT_FOUND", Message: "Submission not found"}
	CheckInTypeInvalid = Definition{Code: "CHECK_IN_TYPE_INVALID", Message: "Check-in type invalid"}
	AnswersEmpty       = Definition{Code: "ANSWERS_EMPTY", Message: "Answers must not be empty"}
	InvalidRequest     = Definition{Code: "INVALID_REQUEST", Message: "Invalid request"}
	TooManyRequests    = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, please retry later"}
)

// 同步模块错误。
var (
	DatasetUnavailable = Definition{Code: "DATASET_UNAVAILABLE", Message: "Dataset unavailable"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	SubmissionNotFound.Code: SubmissionNotFound,
	CheckInTypeInvalid.Code: CheckInTypeInvalid,
	AnswersEmpty.Code:       AnswersEmpty,
	InvalidRequest.Code:     InvalidRequest,
	TooManyRequests.Code:    TooManyRequests,
	DatasetUnavailable.Code: DatasetUnavailable,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// ErrTransport 用于 errors.Is 判断远端调用失败
var ErrTransport = stderrors.New("transport error")

// TransportError 远端 API 调用失败（网络或服务端），总是可恢复，触发降级
type TransportError struct {
	Err        error
	Operation  string
	StatusCode int
}

func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: remote returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// NewTransportError 包装一次失败的远端调用
func NewTransportError(operation string, statusCode int, err error) *TransportError {
	return &TransportError{Operation: operation, StatusCode: statusCode, Err: err}
}

// ParseError 时间戳或答案值格式错误，调用方就地降级，不向上抛出
type ParseError struct {
	Err   error
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
