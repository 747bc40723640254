package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 引擎统一错误码
type ErrorCode string

// 输入类错误码
const (
	ErrInvalidInput                    ErrorCode = "INVALID_INPUT"
	ErrInvalidGoal                     ErrorCode = "INVALID_GOAL"
	ErrCollaborationFacilitationFailed ErrorCode = "COLLABORATION_FACILITATION_FAILED"
	ErrCyclicDependency                ErrorCode = "CYCLIC_DEPENDENCY"
	ErrUnassignedAgentMismatch         ErrorCode = "UNASSIGNED_AGENT_MISMATCH"
	ErrMessageExpired                  ErrorCode = "MESSAGE_EXPIRED"
)

// 运行期错误码
const (
	ErrAdvisorUnavailable ErrorCode = "ADVISOR_UNAVAILABLE"
	ErrOperationTimeout   ErrorCode = "OPERATION_TIMEOUT"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrAlreadyExists      ErrorCode = "ALREADY_EXISTS"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Retryable  bool              `json:"retryable"`
	Details    map[string]string `json:"details,omitempty"`
	Cause      error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: defaultHTTPStatus(code)}
}

// Errorf 以格式化消息创建 Error
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithDetail 附加一个诊断字段
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// AsError 沿错误链查找 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode 判断错误链中是否包含指定错误码
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsInvalidInput 判断错误是否属于输入校验类（调用方需修正请求）
func IsInvalidInput(err error) bool {
	switch GetErrorCode(err) {
	case ErrInvalidInput, ErrInvalidGoal, ErrCollaborationFacilitationFailed,
		ErrCyclicDependency, ErrUnassignedAgentMismatch, ErrMessageExpired:
		return true
	default:
		return false
	}
}

func defaultHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrInvalidInput, ErrInvalidGoal, ErrCollaborationFacilitationFailed:
		return http.StatusBadRequest
	case ErrCyclicDependency, ErrUnassignedAgentMismatch:
		return http.StatusUnprocessableEntity
	case ErrMessageExpired:
		return http.StatusGone
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAlreadyExists:
		return http.StatusConflict
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrOperationTimeout:
		return http.StatusGatewayTimeout
	case ErrAdvisorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
