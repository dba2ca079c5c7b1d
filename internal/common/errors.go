package common

import (
	"errors"
	"fmt"
)

// AppError 应用级错误结构
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code, message string, err error) error {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError 创建新错误
func NewError(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// HasCode 沿着错误链查找指定错误码
func HasCode(err error, code string) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsRetryable 判断错误是否值得对同一批次重试
func IsRetryable(err error) bool {
	return HasCode(err, ErrCodeTransientProvider) || HasCode(err, ErrCodePromptTooLong)
}

// 错误码常量
const (
	ErrCodeConfiguration     = "CONFIGURATION_ERROR"
	ErrCodeTransientProvider = "TRANSIENT_PROVIDER_ERROR"
	ErrCodePromptTooLong     = "PROMPT_TOO_LONG"
	ErrCodeResponseFormat    = "RESPONSE_FORMAT_ERROR"
	ErrCodeProvider          = "PROVIDER_ERROR"
	ErrCodePaperSource       = "PAPER_SOURCE_ERROR"
	ErrCodeDatabase          = "DATABASE_ERROR"
	ErrCodeCache             = "CACHE_ERROR"
	ErrCodeNotification      = "NOTIFICATION_ERROR"
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeInternal          = "INTERNAL_ERROR"
)
