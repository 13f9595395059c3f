package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，接口层据此映射状态码
type ErrorKind string

const (
	KindInvalidPricingConfig ErrorKind = "InvalidPricingConfig"
	KindInvalidRate          ErrorKind = "InvalidRate"
	KindOverlappingPeriod    ErrorKind = "OverlappingPeriod"
	KindInvalidTransition    ErrorKind = "InvalidTransition"
	KindValidation           ErrorKind = "ValidationError"
	KindNotFound             ErrorKind = "NotFound"
	KindConcurrencyConflict  ErrorKind = "ConcurrencyConflict"
)

// Error 领域错误，携带分类与可读原因
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按分类比较，使 errors.Is(err, ErrNotFound) 对任意 NotFound 错误成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// 哨兵错误，仅用于 errors.Is 判断
var (
	ErrInvalidPricingConfig = &Error{Kind: KindInvalidPricingConfig}
	ErrInvalidRate          = &Error{Kind: KindInvalidRate}
	ErrOverlappingPeriod    = &Error{Kind: KindOverlappingPeriod}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrConcurrencyConflict  = &Error{Kind: KindConcurrencyConflict}
)

// NewError 创建带格式化原因的领域错误
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError 包装底层错误
func WrapError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误分类，非领域错误返回空串
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// MessageOf 返回领域错误的可读原因
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
