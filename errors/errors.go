package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorCode 错误代码类型
type ErrorCode string

// 预定义错误代码
const (
	// 语义错误：终态，不重试
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"

	// 下游/基础设施错误
	ErrCodeUnexpected  ErrorCode = "UNEXPECTED"
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	ErrCodeQueue       ErrorCode = "QUEUE_ERROR"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// DetailStatus 下游返回的原始 HTTP 状态码所在的详情键
const DetailStatus = "status"

// IError 错误接口
type IError interface {
	error

	// 获取错误代码
	Code() ErrorCode

	// 获取错误消息
	Message() string

	// 获取原始错误
	Cause() error

	// 获取错误详情
	Details() map[string]any

	// 获取堆栈信息
	Stack() string

	Is(target error) bool

	WithDetails(details map[string]any) IError

	WithContext(key string, value any) IError
}

// AppError 应用错误实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	stack   string
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{
		code:    code,
		message: message,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// NewErrorWithCause 创建带原因的错误
func NewErrorWithCause(code ErrorCode, message string, cause error) IError {
	return &AppError{
		code:    code,
		message: message,
		cause:   cause,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// WrapError 包装错误；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}

	return &AppError{
		code:    code,
		message: message,
		cause:   err,
		details: make(map[string]any),
		stack:   captureStack(),
	}
}

// NewInvalidInput 创建输入非法错误（映射为 422）
func NewInvalidInput(format string, args ...any) IError {
	return NewError(ErrCodeInvalidInput, fmt.Sprintf(format, args...))
}

// NewNotFound 创建资源不存在错误（映射为 404）
func NewNotFound(format string, args ...any) IError {
	return NewError(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

// NewUnexpected 创建下游非预期错误，status 为下游原始状态码，0 表示传输层失败。
func NewUnexpected(status int, message string, cause error) IError {
	e := &AppError{
		code:    ErrCodeUnexpected,
		message: message,
		cause:   cause,
		details: map[string]any{DetailStatus: status},
		stack:   captureStack(),
	}
	return e
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Code 获取错误代码
func (e *AppError) Code() ErrorCode {
	return e.code
}

// Message 获取错误消息
func (e *AppError) Message() string {
	return e.message
}

// Cause 获取原始错误
func (e *AppError) Cause() error {
	return e.cause
}

// Details 获取错误详情
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	return e.details
}

// Stack 获取堆栈信息
func (e *AppError) Stack() string {
	return e.stack
}

// Is 按错误代码比较；否则沿 cause 链继续匹配
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}

	if appErr, ok := target.(*AppError); ok {
		return e.code == appErr.code
	}

	if e.cause != nil {
		return stdErrors.Is(e.cause, target)
	}

	return false
}

// Unwrap 解包错误（支持 errors.Unwrap）
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails 添加详情
func (e *AppError) WithDetails(details map[string]any) IError {
	newDetails := copyMap(e.details)
	for k, v := range details {
		newDetails[k] = v
	}

	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// WithContext 添加上下文
func (e *AppError) WithContext(key string, value any) IError {
	newDetails := copyMap(e.details)
	newDetails[key] = value

	return &AppError{
		code:    e.code,
		message: e.message,
		cause:   e.cause,
		details: newDetails,
		stack:   e.stack,
	}
}

// 预定义错误变量，用于 errors.Is 按代码匹配
var (
	ErrInvalidInput = NewError(ErrCodeInvalidInput, "无效的输入参数")
	ErrNotFound     = NewError(ErrCodeNotFound, "资源未找到")
	ErrUnexpected   = NewError(ErrCodeUnexpected, "下游服务异常")
	ErrTimeout      = NewError(ErrCodeTimeout, "操作超时")
	ErrCircuitOpen  = NewError(ErrCodeCircuitOpen, "熔断器已打开")
	ErrQueue        = NewError(ErrCodeQueue, "队列错误")
	ErrInternal     = NewError(ErrCodeInternal, "内部服务器错误")
)

// IsNotFound 检查是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsInvalidInput 检查是否为输入非法错误
func IsInvalidInput(err error) bool {
	return IsErrorCode(err, ErrCodeInvalidInput)
}

// IsCircuitOpen 检查是否为熔断拒绝
func IsCircuitOpen(err error) bool {
	return IsErrorCode(err, ErrCodeCircuitOpen)
}

// IsTerminal 语义性结果（NotFound / InvalidInput），既不重试也不计入熔断失败。
func IsTerminal(err error) bool {
	return IsNotFound(err) || IsInvalidInput(err)
}

// IsTransient 瞬时故障：超时、传输层失败或下游 5xx。
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch GetErrorCode(err) {
	case ErrCodeTimeout:
		return true
	case ErrCodeUnexpected:
		status, ok := UpstreamStatus(err)
		return !ok || status == 0 || status >= 500
	default:
		return false
	}
}

// UpstreamStatus 取出 Unexpected 错误携带的下游状态码
func UpstreamStatus(err error) (int, bool) {
	var appErr *AppError
	if !stdErrors.As(err, &appErr) {
		return 0, false
	}
	status, ok := appErr.Details()[DetailStatus].(int)
	return status, ok
}

// IsErrorCode 检查是否为指定错误代码（取错误链上第一个 AppError）
func IsErrorCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code == code
	}

	return false
}

// GetErrorCode 获取错误代码
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}

	return ErrCodeInternal
}

// MessageOf 返回可对外暴露的消息：AppError 取 message，其余统一为通用文案。
func MessageOf(err error) string {
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.message
	}
	return "internal server error"
}

// captureStack 捕获堆栈信息
func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		builder.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))

		if !more {
			break
		}
	}

	return builder.String()
}

// copyMap 复制映射
func copyMap(original map[string]any) map[string]any {
	if original == nil {
		return make(map[string]any)
	}

	copied := make(map[string]any, len(original))
	for k, v := range original {
		copied[k] = v
	}

	return copied
}
