package errors

import (
	"context"
	stdErrors "errors"
	"net/http"
)

// Normalize 将基础设施层的“裸”错误规范化为 AppError。
//
// 注意：
//   - 已经是 IError 的错误原样返回；
//   - context 超时归为 TIMEOUT，取消归为 INTERNAL，保留原始错误作为 cause。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(IError); ok {
		return err
	}

	if stdErrors.Is(err, context.DeadlineExceeded) {
		return WrapError(err, ErrCodeTimeout, "操作超时")
	}
	if stdErrors.Is(err, context.Canceled) {
		return WrapError(err, ErrCodeInternal, "请求已取消")
	}

	return WrapError(err, ErrCodeInternal, "内部服务器错误")
}

// HTTPStatus 错误代码到 HTTP 状态码的映射
func HTTPStatus(err error) int {
	switch GetErrorCode(err) {
	case ErrCodeInvalidInput:
		return http.StatusUnprocessableEntity
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeQueue:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
