package httpx

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"gocomposite/errors"
	"gocomposite/logging"
)

// RequestContext 把 chi 生成的请求ID放入日志上下文并回写 X-Request-ID。
// 需放在 middleware.RequestID 之后。
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
			r = r.WithContext(logging.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// AccessLog 请求结束后记录一条访问日志
func AccessLog(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info(r.Context(), "http request",
					logging.String("method", r.Method),
					logging.String("path", r.URL.Path),
					logging.Int("status", ww.Status()),
					logging.Int("bytes", ww.BytesWritten()),
					logging.Duration("latency", time.Since(start)),
					logging.String("remote", r.RemoteAddr),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Recoverer panic 转为 500 ErrorBody
func Recoverer(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error(r.Context(), "panic recovered",
					logging.Any("panic", rec),
					logging.String("stack", string(debug.Stack())),
				)
				WriteError(w, r, errors.NewError(errors.ErrCodeInternal, fmt.Sprint(rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
