// Package httpx 基于 chi 的 HTTP 入口
package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gocomposite/errors"
	"gocomposite/logging"
)

// RouterConfig 路由依赖
type RouterConfig struct {
	Service IProductCompositeService
	Logger  logging.Logger

	// ServiceName 服务端 span 的操作名；为空时不启用追踪中间件
	ServiceName string
}

// NewRouter 组装中间件与路由
//
// 中间件顺序：RequestID -> RealIP -> RequestContext -> Tracing -> AccessLog -> Recoverer
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ComponentLogger("httpx")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestContext)
	if cfg.ServiceName != "" {
		r.Use(Tracing(cfg.ServiceName))
	}
	r.Use(AccessLog(logger))
	r.Use(Recoverer(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, errors.NewNotFound("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, newErrorBody(r, http.StatusMethodNotAllowed, "method not allowed"))
	})

	NewProductCompositeHandler(cfg.Service, logger).Routes(r)
	return r
}

// NewServer 按 WebConfig 创建 *http.Server
func NewServer(cfg WebConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
