package httpx

import "time"

// ErrorBody 统一错误响应
//
// HTTPStatus 是枚举形式的状态短语，例如 NOT_FOUND、UNPROCESSABLE_ENTITY。
type ErrorBody struct {
	Timestamp  time.Time `json:"timestamp"`
	Path       string    `json:"path"`
	HTTPStatus string    `json:"httpStatus"`
	Message    string    `json:"message"`
}

// WebConfig HTTP 服务基础配置
type WebConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// DefaultWebConfig 默认配置
func DefaultWebConfig() WebConfig {
	return WebConfig{
		Addr:            ":7000",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}
