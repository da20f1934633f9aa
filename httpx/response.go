package httpx

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"gocomposite/errors"
	"gocomposite/logging"
)

// WriteJSON 写 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError 按错误代码映射状态码并写出 ErrorBody。
// 5xx 只暴露通用文案。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	message := errors.MessageOf(err)
	if status == http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	WriteJSON(w, status, newErrorBody(r, status, message))
}

func newErrorBody(r *http.Request, status int, message string) ErrorBody {
	return ErrorBody{
		Timestamp:  time.Now().UTC(),
		Path:       r.URL.Path,
		HTTPStatus: StatusReason(status),
		Message:    message,
	}
}

// StatusReason 404 -> NOT_FOUND，422 -> UNPROCESSABLE_ENTITY
func StatusReason(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "UNKNOWN"
	}
	text = strings.NewReplacer(" ", "_", "-", "_", "'", "").Replace(text)
	return strings.ToUpper(text)
}

// logFailure 4xx 记为 WARN，其余为 ERROR
func logFailure(logger logging.Logger, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	fields := []logging.Field{
		logging.String("method", r.Method),
		logging.String("path", r.URL.Path),
		logging.Int("status", status),
		logging.Error(err),
	}
	if status < 500 {
		logger.Warn(r.Context(), "request failed", fields...)
		return
	}
	logger.Error(r.Context(), "request failed", fields...)
}
