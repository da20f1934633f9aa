package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"gocomposite/errors"
)

// PathInt 解析路径参数；非整数返回 BAD_REQUEST，范围校验交给业务层
func PathInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return 0, errors.NewError(errors.ErrCodeBadRequest, fmt.Sprintf("parameter %s cannot be empty", name))
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeBadRequest,
			fmt.Sprintf("Type mismatch: parameter %s must be an integer", name))
	}
	return v, nil
}

// QueryInt 解析可选查询参数，缺失时返回 def
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.WrapError(err, errors.ErrCodeBadRequest,
			fmt.Sprintf("Type mismatch: query parameter %s must be an integer", name))
	}
	return v, nil
}
