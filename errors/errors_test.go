package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_NilError(t *testing.T) {
	require.Nil(t, Wrap(context.Background(), nil, ErrCodeInternal, "消息"))
	require.Nil(t, WrapWithLog(context.Background(), nil, ErrCodeQueue, "消息"))
}

func TestWrap_KeepsCause(t *testing.T) {
	original := stdErrors.New("原始错误")

	wrapped := Wrap(context.Background(), original, ErrCodeBadRequest, "包装消息")

	require.Error(t, wrapped)
	assert.True(t, stdErrors.Is(wrapped, original))
	assert.Equal(t, ErrCodeBadRequest, GetErrorCode(wrapped))
}

func TestIsErrorCode_ThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewNotFound("product %d", 7))

	assert.True(t, IsNotFound(err))
	assert.True(t, IsTerminal(err))
	assert.False(t, IsTransient(err))
	assert.True(t, stdErrors.Is(err, ErrNotFound))
	assert.False(t, stdErrors.Is(err, ErrInvalidInput))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: NewError(ErrCodeTimeout, "slow"), want: true},
		{name: "5xx", err: NewUnexpected(503, "unavailable", nil), want: true},
		{name: "transport", err: NewUnexpected(0, "connection refused", nil), want: true},
		{name: "4xx", err: NewUnexpected(400, "bad request", nil), want: false},
		{name: "not found", err: NewNotFound("missing"), want: false},
		{name: "invalid", err: NewInvalidInput("bad id"), want: false},
		{name: "plain error", err: stdErrors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestUpstreamStatus(t *testing.T) {
	status, ok := UpstreamStatus(NewUnexpected(502, "bad gateway", nil))
	require.True(t, ok)
	assert.Equal(t, 502, status)

	_, ok = UpstreamStatus(stdErrors.New("plain"))
	assert.False(t, ok)
}

func TestWithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := NewError(ErrCodeInternal, "base")
	derived := base.WithDetails(map[string]any{"k": "v"}).WithContext("id", 1)

	assert.Empty(t, base.Details())
	assert.Equal(t, "v", derived.Details()["k"])
	assert.Equal(t, 1, derived.Details()["id"])
	assert.Equal(t, base.Stack(), derived.Stack())
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	app := NewNotFound("x")
	assert.Same(t, app, Normalize(app))

	assert.Equal(t, ErrCodeTimeout, GetErrorCode(Normalize(context.DeadlineExceeded)))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(Normalize(context.Canceled)))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(Normalize(stdErrors.New("boom"))))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(NewInvalidInput("bad")))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NewNotFound("missing")))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(NewError(ErrCodeBadRequest, "malformed")))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(NewError(ErrCodeQueue, "closed")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NewUnexpected(500, "boom", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(NewError(ErrCodeCircuitOpen, "open")))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stdErrors.New("plain")))
}

func TestMessageOf_HidesPlainErrors(t *testing.T) {
	assert.Equal(t, "missing", MessageOf(NewNotFound("missing")))
	assert.Equal(t, "internal server error", MessageOf(stdErrors.New("sql: secret detail")))
}
