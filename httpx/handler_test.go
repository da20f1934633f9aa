package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocomposite/composite"
	"gocomposite/domain"
	"gocomposite/errors"
	"gocomposite/logging"
)

type fakeService struct {
	getErr    error
	writeErr  error
	gotOpts   composite.ReadOptions
	created   *domain.ProductAggregate
	deletedID int
	panicOn   int
}

func (f *fakeService) GetProductAggregate(ctx context.Context, productID int, opts composite.ReadOptions) (domain.ProductAggregate, error) {
	if productID == f.panicOn {
		panic("boom")
	}
	f.gotOpts = opts
	if f.getErr != nil {
		return domain.ProductAggregate{}, f.getErr
	}
	return domain.ProductAggregate{ProductID: productID, Name: "name"}, nil
}

func (f *fakeService) CreateProductAggregate(ctx context.Context, aggregate domain.ProductAggregate) error {
	f.created = &aggregate
	return f.writeErr
}

func (f *fakeService) DeleteProductAggregate(ctx context.Context, productID int) error {
	f.deletedID = productID
	return f.writeErr
}

func serve(t *testing.T, svc IProductCompositeService, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(RouterConfig{Service: svc, Logger: logging.NewNoopLogger()})
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGet_PassesFaultInjectionParameters(t *testing.T) {
	svc := &fakeService{}

	rec := serve(t, svc, http.MethodGet, "/product-composite/3?delay=2&faultPercent=50", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, composite.ReadOptions{Delay: 2, FaultPercent: 50}, svc.gotOpts)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	var agg domain.ProductAggregate
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, 3, agg.ProductID)
}

func TestGet_ErrorMapping(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		reason  string
		message string
	}{
		{errors.NewNotFound("Product Id: 13 not found in fallback cache!"), 404, "NOT_FOUND", "Product Id: 13 not found in fallback cache!"},
		{errors.NewInvalidInput("Invalid productId: -1"), 422, "UNPROCESSABLE_ENTITY", "Invalid productId: -1"},
		{errors.NewUnexpected(500, "db exploded at 10.0.0.3", nil), 500, "INTERNAL_SERVER_ERROR", "Internal Server Error"},
	}
	for _, tc := range cases {
		rec := serve(t, &fakeService{getErr: tc.err}, http.MethodGet, "/product-composite/13", "")

		assert.Equal(t, tc.status, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, "/product-composite/13", body.Path)
		assert.Equal(t, tc.reason, body.HTTPStatus)
		assert.Equal(t, tc.message, body.Message)
		assert.False(t, body.Timestamp.IsZero())
	}
}

func TestGet_MalformedInputIsBadRequest(t *testing.T) {
	for _, target := range []string{"/product-composite/abc", "/product-composite/1?delay=x", "/product-composite/1?faultPercent=1.5"} {
		rec := serve(t, &fakeService{}, http.MethodGet, target, "")

		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).HTTPStatus)
	}
}

func TestCreate_Accepted(t *testing.T) {
	svc := &fakeService{}

	rec := serve(t, svc, http.MethodPost, "/product-composite",
		`{"productId":1,"name":"n","weight":2,"recommendations":[{"recommendationId":1,"author":"a","rate":1,"content":"c"}]}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, svc.created)
	assert.Equal(t, 1, svc.created.ProductID)
	assert.Len(t, svc.created.Recommendations, 1)
	assert.Nil(t, svc.created.Reviews)
}

func TestCreate_MalformedBody(t *testing.T) {
	rec := serve(t, &fakeService{}, http.MethodPost, "/product-composite", `{"productId":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreate_BodyTooLarge(t *testing.T) {
	svc := &fakeService{}
	body := `{"productId":1,"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`

	rec := serve(t, svc, http.MethodPost, "/product-composite", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.created)
	assert.Contains(t, decodeError(t, rec).Message, "exceeds")
}

func TestWrite_ErrorsPropagate(t *testing.T) {
	svc := &fakeService{writeErr: errors.NewError(errors.ErrCodeQueue, "publisher is not running")}

	rec := serve(t, svc, http.MethodDelete, "/product-composite/1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).HTTPStatus)

	svc.writeErr = errors.NewInvalidInput("Invalid productId: 0")
	rec = serve(t, svc, http.MethodPost, "/product-composite", `{"productId":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDelete_Accepted(t *testing.T) {
	svc := &fakeService{}

	rec := serve(t, svc, http.MethodDelete, "/product-composite/5", "")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 5, svc.deletedID)
}

func TestRecoverer_WritesErrorBody(t *testing.T) {
	rec := serve(t, &fakeService{panicOn: 9}, http.MethodGet, "/product-composite/9", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.HTTPStatus)
	assert.NotContains(t, body.Message, "boom")
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(t, &fakeService{}, http.MethodGet, "/nope", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/nope", decodeError(t, rec).Path)
}

func TestStatusReason(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", StatusReason(404))
	assert.Equal(t, "UNPROCESSABLE_ENTITY", StatusReason(422))
	assert.Equal(t, "IM_A_TEAPOT", StatusReason(418))
	assert.Equal(t, "UNKNOWN", StatusReason(599))
}
