package httpx

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gocomposite/composite"
	"gocomposite/domain"
	"gocomposite/errors"
	"gocomposite/logging"
)

// MaxBodyBytes POST 请求体上限
const MaxBodyBytes = 1 << 20

// IProductCompositeService 处理器依赖的业务接口
type IProductCompositeService interface {
	GetProductAggregate(ctx context.Context, productID int, opts composite.ReadOptions) (domain.ProductAggregate, error)
	CreateProductAggregate(ctx context.Context, aggregate domain.ProductAggregate) error
	DeleteProductAggregate(ctx context.Context, productID int) error
}

// ProductCompositeHandler /product-composite 资源
type ProductCompositeHandler struct {
	service IProductCompositeService
	logger  logging.Logger
}

// NewProductCompositeHandler 创建处理器
func NewProductCompositeHandler(service IProductCompositeService, logger logging.Logger) *ProductCompositeHandler {
	if logger == nil {
		logger = logging.ComponentLogger("httpx")
	}
	return &ProductCompositeHandler{service: service, logger: logger}
}

// Routes 注册路由
func (h *ProductCompositeHandler) Routes(r chi.Router) {
	r.Route("/product-composite", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/{productId}", h.get)
		r.Delete("/{productId}", h.delete)
	})
}

func (h *ProductCompositeHandler) get(w http.ResponseWriter, r *http.Request) {
	productID, err := PathInt(r, "productId")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	delay, err := QueryInt(r, "delay", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	faultPercent, err := QueryInt(r, "faultPercent", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	aggregate, err := h.service.GetProductAggregate(r.Context(), productID, composite.ReadOptions{
		Delay:        delay,
		FaultPercent: faultPercent,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, aggregate)
}

func (h *ProductCompositeHandler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	var aggregate domain.ProductAggregate
	if err := json.NewDecoder(r.Body).Decode(&aggregate); err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			h.fail(w, r, errors.WrapError(err, errors.ErrCodeBadRequest,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)))
			return
		}
		h.fail(w, r, errors.WrapError(err, errors.ErrCodeBadRequest, "malformed product aggregate"))
		return
	}

	if err := h.service.CreateProductAggregate(r.Context(), aggregate); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *ProductCompositeHandler) delete(w http.ResponseWriter, r *http.Request) {
	productID, err := PathInt(r, "productId")
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.service.DeleteProductAggregate(r.Context(), productID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *ProductCompositeHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	logFailure(h.logger, r, err)
	WriteError(w, r, err)
}
