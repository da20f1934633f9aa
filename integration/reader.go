package integration

import (
	"context"
	"fmt"

	"gocomposite/domain"
	"gocomposite/errors"
	"gocomposite/logging"
	"gocomposite/resilience"
)

// ProductSource 产品读取的原始来源（通常是 *Client）
type ProductSource interface {
	GetProduct(ctx context.Context, productID, delay, faultPercent int) (domain.Product, error)
}

// ProductReader 在弹性策略保护下读取产品，失败时走回退
type ProductReader struct {
	source         ProductSource
	policy         *resilience.Policy
	absent         AbsentCache
	serviceAddress string
	logger         logging.Logger
}

// NewProductReader absent 为空时不做负结果缓存
func NewProductReader(source ProductSource, policy *resilience.Policy, absent AbsentCache, serviceAddress string, logger logging.Logger) *ProductReader {
	if logger == nil {
		logger = logging.ComponentLogger("integration.product")
	}
	return &ProductReader{
		source:         source,
		policy:         policy,
		absent:         absent,
		serviceAddress: serviceAddress,
		logger:         logger,
	}
}

// GetProduct NotFound / InvalidInput 原样返回；其余失败（含熔断拒绝）交给 Fallback
func (r *ProductReader) GetProduct(ctx context.Context, productID, delay, faultPercent int) (domain.Product, error) {
	product, err := resilience.Call(ctx, r.policy, func(ctx context.Context) (domain.Product, error) {
		return r.source.GetProduct(ctx, productID, delay, faultPercent)
	})
	switch {
	case err == nil:
		return product, nil
	case errors.IsNotFound(err):
		r.remember(ctx, productID)
		return domain.Product{}, err
	case errors.IsInvalidInput(err):
		return domain.Product{}, err
	case ctx.Err() != nil:
		// 调用方已放弃，回退结果无人接收
		return domain.Product{}, errors.Normalize(err)
	}
	return r.Fallback(ctx, productID, delay, faultPercent, err)
}

// Fallback 已知不存在的ID返回 NotFound，否则返回以本地地址标记的降级产品
func (r *ProductReader) Fallback(ctx context.Context, productID, delay, faultPercent int, cause error) (domain.Product, error) {
	r.logger.Warn(ctx, "creating fail-fast fallback product",
		logging.Int("product_id", productID),
		logging.Int("delay", delay),
		logging.Int("fault_percent", faultPercent),
		logging.String("cause_code", string(errors.GetErrorCode(cause))),
		logging.Error(cause),
	)

	if r.absent != nil {
		absent, err := r.absent.IsAbsent(ctx, productID)
		if err != nil {
			r.logger.Warn(ctx, "known-absent lookup failed", logging.Int("product_id", productID), logging.Error(err))
		}
		if absent {
			msg := fmt.Sprintf("Product Id: %d not found in fallback cache!", productID)
			r.logger.Warn(ctx, msg)
			return domain.Product{}, errors.NewError(errors.ErrCodeNotFound, msg)
		}
	}

	return domain.Product{
		ProductID:      productID,
		Name:           fmt.Sprintf("Fallback product%d", productID),
		Weight:         productID,
		ServiceAddress: r.serviceAddress,
	}, nil
}

func (r *ProductReader) remember(ctx context.Context, productID int) {
	if r.absent == nil {
		return
	}
	if err := r.absent.MarkAbsent(ctx, productID); err != nil {
		r.logger.Warn(ctx, "failed to remember absent product", logging.Int("product_id", productID), logging.Error(err))
	}
}
