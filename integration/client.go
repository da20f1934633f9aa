// Package integration 封装对 product / recommendation / review 三个下游服务的访问
package integration

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gocomposite/domain"
	"gocomposite/errors"
	"gocomposite/logging"
)

// 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// ClientConfig 下游地址配置
type ClientConfig struct {
	ProductURL        string
	RecommendationURL string
	ReviewURL         string

	// HTTPClient 可注入；为空时使用带 otel 传播的共享客户端
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client 下游服务的类型化 HTTP 客户端
//
// 客户端本身不做重试与熔断，这些由 ProductReader 负责。
type Client struct {
	productURL        string
	recommendationURL string
	reviewURL         string
	http              *http.Client
	logger            logging.Logger
}

// NewClient 创建客户端
func NewClient(cfg ClientConfig) (*Client, error) {
	urls := map[string]string{
		"product":        cfg.ProductURL,
		"recommendation": cfg.RecommendationURL,
		"review":         cfg.ReviewURL,
	}
	for name, raw := range urls {
		if strings.TrimSpace(raw) == "" {
			return nil, errors.NewInvalidInput("%s service url is required", name)
		}
		if _, err := url.Parse(raw); err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, name+" service url is malformed")
		}
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.ComponentLogger("integration.client")
	}

	return &Client{
		productURL:        strings.TrimRight(cfg.ProductURL, "/"),
		recommendationURL: strings.TrimRight(cfg.RecommendationURL, "/"),
		reviewURL:         strings.TrimRight(cfg.ReviewURL, "/"),
		http:              hc,
		logger:            logger,
	}, nil
}

// GetProduct 读取产品；404 -> NotFound，422 -> InvalidInput，其它 -> Unexpected(status)
func (c *Client) GetProduct(ctx context.Context, productID, delay, faultPercent int) (domain.Product, error) {
	q := url.Values{}
	q.Set("delay", strconv.Itoa(delay))
	q.Set("faultPercent", strconv.Itoa(faultPercent))
	endpoint := fmt.Sprintf("%s/product/%d?%s", c.productURL, productID, q.Encode())

	var product domain.Product
	if err := c.getJSON(ctx, endpoint, &product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// GetRecommendations 读取推荐列表；任何失败都降级为空列表
func (c *Client) GetRecommendations(ctx context.Context, productID int) []domain.Recommendation {
	endpoint := fmt.Sprintf("%s/recommendation?productId=%d", c.recommendationURL, productID)

	var recs []domain.Recommendation
	if err := c.getJSON(ctx, endpoint, &recs); err != nil {
		c.logger.Warn(ctx, "recommendations unavailable, returning empty list",
			logging.Int("product_id", productID), logging.Error(err))
		return []domain.Recommendation{}
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return recs
}

// GetReviews 读取评论列表；任何失败都降级为空列表
func (c *Client) GetReviews(ctx context.Context, productID int) []domain.Review {
	endpoint := fmt.Sprintf("%s/review?productId=%d", c.reviewURL, productID)

	var reviews []domain.Review
	if err := c.getJSON(ctx, endpoint, &reviews); err != nil {
		c.logger.Warn(ctx, "reviews unavailable, returning empty list",
			logging.Int("product_id", productID), logging.Error(err))
		return []domain.Review{}
	}
	if reviews == nil {
		reviews = []domain.Review{}
	}
	return reviews
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.NewUnexpected(0, "failed to build downstream request", err)
	}
	req.Header.Set("Accept", "application/json")
	if rid := logging.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return errors.WrapError(err, errors.ErrCodeTimeout, "downstream request timed out")
		}
		return errors.NewUnexpected(0, "downstream request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mapStatus(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return errors.WrapError(err, errors.ErrCodeTimeout, "downstream response timed out")
		}
		return errors.NewUnexpected(resp.StatusCode, "malformed downstream response", err)
	}
	return nil
}

// mapStatus 把非 2xx 响应映射为错误
func mapStatus(resp *http.Response) error {
	msg := errorMessage(resp)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.NewError(errors.ErrCodeNotFound, msg)
	case http.StatusUnprocessableEntity:
		return errors.NewError(errors.ErrCodeInvalidInput, msg)
	default:
		return errors.NewUnexpected(resp.StatusCode, msg, nil)
	}
}

// errorMessage 取错误响应体中的 message 字段，缺失时用状态文本
func errorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("downstream status %d", resp.StatusCode)
}
