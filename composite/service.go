// Package composite 组合产品聚合：并发读取三个下游，写操作转为分区键事件
package composite

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"gocomposite/domain"
	"gocomposite/errors"
	"gocomposite/eventing"
	"gocomposite/logging"
	"gocomposite/validation"
)

// IProductReader 产品读取（带弹性策略与回退）
type IProductReader interface {
	GetProduct(ctx context.Context, productID, delay, faultPercent int) (domain.Product, error)
}

// IRecommendationReader 推荐读取，失败时返回空列表
type IRecommendationReader interface {
	GetRecommendations(ctx context.Context, productID int) []domain.Recommendation
}

// IReviewReader 评论读取，失败时返回空列表
type IReviewReader interface {
	GetReviews(ctx context.Context, productID int) []domain.Review
}

// IEventPublisher 事件发布；批内按顺序投递
type IEventPublisher interface {
	PublishBatch(ctx context.Context, batch []eventing.Outbound) error
}

// ReadOptions 透传给 product 服务的故障注入参数
type ReadOptions struct {
	Delay        int
	FaultPercent int
}

// Dependencies 服务依赖
type Dependencies struct {
	Products        IProductReader
	Recommendations IRecommendationReader
	Reviews         IReviewReader
	Publisher       IEventPublisher

	// ServiceAddress 本实例地址，写入聚合的 serviceAddresses.cmp
	ServiceAddress string
	// BuildVersion 附加到每个 span 的 build.version
	BuildVersion string

	Logger logging.Logger
	Tracer trace.Tracer
}

// Service 产品聚合服务
type Service struct {
	products        IProductReader
	recommendations IRecommendationReader
	reviews         IReviewReader
	publisher       IEventPublisher
	serviceAddress  string
	buildVersion    string
	logger          logging.Logger
	tracer          trace.Tracer
}

// NewService 创建服务
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = logging.ComponentLogger("composite")
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer("gocomposite/composite")
	}
	return &Service{
		products:        deps.Products,
		recommendations: deps.Recommendations,
		reviews:         deps.Reviews,
		publisher:       deps.Publisher,
		serviceAddress:  deps.ServiceAddress,
		buildVersion:    deps.BuildVersion,
		logger:          logger,
		tracer:          tracer,
	}
}

// GetProductAggregate 并发读取产品、推荐和评论并合并
//
// 推荐与评论失败已在读取端降级为空列表；只有产品读取的错误会返回。
func (s *Service) GetProductAggregate(ctx context.Context, productID int, opts ReadOptions) (domain.ProductAggregate, error) {
	ctx, span := s.startSpan(ctx, "composite.get", productID)
	defer span.End()

	if err := validateID(productID); err != nil {
		return domain.ProductAggregate{}, s.fail(ctx, span, "get", productID, err)
	}

	s.logger.Debug(ctx, "reading product aggregate", logging.Int("product_id", productID))

	var (
		product domain.Product
		recs    []domain.Recommendation
		reviews []domain.Review
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		product, err = s.products.GetProduct(gctx, productID, opts.Delay, opts.FaultPercent)
		return err
	})
	g.Go(func() error {
		recs = s.recommendations.GetRecommendations(gctx, productID)
		return nil
	})
	g.Go(func() error {
		reviews = s.reviews.GetReviews(gctx, productID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.ProductAggregate{}, s.fail(ctx, span, "get", productID, err)
	}

	return domain.NewProductAggregate(s.serviceAddress, product, recs, reviews), nil
}

// CreateProductAggregate 拆分为 product / recommendation / review 的 CREATE 事件，
// 作为一个有序批次发布。
func (s *Service) CreateProductAggregate(ctx context.Context, aggregate domain.ProductAggregate) error {
	ctx, span := s.startSpan(ctx, "composite.create", aggregate.ProductID)
	defer span.End()

	if err := validateID(aggregate.ProductID); err != nil {
		return s.fail(ctx, span, "create", aggregate.ProductID, err)
	}

	key := aggregate.ProductID
	batch := []eventing.Outbound{{
		Destination: eventing.DestinationProducts,
		Event:       eventing.NewCreateEvent(key, aggregate.Product()),
	}}
	for _, r := range aggregate.RecommendationEntities() {
		batch = append(batch, eventing.Outbound{
			Destination: eventing.DestinationRecommendations,
			Event:       eventing.NewCreateEvent(key, r),
		})
	}
	for _, r := range aggregate.ReviewEntities() {
		batch = append(batch, eventing.Outbound{
			Destination: eventing.DestinationReviews,
			Event:       eventing.NewCreateEvent(key, r),
		})
	}
	span.SetAttributes(attribute.Int("events.count", len(batch)))

	if err := s.publisher.PublishBatch(ctx, batch); err != nil {
		return s.fail(ctx, span, "create", aggregate.ProductID, err)
	}
	s.logger.Info(ctx, "product aggregate create published",
		logging.Int("product_id", aggregate.ProductID), logging.Int("events", len(batch)))
	return nil
}

// DeleteProductAggregate 向三个目的地各发布一个 DELETE 事件
func (s *Service) DeleteProductAggregate(ctx context.Context, productID int) error {
	ctx, span := s.startSpan(ctx, "composite.delete", productID)
	defer span.End()

	if err := validateID(productID); err != nil {
		return s.fail(ctx, span, "delete", productID, err)
	}

	batch := []eventing.Outbound{
		{Destination: eventing.DestinationProducts, Event: eventing.NewDeleteEvent[int, domain.Product](productID)},
		{Destination: eventing.DestinationRecommendations, Event: eventing.NewDeleteEvent[int, domain.Recommendation](productID)},
		{Destination: eventing.DestinationReviews, Event: eventing.NewDeleteEvent[int, domain.Review](productID)},
	}
	if err := s.publisher.PublishBatch(ctx, batch); err != nil {
		return s.fail(ctx, span, "delete", productID, err)
	}
	s.logger.Info(ctx, "product aggregate delete published", logging.Int("product_id", productID))
	return nil
}

func validateID(productID int) error {
	return validation.ValidatePositive(productID, "productId")
}

func (s *Service) startSpan(ctx context.Context, name string, productID int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.Int("product.id", productID)}
	if s.buildVersion != "" {
		attrs = append(attrs, attribute.String("build.version", s.buildVersion))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// fail 记录并原样返回错误
func (s *Service) fail(ctx context.Context, span trace.Span, op string, productID int, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, errors.MessageOf(err))
	s.logger.Warn(ctx, "product aggregate "+op+" failed",
		logging.Int("product_id", productID),
		logging.String("code", string(errors.GetErrorCode(err))),
		logging.Error(err),
	)
	return err
}
