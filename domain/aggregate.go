package domain

// ProductAggregate 对外的组合视图。
//
// Recommendations / Reviews 为 nil 表示未知（未请求或未提供），
// 空切片表示下游确认没有数据。
type ProductAggregate struct {
	ProductID        int                     `json:"productId"`
	Name             string                  `json:"name"`
	Weight           int                     `json:"weight"`
	Recommendations  []RecommendationSummary `json:"recommendations"`
	Reviews          []ReviewSummary         `json:"reviews"`
	ServiceAddresses *ServiceAddresses       `json:"serviceAddresses,omitempty"`
}

// RecommendationSummary 聚合中的推荐摘要
type RecommendationSummary struct {
	RecommendationID int    `json:"recommendationId"`
	Author           string `json:"author"`
	Rate             int    `json:"rate"`
	Content          string `json:"content"`
}

// ReviewSummary 聚合中的评论摘要
type ReviewSummary struct {
	ReviewID int    `json:"reviewId"`
	Author   string `json:"author"`
	Subject  string `json:"subject"`
	Content  string `json:"content"`
}

// ServiceAddresses 参与本次组合的各实例地址，仅用于诊断
type ServiceAddresses struct {
	Composite      string `json:"cmp"`
	Product        string `json:"pro"`
	Review         string `json:"rev"`
	Recommendation string `json:"rec"`
}

// Product 取出聚合中的产品部分（不带服务地址）
func (a ProductAggregate) Product() Product {
	return Product{ProductID: a.ProductID, Name: a.Name, Weight: a.Weight}
}

// RecommendationEntities 把摘要展开为以聚合 productId 为归属的实体
func (a ProductAggregate) RecommendationEntities() []Recommendation {
	if a.Recommendations == nil {
		return nil
	}
	out := make([]Recommendation, 0, len(a.Recommendations))
	for _, r := range a.Recommendations {
		out = append(out, Recommendation{
			ProductID:        a.ProductID,
			RecommendationID: r.RecommendationID,
			Author:           r.Author,
			Rate:             r.Rate,
			Content:          r.Content,
		})
	}
	return out
}

// ReviewEntities 同 RecommendationEntities
func (a ProductAggregate) ReviewEntities() []Review {
	if a.Reviews == nil {
		return nil
	}
	out := make([]Review, 0, len(a.Reviews))
	for _, r := range a.Reviews {
		out = append(out, Review{
			ProductID: a.ProductID,
			ReviewID:  r.ReviewID,
			Author:    r.Author,
			Subject:   r.Subject,
			Content:   r.Content,
		})
	}
	return out
}

// NewProductAggregate 合并产品与两个子列表。
// 子列表中的 productId / serviceAddress 不进入摘要；
// 服务地址取各列表第一个元素，列表为空时为空串。
func NewProductAggregate(compositeAddress string, product Product, recommendations []Recommendation, reviews []Review) ProductAggregate {
	agg := ProductAggregate{
		ProductID: product.ProductID,
		Name:      product.Name,
		Weight:    product.Weight,
	}

	recAddress := ""
	if recommendations != nil {
		agg.Recommendations = make([]RecommendationSummary, 0, len(recommendations))
		for _, r := range recommendations {
			agg.Recommendations = append(agg.Recommendations, RecommendationSummary{
				RecommendationID: r.RecommendationID,
				Author:           r.Author,
				Rate:             r.Rate,
				Content:          r.Content,
			})
		}
		if len(recommendations) > 0 {
			recAddress = recommendations[0].ServiceAddress
		}
	}

	revAddress := ""
	if reviews != nil {
		agg.Reviews = make([]ReviewSummary, 0, len(reviews))
		for _, r := range reviews {
			agg.Reviews = append(agg.Reviews, ReviewSummary{
				ReviewID: r.ReviewID,
				Author:   r.Author,
				Subject:  r.Subject,
				Content:  r.Content,
			})
		}
		if len(reviews) > 0 {
			revAddress = reviews[0].ServiceAddress
		}
	}

	agg.ServiceAddresses = &ServiceAddresses{
		Composite:      compositeAddress,
		Product:        product.ServiceAddress,
		Review:         revAddress,
		Recommendation: recAddress,
	}
	return agg
}
