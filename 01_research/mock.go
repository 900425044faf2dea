package research

import (
	"context"

	"product-promo-pipeline/types"

	"github.com/samber/lo"
)

// Mock never fails. It keeps a run going when every real source is down.
type Mock struct{}

var _ Provider = Mock{}

func NewMock() Mock { return Mock{} }

func (Mock) Name() string { return "mock" }

func (Mock) Resolve(_ context.Context, q Query) (*types.ProductData, error) {
	keywords := q.Keywords
	if len(keywords) == 0 {
		keywords = []string{"premium", "quality", "performance"}
	}
	features := append([]string{}, lo.Subset(keywords, 0, 3)...)
	features = lo.Uniq(append(features, "Wireless", "Ergonomic", "Durable"))
	return &types.ProductData{
		Name:        q.Product,
		Title:       q.Product + " - Premium Edition",
		Description: q.Product + " built for everyday performance.",
		Price:       "$79.99",
		Rating:      4.7,
		Reviews:     2450,
		Features:    features,
		Source:      "mock",
	}, nil
}
