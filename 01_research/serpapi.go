package research

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"product-promo-pipeline/config"
	"product-promo-pipeline/fetch"
	"product-promo-pipeline/types"
)

const serpAPIBase = "https://serpapi.com/search.json"

// SerpAPI searches Google Shopping for the product
type SerpAPI struct {
	client  *http.Client
	key     string
	cfg     config.ResearchConfig
	baseURL string
}

var _ Provider = (*SerpAPI)(nil)

func NewSerpAPI(client *http.Client, key string, cfg config.ResearchConfig) *SerpAPI {
	return &SerpAPI{client: client, key: key, cfg: cfg, baseURL: serpAPIBase}
}

func (s *SerpAPI) Name() string { return "serpapi" }

type shoppingResponse struct {
	ShoppingResults []struct {
		Title     string  `json:"title"`
		Price     string  `json:"price"`
		Rating    float64 `json:"rating"`
		Reviews   int     `json:"reviews"`
		Source    string  `json:"source"`
		Link      string  `json:"link"`
		Thumbnail string  `json:"thumbnail"`
		Image     string  `json:"image"`
	} `json:"shopping_results"`
}

func (s *SerpAPI) Resolve(ctx context.Context, q Query) (*types.ProductData, error) {
	params := url.Values{}
	params.Set("engine", "google_shopping")
	params.Set("q", q.Product)
	params.Set("api_key", s.key)
	params.Set("num", strconv.Itoa(3))
	params.Set("gl", s.cfg.ShoppingCountry)
	params.Set("hl", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var result shoppingResponse
	if err := fetch.GetJSON(s.client, req, s.Name(), 0, &result); err != nil {
		return nil, err
	}
	if len(result.ShoppingResults) == 0 {
		return nil, fmt.Errorf("no shopping results for %q", q.Product)
	}

	top := result.ShoppingResults[0]
	data := &types.ProductData{
		Name:      q.Product,
		Title:     top.Title,
		Price:     top.Price,
		Rating:    top.Rating,
		Reviews:   top.Reviews,
		SourceURL: top.Link,
		Source:    top.Source,
		Features:  ExtractFeatures(top.Title, s.cfg.MaxFeatures),
	}
	for _, r := range result.ShoppingResults {
		img := r.Thumbnail
		if img == "" {
			img = r.Image
		}
		if img != "" {
			data.ImageURLs = append(data.ImageURLs, img)
		}
	}
	data.Description = fmt.Sprintf("%s from %s", top.Title, top.Source)
	return data, nil
}
