package visuals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"product-promo-pipeline/fetch"

	"github.com/rs/zerolog"
)

const serpAPIBase = "https://serpapi.com/search.json"

// ProductImages downloads real photos of the product. It tries the image
// URLs research found first, then Google Images through SerpAPI.
type ProductImages struct {
	client  *http.Client
	serpKey string
	baseURL string
	log     zerolog.Logger
}

var _ ImageProvider = (*ProductImages)(nil)

func NewProductImages(client *http.Client, serpKey string, logger zerolog.Logger) *ProductImages {
	return &ProductImages{
		client:  client,
		serpKey: serpKey,
		baseURL: serpAPIBase,
		log:     logger.With().Str("component", "visuals").Logger(),
	}
}

func (p *ProductImages) Name() string { return "product" }

func (p *ProductImages) Resolve(ctx context.Context, r ImageRequest) (string, error) {
	out := r.outPath(p.Name(), ".jpg")
	if r.Index < len(r.ImageURLs) {
		u := r.ImageURLs[r.Index]
		err := fetch.Download(ctx, p.client, u, out, 1000)
		if err == nil {
			p.log.Debug().Int("image", r.Index).Str("url", truncate(u, 60)).Msg("product image downloaded")
			return out, nil
		}
		p.log.Debug().Err(err).Int("image", r.Index).Msg("research image failed, trying google images")
	}
	if p.serpKey == "" {
		return "", fmt.Errorf("no product image for slot %d", r.Index)
	}
	return p.searchGoogleImages(ctx, r, out)
}

type googleImagesResponse struct {
	ImagesResults []struct {
		Original string `json:"original"`
		Source   string `json:"source"`
	} `json:"images_results"`
}

func (p *ProductImages) searchGoogleImages(ctx context.Context, r ImageRequest, out string) (string, error) {
	params := url.Values{}
	params.Set("engine", "google_images")
	params.Set("q", r.Product)
	params.Set("num", strconv.Itoa(r.Index+3))
	params.Set("api_key", p.serpKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	var result googleImagesResponse
	if err := fetch.GetJSON(p.client, req, p.Name(), 0, &result); err != nil {
		return "", err
	}
	// Each slot starts at its own offset so slots do not share a photo.
	n := len(result.ImagesResults)
	for i := 0; i < n; i++ {
		img := result.ImagesResults[(r.Index+i)%n]
		if err := fetch.Download(ctx, p.client, img.Original, out, 1000); err == nil {
			p.log.Debug().Int("image", r.Index).Str("source", img.Source).Msg("google image downloaded")
			return out, nil
		}
	}
	return "", fmt.Errorf("no google image could be downloaded for slot %d", r.Index)
}
