package research

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"product-promo-pipeline/config"
	"product-promo-pipeline/types"

	"github.com/vartanbeno/go-reddit/v2/reddit"
)

type postSearcher interface {
	SearchPosts(ctx context.Context, query string, subreddit string, opts *reddit.ListPostSearchOptions) ([]*reddit.Post, *reddit.Response, error)
}

// Reddit mines product discussions for features and photos
type Reddit struct {
	search postSearcher
	cfg    config.ResearchConfig
}

var _ Provider = (*Reddit)(nil)

// NewReddit uses the anonymous read-only API, so no credentials are needed
func NewReddit(cfg config.ResearchConfig) (*Reddit, error) {
	client, err := reddit.NewReadonlyClient()
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &Reddit{search: client.Subreddit, cfg: cfg}, nil
}

func (r *Reddit) Name() string { return "reddit" }

func (r *Reddit) Resolve(ctx context.Context, q Query) (*types.ProductData, error) {
	posts, _, err := r.search.SearchPosts(ctx, q.Product, strings.Join(r.cfg.Subreddits, "+"), &reddit.ListPostSearchOptions{
		ListPostOptions: reddit.ListPostOptions{
			ListOptions: reddit.ListOptions{Limit: r.cfg.MaxPosts},
			Time:        "year",
		},
		Sort: "relevance",
	})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("no reddit posts for %q", q.Product)
	}
	sort.SliceStable(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })

	var corpus strings.Builder
	data := &types.ProductData{
		Name:      q.Product,
		Title:     q.Product,
		Source:    "r/" + posts[0].SubredditName,
		SourceURL: "https://reddit.com" + posts[0].Permalink,
	}
	for _, p := range posts {
		corpus.WriteString(p.Title + " " + p.Body + " ")
		if isImageURL(p.URL) {
			data.ImageURLs = append(data.ImageURLs, p.URL)
		}
		data.Reviews += p.NumberOfComments
		if data.Description == "" && strings.TrimSpace(p.Body) != "" {
			data.Description = truncate(strings.TrimSpace(p.Body), 500)
		}
	}
	data.Features = ExtractFeatures(corpus.String(), r.cfg.MaxFeatures)
	if len(data.Features) == 0 {
		data.Features = append(data.Features, q.Keywords...)
	}
	return data, nil
}
