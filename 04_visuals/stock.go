package visuals

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"

	"product-promo-pipeline/fetch"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	pexelsPhotoAPI  = "https://api.pexels.com/v1/search"
	pexelsVideoAPI  = "https://api.pexels.com/videos/search"
	pixabayVideoAPI = "https://pixabay.com/api/videos/"

	// minClipBytes rejects error pages served with a 200
	minClipBytes = 10 * 1024
)

// PexelsPhotos searches Pexels for portrait stock photos
type PexelsPhotos struct {
	client  *http.Client
	key     string
	baseURL string
}

var _ ImageProvider = (*PexelsPhotos)(nil)

func NewPexelsPhotos(client *http.Client, key string) *PexelsPhotos {
	return &PexelsPhotos{client: client, key: key, baseURL: pexelsPhotoAPI}
}

func (p *PexelsPhotos) Name() string { return "pexels" }

type pexelsPhotoResponse struct {
	Photos []struct {
		ID  int `json:"id"`
		Src struct {
			Large2x  string `json:"large2x"`
			Portrait string `json:"portrait"`
		} `json:"src"`
	} `json:"photos"`
}

func (p *PexelsPhotos) Resolve(ctx context.Context, r ImageRequest) (string, error) {
	params := url.Values{}
	params.Set("query", r.Query())
	params.Set("per_page", "5")
	params.Set("orientation", "portrait")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", p.key)

	var result pexelsPhotoResponse
	if err := fetch.GetJSON(p.client, req, p.Name(), 0, &result); err != nil {
		return "", err
	}
	if len(result.Photos) == 0 {
		return "", fmt.Errorf("no pexels photos for %q", r.Query())
	}
	photo := result.Photos[r.Index%len(result.Photos)]
	src := photo.Src.Portrait
	if src == "" {
		src = photo.Src.Large2x
	}
	out := r.outPath(p.Name(), ".jpg")
	if err := fetch.Download(ctx, p.client, src, out, 1000); err != nil {
		return "", err
	}
	return out, nil
}

// PexelsVideos downloads portrait stock clips, preferring exact 1080x1920 files
type PexelsVideos struct {
	client  *http.Client
	key     string
	baseURL string
	workers int
	log     zerolog.Logger
}

var _ ClipProvider = (*PexelsVideos)(nil)

func NewPexelsVideos(client *http.Client, key string, workers int, logger zerolog.Logger) *PexelsVideos {
	return &PexelsVideos{
		client:  client,
		key:     key,
		baseURL: pexelsVideoAPI,
		workers: workers,
		log:     logger.With().Str("component", "visuals").Logger(),
	}
}

func (p *PexelsVideos) Name() string { return "pexels" }

type pexelsVideoFile struct {
	Link   string `json:"link"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type pexelsVideoResponse struct {
	Videos []struct {
		ID         int               `json:"id"`
		VideoFiles []pexelsVideoFile `json:"video_files"`
	} `json:"videos"`
}

func (p *PexelsVideos) Resolve(ctx context.Context, r ClipRequest) ([]types.MediaFile, error) {
	d := &clipDownloader{client: p.client, provider: p.Name(), dir: r.Dir, count: r.Count, workers: p.workers, log: p.log, seen: make(map[int]bool)}
	for _, kw := range searchTerms(r.Keywords) {
		if d.full() {
			break
		}
		result, err := p.search(ctx, kw, r.Count)
		if err != nil {
			if d.partial(err, kw) {
				break
			}
			return nil, err
		}
		var found []clipCandidate
		for _, v := range result.Videos {
			if file, ok := bestPortraitFile(v.VideoFiles); ok {
				found = append(found, clipCandidate{id: v.ID, link: file.Link})
			}
		}
		d.fetch(ctx, found)
	}
	return d.result(r.Keywords)
}

func (p *PexelsVideos) search(ctx context.Context, query string, count int) (*pexelsVideoResponse, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(count))
	params.Set("orientation", "portrait") // vertical videos for shorts

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", p.key)
	var result pexelsVideoResponse
	if err := fetch.GetJSON(p.client, req, p.Name(), 0, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// bestPortraitFile picks 1080x1920 when offered, else the tallest portrait
// rendition, else the widest file of any shape.
func bestPortraitFile(files []pexelsVideoFile) (pexelsVideoFile, bool) {
	files = lo.Filter(files, func(f pexelsVideoFile, _ int) bool { return f.Link != "" })
	if len(files) == 0 {
		return pexelsVideoFile{}, false
	}
	if hd, ok := lo.Find(files, func(f pexelsVideoFile) bool { return f.Width == 1080 && f.Height == 1920 }); ok {
		return hd, true
	}
	portrait := lo.Filter(files, func(f pexelsVideoFile, _ int) bool { return f.Height > f.Width })
	if len(portrait) > 0 {
		sort.SliceStable(portrait, func(i, j int) bool { return portrait[i].Height > portrait[j].Height })
		return portrait[0], true
	}
	sorted := append([]pexelsVideoFile(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Width > sorted[j].Width })
	return sorted[0], true
}

// Pixabay downloads stock clips from the Pixabay video API
type Pixabay struct {
	client  *http.Client
	key     string
	baseURL string
	workers int
	log     zerolog.Logger
}

var _ ClipProvider = (*Pixabay)(nil)

func NewPixabay(client *http.Client, key string, workers int, logger zerolog.Logger) *Pixabay {
	return &Pixabay{
		client:  client,
		key:     key,
		baseURL: pixabayVideoAPI,
		workers: workers,
		log:     logger.With().Str("component", "visuals").Logger(),
	}
}

func (p *Pixabay) Name() string { return "pixabay" }

type pixabayRendition struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type pixabayResponse struct {
	Hits []struct {
		ID     int `json:"id"`
		Videos struct {
			Large  pixabayRendition `json:"large"`
			Medium pixabayRendition `json:"medium"`
			Small  pixabayRendition `json:"small"`
		} `json:"videos"`
	} `json:"hits"`
}

func (p *Pixabay) Resolve(ctx context.Context, r ClipRequest) ([]types.MediaFile, error) {
	d := &clipDownloader{client: p.client, provider: p.Name(), dir: r.Dir, count: r.Count, workers: p.workers, log: p.log, seen: make(map[int]bool)}
	for _, kw := range searchTerms(r.Keywords) {
		if d.full() {
			break
		}
		params := url.Values{}
		params.Set("key", p.key)
		params.Set("q", kw)
		params.Set("per_page", strconv.Itoa(max(3, r.Count))) // pixabay rejects fewer than 3
		params.Set("safesearch", "true")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var result pixabayResponse
		if err := fetch.GetJSON(p.client, req, p.Name(), 0, &result); err != nil {
			if d.partial(err, kw) {
				break
			}
			return nil, err
		}
		var found []clipCandidate
		for _, hit := range result.Hits {
			if link := lo.CoalesceOrEmpty(hit.Videos.Medium.URL, hit.Videos.Large.URL, hit.Videos.Small.URL); link != "" {
				found = append(found, clipCandidate{id: hit.ID, link: link})
			}
		}
		d.fetch(ctx, found)
	}
	return d.result(r.Keywords)
}

type clipCandidate struct {
	id   int
	link string
}

// clipDownloader collects up to count clips for one request. Candidates are
// downloaded concurrently in batches sized to the clips still missing; a
// failed download is skipped and the next candidate takes its place.
type clipDownloader struct {
	client   *http.Client
	provider string
	dir      string
	count    int
	workers  int
	log      zerolog.Logger
	seen     map[int]bool
	clips    []types.MediaFile
}

func (d *clipDownloader) full() bool { return len(d.clips) >= d.count }

// partial reports whether a failed search can be absorbed because clips are
// already on disk
func (d *clipDownloader) partial(err error, query string) bool {
	if len(d.clips) == 0 {
		return false
	}
	d.log.Warn().Err(err).Str("provider", d.provider).Str("query", query).Int("clips", len(d.clips)).
		Msg("⚠️  search failed, keeping clips already downloaded")
	return true
}

func (d *clipDownloader) fetch(ctx context.Context, found []clipCandidate) {
	found = lo.Filter(found, func(c clipCandidate, _ int) bool {
		if d.seen[c.id] {
			return false
		}
		d.seen[c.id] = true
		return true
	})
	for len(found) > 0 && !d.full() && ctx.Err() == nil {
		batch := found[:min(len(found), d.count-len(d.clips))]
		found = found[len(batch):]

		got := make([]*types.MediaFile, len(batch))
		var g errgroup.Group
		g.SetLimit(max(1, d.workers))
		for i, c := range batch {
			g.Go(func() error {
				out := filepath.Join(d.dir, fmt.Sprintf("clip_%s_%d.mp4", d.provider, c.id))
				if err := fetch.Download(ctx, d.client, c.link, out, minClipBytes); err != nil {
					d.log.Warn().Err(err).Int("video", c.id).Msgf("%s download failed", d.provider)
					return nil
				}
				got[i] = &types.MediaFile{Path: out, Kind: types.Video, Provenance: d.provider + ":" + strconv.Itoa(c.id)}
				return nil
			})
		}
		_ = g.Wait()
		for _, m := range got {
			if m != nil {
				d.clips = append(d.clips, *m)
			}
		}
	}
}

func (d *clipDownloader) result(keywords []string) ([]types.MediaFile, error) {
	if len(d.clips) == 0 {
		return nil, fmt.Errorf("no %s clips for %v", d.provider, keywords)
	}
	return d.clips, nil
}

// searchTerms is the combined query first, then each keyword on its own
func searchTerms(keywords []string) []string {
	keywords = lo.Compact(keywords)
	if len(keywords) == 0 {
		return nil
	}
	head := keywords
	if len(head) > 3 {
		head = head[:3]
	}
	combined := head[0]
	for _, k := range head[1:] {
		combined += " " + k
	}
	return lo.Uniq(append([]string{combined}, keywords...))
}
