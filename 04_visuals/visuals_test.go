package visuals

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/config"
	"product-promo-pipeline/media/mediatest"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var quiet = zerolog.New(io.Discard)

func newPlanner(seed int64) *Planner {
	return NewPlanner(config.Default().Visuals, rand.New(rand.NewSource(seed)))
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("VVVVI", 5)
	require.NoError(t, err)
	require.Len(t, p, 25)
	require.Equal(t, types.Video, p[0])
	require.Equal(t, types.Image, p[4])
	require.Equal(t, types.Image, p[24])

	videos, images := newPlanner(1).Demand(p)
	require.Equal(t, 20, videos)
	require.Equal(t, 5, images)

	_, err = ParsePattern("VXI", 1)
	require.Error(t, err)
	_, err = ParsePattern("", 1)
	require.Error(t, err)
}

func TestPlan_SixtyTwoSecondsAcrossTwentyFiveSlots(t *testing.T) {
	planner := newPlanner(42)
	pattern, _ := ParsePattern("VVVVI", 5)

	require.InDelta(t, 2.48, planner.BaseDuration(62, len(pattern)), 1e-9)

	slots := planner.Plan(pattern, 20, 5, 62)
	require.Len(t, slots, 25)
	for i, s := range slots {
		require.Equal(t, i, s.Index)
		require.Equal(t, pattern[i], s.Kind)
		require.GreaterOrEqual(t, s.PlannedDuration, 2.48-0.3-1e-9)
		require.LessOrEqual(t, s.PlannedDuration, 2.48+0.3+1e-9)
	}
	require.Equal(t, 19, slots[23].PoolIndex)
	require.Equal(t, 4, slots[24].PoolIndex)
}

func TestPlan_DurationsAlwaysWithinBounds(t *testing.T) {
	pattern, _ := ParsePattern("VVVVI", 5)
	for _, total := range []float64{-3, 0, 1, 30, 62, 120, 600} {
		planner := newPlanner(int64(total * 10))
		for _, s := range planner.Plan(pattern, 20, 5, total) {
			require.GreaterOrEqual(t, s.PlannedDuration, 2.0)
			require.LessOrEqual(t, s.PlannedDuration, 3.0)
		}
	}
}

func TestPlan_UnknownDurationUsesDefault(t *testing.T) {
	planner := newPlanner(7)
	require.InDelta(t, 2.5, planner.BaseDuration(0, 25), 1e-9)
	require.InDelta(t, 2.5, planner.BaseDuration(-1, 25), 1e-9)
	require.InDelta(t, 2.0, planner.BaseDuration(10, 25), 1e-9)
	require.InDelta(t, 2.5, planner.BaseDuration(600, 25), 1e-9)
}

func TestPlan_ExhaustedPoolSkipsSlots(t *testing.T) {
	pattern, _ := ParsePattern("VVVVI", 5)
	slots := newPlanner(3).Plan(pattern, 3, 5, 62)

	require.Len(t, slots, 8)
	var kinds []types.SlotKind
	for _, s := range slots {
		kinds = append(kinds, s.Kind)
	}
	require.Equal(t, []types.SlotKind{
		types.Video, types.Video, types.Video, types.Image,
		types.Image, types.Image, types.Image, types.Image,
	}, kinds)
	require.Equal(t, []int{0, 1, 2, 4, 9, 14, 19, 24}, []int{
		slots[0].Index, slots[1].Index, slots[2].Index, slots[3].Index,
		slots[4].Index, slots[5].Index, slots[6].Index, slots[7].Index,
	})

	require.Empty(t, newPlanner(3).Plan(pattern, 0, 0, 62))
}

func TestPlan_SameSeedSamePlan(t *testing.T) {
	pattern, _ := ParsePattern("VVVVI", 5)
	require.Equal(t, newPlanner(9).Plan(pattern, 20, 5, 50), newPlanner(9).Plan(pattern, 20, 5, 50))
}

func TestBind(t *testing.T) {
	pools := &Pools{
		Videos: []types.MediaFile{{Path: "v0.mp4", Provenance: "pexels:1"}, {Path: "v1.mp4", Provenance: "pexels:2"}},
		Images: []types.MediaFile{{Path: "i0.jpg", Provenance: "product"}},
	}
	slots := []types.SegmentSlot{
		{Index: 0, Kind: types.Video, PoolIndex: 0},
		{Index: 1, Kind: types.Video, PoolIndex: 1},
		{Index: 4, Kind: types.Image, PoolIndex: 0},
		{Index: 9, Kind: types.Image, PoolIndex: 1},
	}
	assets := Bind(slots, pools)
	require.Len(t, assets, 3)
	require.Equal(t, types.ResolvedAsset{SlotIndex: 4, SourcePath: "i0.jpg", SourceKind: types.Image, Provenance: "product"}, assets[2])
}

func clipChain(fn func(context.Context, ClipRequest) ([]types.MediaFile, error)) *chain.Chain[ClipRequest, []types.MediaFile] {
	return chain.New[ClipRequest, []types.MediaFile]("stock_clip",
		[]ClipProvider{chain.Func[ClipRequest, []types.MediaFile]{ID: "stock", Fn: fn}},
		chain.Options{Logger: quiet})
}

func imageChain(fn func(context.Context, ImageRequest) (string, error)) *chain.Chain[ImageRequest, string] {
	return chain.New[ImageRequest, string]("image",
		[]ImageProvider{chain.Func[ImageRequest, string]{ID: "gen", Fn: fn}},
		chain.Options{Logger: quiet})
}

func TestAssembler_ResolvesBothPools(t *testing.T) {
	clips := clipChain(func(_ context.Context, r ClipRequest) ([]types.MediaFile, error) {
		var out []types.MediaFile
		for i := 0; i < r.Count+2; i++ {
			out = append(out, types.MediaFile{Path: fmt.Sprintf("clip_%d.mp4", i), Kind: types.Video})
		}
		return out, nil
	})
	images := imageChain(func(_ context.Context, r ImageRequest) (string, error) {
		if r.Index == 2 {
			return "", errors.New("generation failed")
		}
		return fmt.Sprintf("image_%d.jpg", r.Index), nil
	})

	pools, err := NewAssembler(clips, images, 3, quiet).Resolve(context.Background(), Request{
		Product: "Desk Lamp", Videos: 4, Images: 5, Dir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Len(t, pools.Videos, 4)
	require.Equal(t, "stock", pools.ClipProvider)
	require.Len(t, pools.Images, 4)
	require.Equal(t, "image_3.jpg", pools.Images[2].Path)
}

func TestAssembler_StockExhaustedKeepsImages(t *testing.T) {
	clips := clipChain(func(context.Context, ClipRequest) ([]types.MediaFile, error) {
		return nil, errors.New("quota exceeded")
	})
	images := imageChain(func(_ context.Context, r ImageRequest) (string, error) {
		return fmt.Sprintf("image_%d.jpg", r.Index), nil
	})
	pools, err := NewAssembler(clips, images, 2, quiet).Resolve(context.Background(), Request{Videos: 20, Images: 5, Dir: t.TempDir()})
	require.NoError(t, err)
	require.Empty(t, pools.Videos)
	require.Len(t, pools.Images, 5)
}

func TestAssembler_NothingResolves(t *testing.T) {
	clips := clipChain(func(context.Context, ClipRequest) ([]types.MediaFile, error) {
		return nil, errors.New("down")
	})
	images := imageChain(func(context.Context, ImageRequest) (string, error) {
		return "", errors.New("down")
	})
	_, err := NewAssembler(clips, images, 2, quiet).Resolve(context.Background(), Request{Videos: 2, Images: 2, Dir: t.TempDir()})
	require.ErrorIs(t, err, ErrNoVisuals)
}

func writeLibrary(t *testing.T, tags string) config.PathsConfig {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.json"), []byte(tags), 0644))
	return config.PathsConfig{
		AssetsVideo:  dir,
		VideoTags:    filepath.Join(dir, "tags.json"),
		ClipUsageLog: filepath.Join(dir, "logs", "usage.json"),
	}
}

func TestLibrary_NoRepeatsWithinRun(t *testing.T) {
	paths := writeLibrary(t, `{
		"_instructions": "tag every clip",
		"desk.mp4": ["desk", "office"],
		"lamp.mp4": ["lamp", "light"],
		"city.mp4": ["city"]
	}`)
	lib, err := NewLibrary(paths, quiet)
	require.NoError(t, err)

	first, err := lib.Resolve(context.Background(), ClipRequest{RunID: "run-1", Keywords: []string{"lamp"}, Count: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := lib.Resolve(context.Background(), ClipRequest{RunID: "run-1", Count: 5})
	require.NoError(t, err)
	require.Len(t, second, 1)
	for _, c := range first {
		require.NotEqual(t, c.Path, second[0].Path)
	}

	_, err = lib.Resolve(context.Background(), ClipRequest{RunID: "run-1", Count: 1})
	require.Error(t, err)

	usage, err := os.ReadFile(paths.ClipUsageLog)
	require.NoError(t, err)
	require.Contains(t, string(usage), "run-1")
}

func TestLibrary_MissingTagsIsEmpty(t *testing.T) {
	lib, err := NewLibrary(config.PathsConfig{VideoTags: filepath.Join(t.TempDir(), "none.json")}, quiet)
	require.NoError(t, err)
	_, err = lib.Resolve(context.Background(), ClipRequest{Count: 1})
	require.Error(t, err)
}

func TestMatchScore(t *testing.T) {
	require.Equal(t, 10, matchScore([]string{"Lamp"}, []string{"lamp", "light"}))
	require.Equal(t, 3, matchScore([]string{"desk lamp"}, []string{"lamp"}))
	require.Zero(t, matchScore([]string{"phone"}, []string{"lamp"}))
}

func TestBestPortraitFile(t *testing.T) {
	f, ok := bestPortraitFile([]pexelsVideoFile{
		{Link: "a", Width: 720, Height: 1280},
		{Link: "b", Width: 1080, Height: 1920},
		{Link: "c", Width: 3840, Height: 2160},
	})
	require.True(t, ok)
	require.Equal(t, "b", f.Link)

	f, _ = bestPortraitFile([]pexelsVideoFile{
		{Link: "a", Width: 720, Height: 1280},
		{Link: "c", Width: 1440, Height: 2560},
		{Link: "d", Width: 3840, Height: 2160},
	})
	require.Equal(t, "c", f.Link)

	f, _ = bestPortraitFile([]pexelsVideoFile{{Link: "x", Width: 1280, Height: 720}, {Link: "y", Width: 1920, Height: 1080}})
	require.Equal(t, "y", f.Link)

	_, ok = bestPortraitFile([]pexelsVideoFile{{Width: 1080, Height: 1920}})
	require.False(t, ok)
}

func TestPexelsVideos_DownloadsPortraitClips(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search":
			require.Equal(t, "test-key", r.Header.Get("Authorization"))
			require.Equal(t, "portrait", r.URL.Query().Get("orientation"))
			fmt.Fprintf(w, `{"videos":[
				{"id":1,"video_files":[{"link":"%[1]s/v1.mp4","width":1080,"height":1920}]},
				{"id":2,"video_files":[{"link":"%[1]s/v2.mp4","width":720,"height":1280}]},
				{"id":3,"video_files":[{"link":"%[1]s/broken.mp4","width":720,"height":1280}]}
			]}`, srv.URL)
		case strings.HasSuffix(r.URL.Path, "broken.mp4"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Write(bytes.Repeat([]byte{0}, minClipBytes+1))
		}
	}))
	defer srv.Close()

	p := NewPexelsVideos(srv.Client(), "test-key", 2, quiet)
	p.baseURL = srv.URL + "/search"
	clips, err := p.Resolve(context.Background(), ClipRequest{Keywords: []string{"lamp"}, Count: 3, Dir: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, clips, 2)
	require.Equal(t, "pexels:1", clips[0].Provenance)
	require.Equal(t, types.Video, clips[1].Kind)
}

func TestPexelsVideos_KeepsClipsWhenLaterSearchFails(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/search" && r.URL.Query().Get("query") == "lamp desk":
			fmt.Fprintf(w, `{"videos":[
				{"id":1,"video_files":[{"link":"%[1]s/v1.mp4","width":1080,"height":1920}]},
				{"id":2,"video_files":[{"link":"%[1]s/v2.mp4","width":1080,"height":1920}]}
			]}`, srv.URL)
		case r.URL.Path == "/search":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.Write(bytes.Repeat([]byte{0}, minClipBytes+1))
		}
	}))
	defer srv.Close()

	p := NewPexelsVideos(srv.Client(), "test-key", 4, quiet)
	p.baseURL = srv.URL + "/search"
	clips, err := p.Resolve(context.Background(), ClipRequest{Keywords: []string{"lamp", "desk"}, Count: 5, Dir: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, clips, 2)
	for _, c := range clips {
		require.FileExists(t, c.Path)
	}

	// nothing downloaded yet: the search error is the result
	_, err = p.Resolve(context.Background(), ClipRequest{Keywords: []string{"desk"}, Count: 5, Dir: t.TempDir()})
	var status *chain.StatusError
	require.ErrorAs(t, err, &status)
}

func TestPixabay_KeepsClipsWhenLaterSearchFails(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api" && r.URL.Query().Get("q") == "lamp desk":
			fmt.Fprintf(w, `{"hits":[
				{"id":7,"videos":{"medium":{"url":"%[1]s/a.mp4"}}},
				{"id":8,"videos":{"small":{"url":"%[1]s/broken.mp4"}}},
				{"id":9,"videos":{"large":{"url":"%[1]s/c.mp4"}}}
			]}`, srv.URL)
		case r.URL.Path == "/api":
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasSuffix(r.URL.Path, "broken.mp4"):
			w.WriteHeader(http.StatusNotFound)
		default:
			w.Write(bytes.Repeat([]byte{0}, minClipBytes+1))
		}
	}))
	defer srv.Close()

	p := NewPixabay(srv.Client(), "key", 2, quiet)
	p.baseURL = srv.URL + "/api"
	clips, err := p.Resolve(context.Background(), ClipRequest{Keywords: []string{"lamp", "desk"}, Count: 4, Dir: t.TempDir()})
	require.NoError(t, err)
	require.Len(t, clips, 2)
	require.Equal(t, "pixabay:7", clips[0].Provenance)
	require.Equal(t, "pixabay:9", clips[1].Provenance)
}

func TestPollinations_DeterministicSeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "49", r.URL.Query().Get("seed"))
		require.Equal(t, "1080", r.URL.Query().Get("width"))
		w.Write(bytes.Repeat([]byte{0xff}, 2048))
	}))
	defer srv.Close()

	p := NewPollinations(srv.Client(), config.Default().Visuals)
	p.base = srv.URL + "/prompt/"
	out, err := p.Resolve(context.Background(), ImageRequest{Index: 1, Product: "Desk Lamp", Dir: t.TempDir()})
	require.NoError(t, err)
	require.FileExists(t, out)
}

func TestProductImages_UsesResearchURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0xff}, 2048))
	}))
	defer srv.Close()

	p := NewProductImages(srv.Client(), "", quiet)
	req := ImageRequest{Index: 0, ImageURLs: []string{srv.URL + "/a.jpg"}, Dir: t.TempDir()}
	out, err := p.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.FileExists(t, out)

	req.Index = 1
	_, err = p.Resolve(context.Background(), req)
	require.Error(t, err)
}

func TestPlaceholder_RendersCard(t *testing.T) {
	runner := &mediatest.Runner{}
	p := NewPlaceholder(runner, config.Default())
	out, err := p.Resolve(context.Background(), ImageRequest{Index: 3, Product: "Lamp: 50% off", Dir: t.TempDir()})
	require.NoError(t, err)
	require.FileExists(t, out)
	require.Equal(t, 1, runner.Count())
	vf := mediatest.ArgAfter(runner.Calls[0], "-vf")
	require.Contains(t, vf, `Lamp\\: 50% off`)
	require.Contains(t, vf, "expansion=none")
}

func TestSearchTerms(t *testing.T) {
	require.Equal(t, []string{"lamp desk light", "lamp", "desk", "light", "office"},
		searchTerms([]string{"lamp", "desk", "light", "office"}))
	require.Nil(t, searchTerms(nil))
}
