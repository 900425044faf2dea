package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"product-promo-pipeline/config"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
)

// Library picks clips from the local tagged collection in assets/video.
// A clip is never handed out twice within one run.
type Library struct {
	mu        sync.Mutex
	dir       string
	usagePath string
	tags      map[string][]string // filename → tags
	usageLog  map[string][]string // runID → filenames used
	rnd       *rand.Rand
	log       zerolog.Logger
}

var _ ClipProvider = (*Library)(nil)

// NewLibrary loads tags.json and the usage log. A missing tags file is not
// an error; the library is simply empty.
func NewLibrary(paths config.PathsConfig, logger zerolog.Logger) (*Library, error) {
	logger = logger.With().Str("component", "library").Logger()
	tags, err := loadTagsJSON(paths.VideoTags, logger)
	if err != nil {
		return nil, fmt.Errorf("load video tags: %w", err)
	}
	return &Library{
		dir:       paths.AssetsVideo,
		usagePath: paths.ClipUsageLog,
		tags:      tags,
		usageLog:  loadUsageLog(paths.ClipUsageLog),
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       logger,
	}, nil
}

func (l *Library) Name() string { return "library" }

// Resolve picks up to Count unused clips, best keyword matches first
func (l *Library) Resolve(ctx context.Context, r ClipRequest) ([]types.MediaFile, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tags) == 0 {
		return nil, fmt.Errorf("no video assets found in %s", l.dir)
	}
	used := make(map[string]bool)
	for _, f := range l.usageLog[r.RunID] {
		used[f] = true
	}

	var clips []types.MediaFile
	for len(clips) < r.Count {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file, score, ok := l.pick(r.Keywords, used)
		if !ok {
			break
		}
		used[file] = true
		l.usageLog[r.RunID] = append(l.usageLog[r.RunID], file)
		clips = append(clips, types.MediaFile{
			Path:       filepath.Join(l.dir, file),
			Kind:       types.Video,
			Provenance: "library:" + file,
		})
		l.log.Debug().Str("clip", file).Int("score", score).Msg("picked library clip")
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("all %d library clips have been used in this run", len(l.tags))
	}
	l.saveUsageLog()
	return clips, nil
}

type scored struct {
	file  string
	score int
}

// pick scores every unused clip and picks randomly among the top 3 so the
// same query does not always return the same clip.
func (l *Library) pick(keywords []string, used map[string]bool) (string, int, bool) {
	var candidates []scored
	for file, clipTags := range l.tags {
		if used[file] {
			continue
		}
		candidates = append(candidates, scored{file, matchScore(keywords, clipTags)})
	}
	if len(candidates) == 0 {
		return "", 0, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].file < candidates[j].file
	})
	topN := min(3, len(candidates))
	c := candidates[l.rnd.Intn(topN)]
	return c.file, c.score, true
}

// matchScore counts tag hits against the keywords, whole words included
func matchScore(keywords, clipTags []string) int {
	tagSet := make(map[string]bool)
	for _, t := range clipTags {
		tagSet[strings.ToLower(t)] = true
	}
	score := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if tagSet[kw] {
			score += 10
			continue
		}
		for _, w := range strings.Fields(kw) {
			if tagSet[w] {
				score += 3
			}
		}
	}
	return score
}

func loadTagsJSON(path string, logger zerolog.Logger) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("path", path).Msg("tags.json not found, no library clips will be used")
			return make(map[string][]string), nil
		}
		return nil, err
	}

	// tags.json may have _instructions and _tag_options keys; skip those
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	result := make(map[string][]string)
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			continue
		}
		result[k] = tags
	}
	return result, nil
}

func loadUsageLog(path string) map[string][]string {
	usage := make(map[string][]string)
	data, err := os.ReadFile(path)
	if err != nil {
		return usage
	}
	_ = json.Unmarshal(data, &usage)
	return usage
}

func (l *Library) saveUsageLog() {
	if l.usagePath == "" {
		return
	}
	data, _ := json.MarshalIndent(l.usageLog, "", "  ")
	if err := os.MkdirAll(filepath.Dir(l.usagePath), 0755); err != nil {
		l.log.Warn().Err(err).Msg("could not create usage log dir")
		return
	}
	if err := os.WriteFile(l.usagePath, data, 0644); err != nil {
		l.log.Warn().Err(err).Msg("could not save clip usage log")
	}
}
