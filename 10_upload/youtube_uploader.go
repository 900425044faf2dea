package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"product-promo-pipeline/config"
	"product-promo-pipeline/types"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// ErrNoCredentials means one of the three YouTube OAuth values is missing
var ErrNoCredentials = errors.New("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET or YOUTUBE_REFRESH_TOKEN not set")

// Result identifies an uploaded video
type Result struct {
	VideoID  string
	VideoURL string
}

// Uploader publishes the final video through the YouTube Data API v3
type Uploader struct {
	cfg  config.UploadConfig
	keys config.APIKeys
	log  zerolog.Logger

	// set by tests to talk to a local server
	endpoint string
	client   *http.Client
}

func New(cfg *config.Config, logger zerolog.Logger) *Uploader {
	return &Uploader{
		cfg:  cfg.Upload,
		keys: cfg.Keys,
		log:  logger.With().Str("component", "upload").Logger(),
	}
}

// Enabled reports whether uploads are switched on in config
func (u *Uploader) Enabled() bool { return u.cfg.Enabled }

// Run uploads videoFile with its metadata
func (u *Uploader) Run(ctx context.Context, videoFile string, meta *types.VideoMetadata) (*Result, error) {
	u.log.Info().Msg("authenticating with YouTube API")
	svc, err := u.service(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()
	if fi, err := f.Stat(); err == nil {
		u.log.Info().Str("title", meta.Title).Float64("size_mb", float64(fi.Size())/1024/1024).Msg("⬆️  uploading")
	}

	call := svc.Videos.Insert([]string{"snippet", "status"}, u.video(meta)).
		NotifySubscribers(u.cfg.NotifySubscribers).
		Context(ctx)
	call.Media(f)
	uploaded, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube upload: %w", err)
	}

	res := &Result{
		VideoID:  uploaded.Id,
		VideoURL: fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id),
	}
	u.log.Info().Str("video_id", res.VideoID).Str("url", res.VideoURL).Msg("✅ uploaded")
	return res, nil
}

func (u *Uploader) video(meta *types.VideoMetadata) *youtube.Video {
	status := &youtube.VideoStatus{
		PrivacyStatus:           meta.Visibility,
		SelfDeclaredMadeForKids: u.cfg.MadeForKids,
	}
	// YouTube only schedules private videos
	if meta.PublishAt != "" && meta.Visibility == "public" {
		status.PrivacyStatus = "private"
		status.PublishAt = meta.PublishAt
		u.log.Info().Str("publish_at", meta.PublishAt).Msg("scheduled publish")
	}
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           meta.CategoryID,
			DefaultLanguage:      u.cfg.DefaultLanguage,
			DefaultAudioLanguage: u.cfg.DefaultLanguage,
		},
		Status: status,
	}
}

func (u *Uploader) service(ctx context.Context) (*youtube.Service, error) {
	if u.client != nil {
		return youtube.NewService(ctx, option.WithHTTPClient(u.client), option.WithEndpoint(u.endpoint))
	}
	client, err := u.oauthClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("youtube auth: %w", err)
	}
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

// oauthClient exchanges the stored refresh token for access tokens on demand
func (u *Uploader) oauthClient(ctx context.Context) (*http.Client, error) {
	if u.keys.YouTubeClient == "" || u.keys.YouTubeSecret == "" || u.keys.YouTubeToken == "" {
		return nil, ErrNoCredentials
	}
	conf := &oauth2.Config{
		ClientID:     u.keys.YouTubeClient,
		ClientSecret: u.keys.YouTubeSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: u.keys.YouTubeToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return conf.Client(ctx, token), nil
}

// LogUpload saves the upload result as upload_<videoID>.json in dir
func LogUpload(res *Result, videoFile, dir string, meta *types.VideoMetadata) (string, error) {
	entry := map[string]interface{}{
		"video_id":    res.VideoID,
		"video_url":   res.VideoURL,
		"title":       meta.Title,
		"publish_at":  meta.PublishAt,
		"uploaded_at": time.Now().UTC().Format(time.RFC3339),
		"video_file":  videoFile,
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("upload_%s.json", res.VideoID))
	data, _ := json.MarshalIndent(entry, "", "  ")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
