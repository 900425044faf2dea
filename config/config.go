package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Run        RunConfig        `yaml:"run"`
	Research   ResearchConfig   `yaml:"research"`
	Script     ScriptConfig     `yaml:"script"`
	Audio      AudioConfig      `yaml:"audio"`
	Visuals    VisualsConfig    `yaml:"visuals"`
	Composite  CompositeConfig  `yaml:"composite"`
	Sync       SyncConfig       `yaml:"sync"`
	Engagement EngagementConfig `yaml:"engagement"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Music      MusicConfig      `yaml:"music"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Upload     UploadConfig     `yaml:"upload"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Paths      PathsConfig      `yaml:"paths"`

	// Keys are read from the environment once by Load and never looked up again.
	Keys APIKeys `yaml:"-"`
}

type RunConfig struct {
	KeepWorkDir bool `yaml:"keep_work_dir"`
}

type ResearchConfig struct {
	Subreddits      []string `yaml:"subreddits"`
	MaxPosts        int      `yaml:"max_posts"`
	MaxFeatures     int      `yaml:"max_features"`
	ShoppingCountry string   `yaml:"shopping_country"`
}

type ScriptConfig struct {
	GroqModel      string  `yaml:"groq_model"`
	OpenAIModel    string  `yaml:"openai_model"`
	Temperature    float64 `yaml:"temperature"`
	TargetWords    int     `yaml:"target_words"`
	KeywordCount   int     `yaml:"keyword_count"`
	SearchKeywords int     `yaml:"search_keywords"`
}

type AudioConfig struct {
	Voice          string `yaml:"voice"`
	HFModel        string `yaml:"hf_model"`
	Command        string `yaml:"command"`
	CommandRetries int    `yaml:"command_retries"`
}

type VisualsConfig struct {
	Width             int     `yaml:"width"`
	Height            int     `yaml:"height"`
	FPS               int     `yaml:"fps"`
	PatternUnit       string  `yaml:"pattern_unit"`
	PatternRepeat     int     `yaml:"pattern_repeat"`
	MinSegmentSec     float64 `yaml:"min_segment_sec"`
	MaxSegmentSec     float64 `yaml:"max_segment_sec"`
	JitterSec         float64 `yaml:"jitter_sec"`
	JitterCeilingSec  float64 `yaml:"jitter_ceiling_sec"`
	DefaultSegmentSec float64 `yaml:"default_segment_sec"`
	ImageMaxSec       float64 `yaml:"image_max_sec"`
	FadeSec           float64 `yaml:"fade_sec"`
	ZoomMax           float64 `yaml:"zoom_max"`
	HFImageModel      string  `yaml:"hf_image_model"`
}

type CompositeConfig struct {
	Transition       string  `yaml:"transition"` // crossfade | cut
	CrossfadeSec     float64 `yaml:"crossfade_sec"`
	CrossfadeMaxClip int     `yaml:"crossfade_max_clips"`
	HookSec          float64 `yaml:"hook_sec"`
	IntroSec         float64 `yaml:"intro_sec"`
	OutroPath        string  `yaml:"outro_path"`
	BackgroundColor  string  `yaml:"background_color"`
}

type SyncConfig struct {
	ToleranceSec float64 `yaml:"tolerance_sec"`
	ExtremeLow   float64 `yaml:"extreme_low"`
	ExtremeHigh  float64 `yaml:"extreme_high"`
	MergeMode    string  `yaml:"merge_mode"` // replace | mix
}

type EngagementConfig struct {
	MaxPoints    int     `yaml:"max_points"`
	PointSec     float64 `yaml:"point_sec"`
	MaxChars     int     `yaml:"max_chars"`
	CTAText      string  `yaml:"cta_text"`
	CTAWindowSec float64 `yaml:"cta_window_sec"`
	FontFile     string  `yaml:"font_file"`
	FontSize     int     `yaml:"font_size"`
	FontColor    string  `yaml:"font_color"`
	BoxColor     string  `yaml:"box_color"`
}

type ProvidersConfig struct {
	AttemptTimeoutSec int      `yaml:"attempt_timeout_sec"`
	RetryStatus       int      `yaml:"retry_status"`
	MaxRetries        int      `yaml:"max_retries"`
	RetryDelaySec     int      `yaml:"retry_delay_sec"`
	Workers           int      `yaml:"workers"`
	ProductData       []string `yaml:"product_data"`
	Content           []string `yaml:"content"`
	Narration         []string `yaml:"narration"`
	Image             []string `yaml:"image"`
	StockClip         []string `yaml:"stock_clip"`
}

type MusicConfig struct {
	Enabled bool    `yaml:"enabled"`
	Style   string  `yaml:"style"`
	Volume  float64 `yaml:"volume"`
	FadeSec float64 `yaml:"fade_sec"`
}

type MetadataConfig struct {
	TitleMaxChars   int      `yaml:"title_max_chars"`
	TagsCount       int      `yaml:"tags_count"`
	CategoryID      string   `yaml:"category_id"`
	AffiliateLink   string   `yaml:"affiliate_link"`
	DefaultHashtags []string `yaml:"default_hashtags"`
}

type UploadConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Visibility        string   `yaml:"visibility"`
	NotifySubscribers bool     `yaml:"notify_subscribers"`
	MadeForKids       bool     `yaml:"made_for_kids"`
	DefaultLanguage   string   `yaml:"default_language"`
	SchedulePublish   bool     `yaml:"schedule_publish"`
	PublishDays       []string `yaml:"publish_days"`
	PublishHour       int      `yaml:"publish_hour"`
	PublishTimezone   string   `yaml:"publish_timezone"`
}

type ScheduleConfig struct {
	Cron         string `yaml:"cron"`
	ProductsFile string `yaml:"products_file"`
}

type FFmpegConfig struct {
	Binary     string `yaml:"binary"`
	Probe      string `yaml:"probe"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Preset     string `yaml:"preset"`
	CRF        int    `yaml:"crf"`
}

type PathsConfig struct {
	Work         string `yaml:"work"`
	Output       string `yaml:"output"`
	Logs         string `yaml:"logs"`
	AssetsVideo  string `yaml:"assets_video"`
	VideoTags    string `yaml:"video_tags"`
	ClipUsageLog string `yaml:"clip_usage_log"`
	AssetsMusic  string `yaml:"assets_music"`
	MusicTags    string `yaml:"music_tags"`
}

// APIKeys holds provider credentials taken from the environment
type APIKeys struct {
	Groq          string
	OpenAI        string
	HuggingFace   string
	Pexels        string
	Pixabay       string
	SerpAPI       string
	YouTubeClient string
	YouTubeSecret string
	YouTubeToken  string
}

// Load reads config.yaml, fills defaults and picks up API keys from the environment
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	cfg.Keys = KeysFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// KeysFromEnv snapshots every provider credential
func KeysFromEnv() APIKeys {
	return APIKeys{
		Groq:          os.Getenv("GROQ_API_KEY"),
		OpenAI:        os.Getenv("OPENAI_API_KEY"),
		HuggingFace:   os.Getenv("HUGGINGFACE_API_KEY"),
		Pexels:        os.Getenv("PEXELS_API_KEY"),
		Pixabay:       os.Getenv("PIXABAY_API_KEY"),
		SerpAPI:       os.Getenv("SERPAPI_KEY"),
		YouTubeClient: os.Getenv("YOUTUBE_CLIENT_ID"),
		YouTubeSecret: os.Getenv("YOUTUBE_CLIENT_SECRET"),
		YouTubeToken:  os.Getenv("YOUTUBE_REFRESH_TOKEN"),
	}
}

// Default returns a config with every default applied and no keys
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero values with the production defaults
func (c *Config) ApplyDefaults() {
	setInt(&c.Research.MaxPosts, 10)
	setInt(&c.Research.MaxFeatures, 5)
	setStr(&c.Research.ShoppingCountry, "us")
	if len(c.Research.Subreddits) == 0 {
		c.Research.Subreddits = []string{"BuyItForLife", "gadgets"}
	}

	setStr(&c.Script.GroqModel, "llama-3.3-70b-versatile")
	setStr(&c.Script.OpenAIModel, "gpt-4o-mini")
	setFloat(&c.Script.Temperature, 0.7)
	setInt(&c.Script.TargetWords, 150)
	setInt(&c.Script.KeywordCount, 10)
	setInt(&c.Script.SearchKeywords, 5)

	setStr(&c.Audio.Voice, "en-US-AriaNeural")
	setStr(&c.Audio.HFModel, "facebook/mms-tts-eng")
	setInt(&c.Audio.CommandRetries, 3)

	setInt(&c.Visuals.Width, 1080)
	setInt(&c.Visuals.Height, 1920)
	setInt(&c.Visuals.FPS, 30)
	setStr(&c.Visuals.PatternUnit, "VVVVI")
	setInt(&c.Visuals.PatternRepeat, 5)
	setFloat(&c.Visuals.MinSegmentSec, 2.0)
	setFloat(&c.Visuals.MaxSegmentSec, 2.5)
	setFloat(&c.Visuals.JitterSec, 0.3)
	setFloat(&c.Visuals.JitterCeilingSec, 3.0)
	setFloat(&c.Visuals.DefaultSegmentSec, 2.5)
	setFloat(&c.Visuals.ImageMaxSec, 2.5)
	setFloat(&c.Visuals.FadeSec, 0.2)
	setFloat(&c.Visuals.ZoomMax, 1.5)
	setStr(&c.Visuals.HFImageModel, "stabilityai/stable-diffusion-2-1")

	setStr(&c.Composite.Transition, "crossfade")
	setFloat(&c.Composite.CrossfadeSec, 0.3)
	setInt(&c.Composite.CrossfadeMaxClip, 10)
	setFloat(&c.Composite.HookSec, 3.0)
	setFloat(&c.Composite.IntroSec, 0.8)
	setStr(&c.Composite.BackgroundColor, "0x101820")

	setFloat(&c.Sync.ToleranceSec, 2.0)
	setFloat(&c.Sync.ExtremeLow, 0.5)
	setFloat(&c.Sync.ExtremeHigh, 2.0)
	setStr(&c.Sync.MergeMode, "replace")

	setInt(&c.Engagement.MaxPoints, 5)
	setFloat(&c.Engagement.PointSec, 2.0)
	setInt(&c.Engagement.MaxChars, 50)
	setStr(&c.Engagement.CTAText, "Get Yours Now!")
	setFloat(&c.Engagement.CTAWindowSec, 5.0)
	setInt(&c.Engagement.FontSize, 64)
	setStr(&c.Engagement.FontColor, "white")
	setStr(&c.Engagement.BoxColor, "black@0.55")

	setInt(&c.Providers.AttemptTimeoutSec, 60)
	setInt(&c.Providers.RetryStatus, 503)
	setInt(&c.Providers.MaxRetries, 2)
	setInt(&c.Providers.RetryDelaySec, 10)
	setInt(&c.Providers.Workers, 4)
	setList(&c.Providers.ProductData, "serpapi", "reddit", "mock")
	setList(&c.Providers.Content, "groq", "openai", "template")
	setList(&c.Providers.Narration, "huggingface", "edge-tts")
	setList(&c.Providers.Image, "product", "pexels", "pollinations", "huggingface", "placeholder")
	setList(&c.Providers.StockClip, "pexels", "pixabay", "library")

	setStr(&c.Music.Style, "upbeat")
	setFloat(&c.Music.Volume, 0.15)
	setFloat(&c.Music.FadeSec, 1.0)

	setInt(&c.Metadata.TitleMaxChars, 100)
	setInt(&c.Metadata.TagsCount, 15)
	setStr(&c.Metadata.CategoryID, "26")
	if len(c.Metadata.DefaultHashtags) == 0 {
		c.Metadata.DefaultHashtags = []string{"#shorts", "#review", "#amazonfinds"}
	}

	setStr(&c.Upload.Visibility, "private")
	setStr(&c.Upload.DefaultLanguage, "en")
	setList(&c.Upload.PublishDays, "tuesday", "friday")
	setInt(&c.Upload.PublishHour, 14)
	setStr(&c.Upload.PublishTimezone, "America/New_York")

	setStr(&c.Schedule.ProductsFile, "products.txt")

	setStr(&c.FFmpeg.Binary, "ffmpeg")
	setStr(&c.FFmpeg.Probe, "ffprobe")
	setInt(&c.FFmpeg.TimeoutSec, 300)
	setStr(&c.FFmpeg.Preset, "veryfast")
	setInt(&c.FFmpeg.CRF, 23)

	setStr(&c.Paths.Work, "temp")
	setStr(&c.Paths.Output, "final_videos")
	setStr(&c.Paths.Logs, "logs")
	setStr(&c.Paths.AssetsVideo, "assets/video")
	setStr(&c.Paths.VideoTags, "assets/video/tags.json")
	setStr(&c.Paths.ClipUsageLog, "logs/clip_usage.json")
	setStr(&c.Paths.AssetsMusic, "assets/music")
	setStr(&c.Paths.MusicTags, "assets/music/tags.json")
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	v := c.Visuals
	if v.MinSegmentSec <= 0 || v.MaxSegmentSec < v.MinSegmentSec || v.JitterCeilingSec < v.MaxSegmentSec {
		return fmt.Errorf("visuals: segment bounds must satisfy 0 < min <= max <= jitter ceiling")
	}
	switch c.Composite.Transition {
	case "crossfade", "cut":
	default:
		return fmt.Errorf("composite: unknown transition %q", c.Composite.Transition)
	}
	switch c.Sync.MergeMode {
	case "replace", "mix":
	default:
		return fmt.Errorf("sync: unknown merge mode %q", c.Sync.MergeMode)
	}
	if c.Sync.ExtremeLow <= 0 || c.Sync.ExtremeHigh <= c.Sync.ExtremeLow {
		return fmt.Errorf("sync: extreme ratio bounds must satisfy 0 < low < high")
	}
	if c.Providers.Workers < 1 {
		return fmt.Errorf("providers: workers must be at least 1")
	}
	return nil
}

func setInt(p *int, def int) {
	if *p == 0 {
		*p = def
	}
}

func setFloat(p *float64, def float64) {
	if *p == 0 {
		*p = def
	}
}

func setStr(p *string, def string) {
	if *p == "" {
		*p = def
	}
}

func setList(p *[]string, def ...string) {
	if len(*p) == 0 {
		*p = def
	}
}
