package types

// SlotKind is the kind of media a timeline slot expects
type SlotKind string

const (
	Video SlotKind = "video"
	Image SlotKind = "image"
)

// Sentinel slot indexes for clips that are not part of the planned pattern
const (
	HookSlot  = -2
	IntroSlot = -1
	OutroSlot = -3
)

// ProductData is everything research could find about a product
type ProductData struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Rating      float64  `json:"rating"`
	Reviews     int      `json:"reviews"`
	Features    []string `json:"features"`
	ImageURLs   []string `json:"image_urls"`
	SourceURL   string   `json:"source_url"`
	Source      string   `json:"source"`
}

// Script is the narration text for one video
type Script struct {
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Provider string   `json:"provider"`
}

// NarrationAsset is the synthesized voice track
type NarrationAsset struct {
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_sec"`
	Provider    string  `json:"provider"`
}

// SegmentSlot is one planned position in the visual timeline
type SegmentSlot struct {
	Index           int      `json:"index"`
	Kind            SlotKind `json:"kind"`
	PlannedDuration float64  `json:"planned_duration"`
	PoolIndex       int      `json:"pool_index"`
}

// ResolvedAsset binds a slot to a concrete local media file
type ResolvedAsset struct {
	SlotIndex  int      `json:"slot_index"`
	SourcePath string   `json:"source_path"`
	SourceKind SlotKind `json:"source_kind"`
	Provenance string   `json:"provenance"`
}

// MediaFile is a downloaded or generated file waiting in a pool
type MediaFile struct {
	Path       string   `json:"path"`
	Kind       SlotKind `json:"kind"`
	Provenance string   `json:"provenance"`
}

// RenderedClip is a normalized clip ready to be joined
type RenderedClip struct {
	SlotIndex      int     `json:"slot_index"`
	Path           string  `json:"path"`
	ActualDuration float64 `json:"actual_duration"`
}

// TransitionStyle is how consecutive clips are joined
type TransitionStyle string

const (
	Crossfade TransitionStyle = "crossfade"
	Cut       TransitionStyle = "cut"
)

// Timeline is an ordered sequence of clips rendered into one file
type Timeline struct {
	Path       string          `json:"path"`
	Clips      []RenderedClip  `json:"clips"`
	Duration   float64         `json:"duration"`
	Transition TransitionStyle `json:"transition"`
	HasAudio   bool            `json:"has_audio"`
}

// OverlayPoint is a short text shown during [Start, Start+Duration]
type OverlayPoint struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// End is the time at which the point disappears
func (p OverlayPoint) End() float64 {
	return p.Start + p.Duration
}

// VideoMetadata holds the publishing metadata written next to the artifact
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Keywords    []string `json:"keywords"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
	PublishAt   string   `json:"publish_at,omitempty"`
}

// PipelineState tracks the full state of one pipeline run
type PipelineState struct {
	RunID        string            `json:"run_id"`
	Product      string            `json:"product"`
	StartedAt    string            `json:"started_at"`
	CompletedAt  string            `json:"completed_at"`
	Stage        string            `json:"stage"`
	ProductData  *ProductData      `json:"product_data,omitempty"`
	Script       *Script           `json:"script,omitempty"`
	Narration    *NarrationAsset   `json:"narration,omitempty"`
	Slots        []SegmentSlot     `json:"slots,omitempty"`
	Assets       []ResolvedAsset   `json:"assets,omitempty"`
	Timeline     *Timeline         `json:"timeline,omitempty"`
	SpeedRatio   float64           `json:"speed_ratio,omitempty"`
	Providers    map[string]string `json:"providers,omitempty"`
	Metadata     *VideoMetadata    `json:"metadata,omitempty"`
	VideoFile    string            `json:"video_file,omitempty"`
	YouTubeURL   string            `json:"youtube_url,omitempty"`
	YouTubeID    string            `json:"youtube_id,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Warn records a non-fatal problem on the run record
func (s *PipelineState) Warn(msg string) {
	s.Warnings = append(s.Warnings, msg)
}

// RecordProvider remembers which provider served a capability
func (s *PipelineState) RecordProvider(capability, provider string) {
	if s.Providers == nil {
		s.Providers = make(map[string]string)
	}
	s.Providers[capability] = provider
}
