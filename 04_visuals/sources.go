package visuals

import (
	"fmt"
	"path/filepath"
	"strings"

	"product-promo-pipeline/chain"
	"product-promo-pipeline/types"
)

// ImageRequest asks for one still image for the image slot at Index
type ImageRequest struct {
	Index     int
	Product   string
	Keywords  []string
	ImageURLs []string
	Dir       string
}

// Query is the stock search phrase for this image
func (r ImageRequest) Query() string {
	if len(r.Keywords) == 0 {
		return r.Product
	}
	return r.Product + " " + r.Keywords[r.Index%len(r.Keywords)]
}

// Prompt is the generation prompt for AI image providers
func (r ImageRequest) Prompt() string {
	return enhancePrompt(r.Product, r.Index)
}

func (r ImageRequest) outPath(source, ext string) string {
	return filepath.Join(r.Dir, fmt.Sprintf("image_%02d_%s%s", r.Index, source, ext))
}

// ImageProvider produces the path of a local image file
type ImageProvider = chain.Provider[ImageRequest, string]

// ClipRequest asks for up to Count stock clips matching Keywords
type ClipRequest struct {
	RunID    string
	Keywords []string
	Count    int
	Dir      string
}

// ClipProvider returns a batch of local clips
type ClipProvider = chain.Provider[ClipRequest, []types.MediaFile]

var productAngles = []string{
	"hero shot on a clean white background, studio lighting",
	"lifestyle photo on a modern desk, soft natural light",
	"close-up detail shot, shallow depth of field",
	"flat lay composition, top-down view, minimal props",
	"in use by a person, cozy home setting, warm tones",
	"dramatic dark background, rim lighting, premium look",
}

// enhancePrompt adds a product photography style that changes per slot
func enhancePrompt(product string, index int) string {
	if strings.TrimSpace(product) == "" {
		product = "a modern gadget"
	}
	angle := productAngles[index%len(productAngles)]
	return fmt.Sprintf("professional product photography of %s, %s, vertical 9:16, photorealistic, no text, no watermark", product, angle)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
