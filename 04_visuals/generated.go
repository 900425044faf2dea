package visuals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"product-promo-pipeline/config"
	"product-promo-pipeline/fetch"
	"product-promo-pipeline/media"
)

const (
	pollinationsBase = "https://image.pollinations.ai/prompt/"
	hfBase           = "https://router.huggingface.co/models/"
)

// Pollinations generates AI images via Pollinations.ai (free, no key needed)
type Pollinations struct {
	client *http.Client
	width  int
	height int
	base   string
}

var _ ImageProvider = (*Pollinations)(nil)

func NewPollinations(client *http.Client, cfg config.VisualsConfig) *Pollinations {
	return &Pollinations{client: client, width: cfg.Width, height: cfg.Height, base: pollinationsBase}
}

func (p *Pollinations) Name() string { return "pollinations" }

func (p *Pollinations) Resolve(ctx context.Context, r ImageRequest) (string, error) {
	// Format: https://image.pollinations.ai/prompt/{encoded_prompt}?params
	imageURL := fmt.Sprintf("%s%s?width=%d&height=%d&nologo=true&model=flux&seed=%d",
		p.base,
		url.PathEscape(r.Prompt()),
		p.width, p.height,
		r.Index*42+7, // deterministic seed per slot
	)
	out := r.outPath(p.Name(), ".jpg")
	if err := fetch.Download(ctx, p.client, imageURL, out, 1000); err != nil {
		return "", err
	}
	return out, nil
}

// HuggingFaceImage runs a hosted Stable Diffusion model. A 503 means the
// model is loading and is reported as chain.Initializing.
type HuggingFaceImage struct {
	client      *http.Client
	key         string
	model       string
	retryStatus int
	base        string
}

var _ ImageProvider = (*HuggingFaceImage)(nil)

func NewHuggingFaceImage(client *http.Client, key, model string, retryStatus int) *HuggingFaceImage {
	return &HuggingFaceImage{client: client, key: key, model: model, retryStatus: retryStatus, base: hfBase}
}

func (h *HuggingFaceImage) Name() string { return "huggingface" }

func (h *HuggingFaceImage) Resolve(ctx context.Context, r ImageRequest) (string, error) {
	body, err := json.Marshal(map[string]any{
		"inputs": r.Prompt(),
		"parameters": map[string]any{
			"negative_prompt": "blurry, low quality, distorted, watermark, text",
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+h.model, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+h.key)
	req.Header.Set("Content-Type", "application/json")

	img, err := fetch.Body(h.client, req, h.Name(), h.retryStatus)
	if err != nil {
		return "", err
	}
	if len(img) < 1000 {
		return "", fmt.Errorf("huggingface returned %d bytes of image data", len(img))
	}
	out := r.outPath(h.Name(), ".jpg")
	if err := os.WriteFile(out, img, 0644); err != nil {
		return "", err
	}
	return out, nil
}

// Placeholder renders a plain title card with ffmpeg. It is the last image
// provider and only fails when ffmpeg itself does.
type Placeholder struct {
	ffmpeg   media.Runner
	enc      media.Encoding
	bg       string
	fontFile string
}

var _ ImageProvider = (*Placeholder)(nil)

func NewPlaceholder(ffmpeg media.Runner, cfg *config.Config) *Placeholder {
	return &Placeholder{
		ffmpeg:   ffmpeg,
		enc:      media.EncodingFrom(cfg),
		bg:       cfg.Composite.BackgroundColor,
		fontFile: cfg.Engagement.FontFile,
	}
}

func (p *Placeholder) Name() string { return "placeholder" }

func (p *Placeholder) Resolve(ctx context.Context, r ImageRequest) (string, error) {
	text := r.Product
	if text == "" {
		text = fmt.Sprintf("Image %d", r.Index+1)
	}
	draw := media.NewFilter("drawtext").
		Set("expansion", "none").
		Text("text", truncate(text, 40)).
		Set("fontsize", "72").
		Set("fontcolor", "white").
		Expr("x", "(w-text_w)/2").
		Expr("y", "(h-text_h)/2")
	if p.fontFile != "" {
		draw.Text("fontfile", p.fontFile)
	}
	graph := media.NewGraph().Chain(nil, "", draw)
	if err := graph.Validate(); err != nil {
		return "", err
	}

	out := r.outPath(p.Name(), ".png")
	err := p.ffmpeg.Run(ctx,
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=%s", p.bg, p.enc.Size()),
		"-vf", graph.String(),
		"-frames:v", "1",
		out,
	)
	if err != nil {
		return "", err
	}
	return out, nil
}
