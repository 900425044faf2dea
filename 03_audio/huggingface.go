package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"product-promo-pipeline/fetch"
)

const hfBase = "https://router.huggingface.co/models/"

// HuggingFace calls a hosted TTS model. A 503 means the model is still
// loading, which the chain retries a bounded number of times.
type HuggingFace struct {
	client      *http.Client
	key         string
	model       string
	retryStatus int
	base        string
}

var _ Provider = (*HuggingFace)(nil)

func NewHuggingFace(client *http.Client, key, model string, retryStatus int) *HuggingFace {
	return &HuggingFace{client: client, key: key, model: model, retryStatus: retryStatus, base: hfBase}
}

func (h *HuggingFace) Name() string { return "huggingface" }

func (h *HuggingFace) Resolve(ctx context.Context, r Request) (string, error) {
	body, err := json.Marshal(map[string]string{"inputs": r.Text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+h.model, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+h.key)
	req.Header.Set("Content-Type", "application/json")

	audio, err := fetch.Body(h.client, req, h.Name(), h.retryStatus)
	if err != nil {
		return "", err
	}
	if len(audio) < 1000 {
		return "", fmt.Errorf("huggingface returned %d bytes of audio", len(audio))
	}
	out := outPath(r.Dir, ".flac")
	if err := os.WriteFile(out, audio, 0644); err != nil {
		return "", err
	}
	return out, nil
}
