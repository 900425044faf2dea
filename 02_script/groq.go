package script

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"product-promo-pipeline/config"
	"product-promo-pipeline/fetch"
)

const groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

// Groq generates text through Groq's OpenAI-compatible chat endpoint
type Groq struct {
	client   *http.Client
	key      string
	cfg      config.ScriptConfig
	endpoint string
}

var _ ContentProvider = (*Groq)(nil)

func NewGroq(client *http.Client, key string, cfg config.ScriptConfig) *Groq {
	return &Groq{client: client, key: key, cfg: cfg, endpoint: groqEndpoint}
}

func (g *Groq) Name() string { return "groq" }

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (g *Groq) Resolve(ctx context.Context, b Brief) (string, error) {
	return g.complete(ctx, reviewerPrompt(b, g.cfg.TargetWords), g.cfg.Temperature, 1024)
}

func (g *Groq) complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	body, err := json.Marshal(groqRequest{
		Model:       g.cfg.GroqModel,
		Messages:    []groqMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.key)
	req.Header.Set("Content-Type", "application/json")

	var resp groqResponse
	if err := fetch.GetJSON(g.client, req, g.Name(), 0, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("groq error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("groq returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GroqKeywords asks Groq for a comma separated keyword list
type GroqKeywords struct{ g *Groq }

var _ KeywordProvider = GroqKeywords{}

func (k GroqKeywords) Name() string { return "groq" }

func (k GroqKeywords) Resolve(ctx context.Context, b Brief) ([]string, error) {
	out, err := k.g.complete(ctx, keywordPrompt(b, k.g.cfg.KeywordCount), 0.5, 150)
	if err != nil {
		return nil, err
	}
	kws := parseKeywordList(out, k.g.cfg.KeywordCount)
	if len(kws) == 0 {
		return nil, fmt.Errorf("groq returned no usable keywords")
	}
	return kws, nil
}
