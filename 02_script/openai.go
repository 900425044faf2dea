package script

import (
	"context"
	"encoding/json"
	"fmt"

	"product-promo-pipeline/config"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI generates text through the official SDK
type OpenAI struct {
	client openai.Client
	cfg    config.ScriptConfig
}

var _ ContentProvider = (*OpenAI)(nil)

func NewOpenAI(key string, cfg config.ScriptConfig, opts ...option.RequestOption) *OpenAI {
	opts = append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &OpenAI{client: openai.NewClient(opts...), cfg: cfg}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Resolve(ctx context.Context, b Brief) (string, error) {
	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(reviewerPrompt(b, o.cfg.TargetWords)),
		},
		Model:       openai.ChatModel(o.cfg.OpenAIModel),
		Temperature: openai.Float(o.cfg.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai returned no content")
	}
	return completion.Choices[0].Message.Content, nil
}

// keywordResponse is the structured answer requested from OpenAI
type keywordResponse struct {
	Keywords []string `json:"keywords" jsonschema_description:"Review-focused keywords, each under 30 characters"`
}

func generateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var keywordResponseSchema = generateSchema[keywordResponse]()

// OpenAIKeywords requests keywords as a JSON schema constrained response
type OpenAIKeywords struct{ o *OpenAI }

var _ KeywordProvider = OpenAIKeywords{}

func (k OpenAIKeywords) Name() string { return "openai" }

func (k OpenAIKeywords) Resolve(ctx context.Context, b Brief) ([]string, error) {
	completion, err := k.o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(keywordPrompt(b, k.o.cfg.KeywordCount)),
		},
		Model: openai.ChatModel(k.o.cfg.OpenAIModel),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "review_keywords",
					Description: openai.String("Keywords a product reviewer would use"),
					Schema:      keywordResponseSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("openai returned no content")
	}
	var resp keywordResponse
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &resp); err != nil {
		return nil, fmt.Errorf("openai: malformed keyword response: %w", err)
	}
	kws := parseKeywordList(joinComma(resp.Keywords), k.o.cfg.KeywordCount)
	if len(kws) == 0 {
		return nil, fmt.Errorf("openai returned no usable keywords")
	}
	return kws, nil
}
