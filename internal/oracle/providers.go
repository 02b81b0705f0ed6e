package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Provider is one text-generation upstream capable of JSON-mode output.
type Provider interface {
	Name() string
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIProvider wraps the chat completion client used as the primary upstream.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
	logger      *zap.Logger
}

func NewOpenAIProvider(apiKey, model string, temperature float64, maxTokens int, logger *zap.Logger) *OpenAIProvider {
	if apiKey == "" {
		return nil
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:      &client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
	}
}

func (o *OpenAIProvider) Name() string {
	return "OpenAI"
}

func (o *OpenAIProvider) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("OpenAI client not initialized")
	}

	var model openai.ChatModel
	switch o.model {
	case "gpt-4o":
		model = openai.ChatModelGPT4o
	case "gpt-4o-mini":
		model = openai.ChatModelGPT4oMini
	case "gpt-4.1":
		model = openai.ChatModelGPT4_1
	case "gpt-4.1-mini":
		model = openai.ChatModelGPT4_1Mini
	case "gpt-4-turbo":
		model = openai.ChatModelGPT4Turbo
	default:
		model = openai.ChatModelGPT4oMini
	}

	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		MaxCompletionTokens: openai.Int(int64(o.maxTokens)),
		Temperature:         openai.Float(o.temperature),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		o.logger.Error("OpenAI generation failed", zap.Error(err))
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}

	text := resp.Choices[0].Message.Content

	o.logger.Debug("OpenAI response received",
		zap.Int("length", len(text)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)

	return text, nil
}

// GeminiProvider is the secondary upstream, tried when OpenAI fails within
// the call budget.
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model, logger: logger}, nil
}

func (g *GeminiProvider) Name() string {
	return "Gemini"
}

func (g *GeminiProvider) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("gemini client not initialized")
	}

	maxTokens := int32(1024)
	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens:  maxTokens,
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: userPrompt},
			},
		},
	}, genConfig)

	if err != nil {
		g.logger.Error("Gemini generation failed", zap.Error(err))
		return "", err
	}

	text := extractGeminiText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response from Gemini")
	}

	g.logger.Debug("Gemini response received", zap.Int("length", len(text)))
	return text, nil
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "")
}
