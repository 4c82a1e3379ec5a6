package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

const (
	DefaultOpenAITextModel  = "gpt-4o-mini"
	DefaultOpenAIImageModel = "dall-e-3"
)

// OpenAIText generates post text with the chat completions API.
type OpenAIText struct {
	name   string
	model  string
	limit  int
	client openai.Client
}

func NewOpenAIText(name, apiKey, model string, dailyLimit int, opts ...option.RequestOption) *OpenAIText {
	if model == "" {
		model = DefaultOpenAITextModel
	}
	return &OpenAIText{
		name:   name,
		model:  model,
		limit:  dailyLimit,
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
	}
}

func (p *OpenAIText) Name() string    { return p.name }
func (p *OpenAIText) DailyLimit() int { return p.limit }

func (p *OpenAIText) Generate(ctx context.Context, prompt string) (string, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.9),
	})
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	logrus.WithFields(logrus.Fields{
		"provider":      p.name,
		"model":         p.model,
		"input_tokens":  completion.Usage.PromptTokens,
		"output_tokens": completion.Usage.CompletionTokens,
	}).Debug("[OPENAI] Completion done")
	return completion.Choices[0].Message.Content, nil
}

// OpenAIImage returns the hosted URL of a generated image.
type OpenAIImage struct {
	name   string
	model  string
	limit  int
	client openai.Client
}

func NewOpenAIImage(name, apiKey, model string, dailyLimit int, opts ...option.RequestOption) *OpenAIImage {
	if model == "" {
		model = DefaultOpenAIImageModel
	}
	return &OpenAIImage{
		name:   name,
		model:  model,
		limit:  dailyLimit,
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
	}
}

func (p *OpenAIImage) Name() string    { return p.name }
func (p *OpenAIImage) DailyLimit() int { return p.limit }

func (p *OpenAIImage) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(p.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", fmt.Errorf("no image returned by openai")
	}
	return resp.Data[0].URL, nil
}

// CriticalDetector asks a chat model whether something serious happened
// around a topic in the last 48 hours.
type CriticalDetector struct {
	model  string
	client openai.Client
}

func NewCriticalDetector(apiKey, model string, opts ...option.RequestOption) *CriticalDetector {
	if model == "" {
		model = DefaultOpenAITextModel
	}
	return &CriticalDetector{
		model:  model,
		client: openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
	}
}

func (d *CriticalDetector) DetectCritical(ctx context.Context, topic string) (bool, error) {
	question := fmt.Sprintf("Is there a very recent serious or breaking event related to %q in the last 48 hours? Answer only YES or NO.", topic)
	completion, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(d.model),
		Messages:            []openai.ChatCompletionMessageParamUnion{openai.UserMessage(question)},
		Temperature:         openai.Float(0.3),
		MaxCompletionTokens: openai.Int(3),
	})
	if err != nil {
		return false, err
	}
	if len(completion.Choices) == 0 {
		return false, nil
	}
	return parseYesNo(completion.Choices[0].Message.Content), nil
}

func parseYesNo(answer string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(answer)), "YES")
}
