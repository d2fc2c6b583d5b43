// Package openai classifies intents with an OpenAI-compatible chat model.
package openai

import (
	"context"
	"errors"
	"fmt"

	"agendabot/internal/intent"
	logx "agendabot/pkg/logx"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	Kind         = "openai"
	defaultModel = goopenai.GPT4oMini
)

// chatClient is the slice of the SDK client the backend uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

type Backend struct {
	name        string
	client      chatClient
	model       string
	maxTokens   int
	temperature float32
	log         logx.Logger
}

func Factory(cfg intent.BackendConfig, log logx.Logger) (intent.Backend, error) {
	key := cfg.Key()
	if key == "" {
		return nil, errors.New("openai: api key required")
	}
	oc := goopenai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return newBackend(cfg, goopenai.NewClientWithConfig(oc), log), nil
}

func newBackend(cfg intent.BackendConfig, client chatClient, log logx.Logger) *Backend {
	b := &Backend{
		name:        cfg.Name,
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		log:         log,
	}
	if b.name == "" {
		b.name = Kind
	}
	if b.model == "" {
		b.model = defaultModel
	}
	if b.maxTokens <= 0 {
		b.maxTokens = 64
	}
	return b
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Classify(ctx context.Context, text string, in intent.Input) (intent.Prediction, error) {
	req := goopenai.ChatCompletionRequest{
		Model: b.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: "You are an intent classifier. Respond only with JSON."},
			{Role: goopenai.ChatMessageRoleUser, Content: intent.BuildPrompt(text, in)},
		},
		MaxTokens:      b.maxTokens,
		Temperature:    b.temperature,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject},
	}
	resp, err := b.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return intent.Prediction{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return intent.Prediction{}, errors.New("openai: empty response")
	}
	p, err := intent.ParsePrediction(resp.Choices[0].Message.Content)
	if err != nil {
		b.log.Debug("unparseable model reply", logx.String("model", b.model), logx.String("reply", resp.Choices[0].Message.Content))
		return intent.Prediction{}, err
	}
	return p, nil
}
