// Package gemini classifies intents with a Google Gemini model.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"agendabot/internal/intent"
	logx "agendabot/pkg/logx"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	Kind         = "gemini"
	defaultModel = "gemini-1.5-flash"
)

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Backend struct {
	name   string
	model  string
	gen    generator
	client *genai.Client
	log    logx.Logger
}

func Factory(cfg intent.BackendConfig, log logx.Logger) (intent.Backend, error) {
	key := cfg.Key()
	if key == "" {
		return nil, errors.New("gemini: api key required")
	}
	opts := []option.ClientOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	name := cfg.Model
	if name == "" {
		name = defaultModel
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(float32(cfg.Temperature))
	if cfg.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	}
	model.ResponseMIMEType = "application/json"

	b := newBackend(cfg, model, log)
	b.client = client
	return b, nil
}

func newBackend(cfg intent.BackendConfig, gen generator, log logx.Logger) *Backend {
	b := &Backend{name: cfg.Name, model: cfg.Model, gen: gen, log: log}
	if b.name == "" {
		b.name = Kind
	}
	if b.model == "" {
		b.model = defaultModel
	}
	return b
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

func (b *Backend) Classify(ctx context.Context, text string, in intent.Input) (intent.Prediction, error) {
	resp, err := b.gen.GenerateContent(ctx, genai.Text(intent.BuildPrompt(text, in)))
	if err != nil {
		return intent.Prediction{}, fmt.Errorf("gemini generate: %w", err)
	}
	reply := replyText(resp)
	if reply == "" {
		return intent.Prediction{}, errors.New("gemini: empty response")
	}
	p, err := intent.ParsePrediction(reply)
	if err != nil {
		b.log.Debug("unparseable model reply", logx.String("model", b.model), logx.String("reply", reply))
		return intent.Prediction{}, err
	}
	return p, nil
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
