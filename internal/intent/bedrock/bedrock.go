// Package bedrock classifies intents with a model hosted on Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agendabot/internal/intent"
	logx "agendabot/pkg/logx"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	Kind         = "bedrock"
	defaultModel = "anthropic.claude-3-haiku-20240307-v1:0"
)

type invoker interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, opts ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type Backend struct {
	name        string
	modelID     string
	maxTokens   int
	temperature float64
	client      invoker
	log         logx.Logger
}

// Factory loads the default AWS credential chain for the configured region.
func Factory(cfg intent.BackendConfig, log logx.Logger) (intent.Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.BaseURL != "" {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		}
	})
	return newBackend(cfg, client, log), nil
}

func newBackend(cfg intent.BackendConfig, client invoker, log logx.Logger) *Backend {
	b := &Backend{name: cfg.Name, modelID: cfg.Model, maxTokens: cfg.MaxTokens, temperature: cfg.Temperature, client: client, log: log}
	if b.name == "" {
		b.name = Kind
	}
	if b.modelID == "" {
		b.modelID = defaultModel
	}
	if b.maxTokens <= 0 {
		b.maxTokens = 64
	}
	return b
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) isAnthropic() bool { return strings.HasPrefix(b.modelID, "anthropic.") }
func (b *Backend) isTitan() bool     { return strings.HasPrefix(b.modelID, "amazon.titan") }

func (b *Backend) Classify(ctx context.Context, text string, in intent.Input) (intent.Prediction, error) {
	payload, err := b.payload(intent.BuildPrompt(text, in))
	if err != nil {
		return intent.Prediction{}, fmt.Errorf("bedrock payload: %w", err)
	}
	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return intent.Prediction{}, fmt.Errorf("bedrock invoke %s: %w", b.modelID, err)
	}
	reply, err := b.replyText(out.Body)
	if err != nil {
		return intent.Prediction{}, err
	}
	p, err := intent.ParsePrediction(reply)
	if err != nil {
		b.log.Debug("unparseable model reply", logx.String("model", b.modelID), logx.String("reply", reply))
		return intent.Prediction{}, err
	}
	return p, nil
}

func (b *Backend) payload(prompt string) ([]byte, error) {
	switch {
	case b.isAnthropic():
		return json.Marshal(map[string]any{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        b.maxTokens,
			"temperature":       b.temperature,
			"messages":          []map[string]any{{"role": "user", "content": prompt}},
		})
	case b.isTitan():
		return json.Marshal(map[string]any{
			"inputText": prompt,
			"textGenerationConfig": map[string]any{
				"maxTokenCount": b.maxTokens,
				"temperature":   b.temperature,
			},
		})
	default:
		return json.Marshal(map[string]any{
			"prompt":      prompt,
			"max_tokens":  b.maxTokens,
			"temperature": b.temperature,
		})
	}
}

func (b *Backend) replyText(body []byte) (string, error) {
	switch {
	case b.isAnthropic():
		var resp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decode anthropic reply: %w", err)
		}
		var sb strings.Builder
		for _, c := range resp.Content {
			if c.Type == "text" {
				sb.WriteString(c.Text)
			}
		}
		if sb.Len() == 0 {
			return "", errors.New("bedrock: empty anthropic reply")
		}
		return sb.String(), nil
	case b.isTitan():
		var resp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("decode titan reply: %w", err)
		}
		if len(resp.Results) == 0 {
			return "", errors.New("bedrock: empty titan reply")
		}
		return resp.Results[0].OutputText, nil
	default:
		var resp struct {
			Output     string `json:"output"`
			Text       string `json:"text"`
			Generation string `json:"generation"`
		}
		if err := json.Unmarshal(body, &resp); err == nil {
			for _, s := range []string{resp.Output, resp.Text, resp.Generation} {
				if s != "" {
					return s, nil
				}
			}
		}
		return string(body), nil
	}
}
