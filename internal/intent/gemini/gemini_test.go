package gemini

import (
	"context"
	"errors"
	"testing"

	"agendabot/internal/intent"
	logx "agendabot/pkg/logx"

	"github.com/google/generative-ai-go/genai"
)

type fakeGen struct {
	parts []genai.Part
	err   error
}

func (f fakeGen) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: f.parts}},
	}}, nil
}

func TestClassify(t *testing.T) {
	t.Parallel()

	b := newBackend(intent.BackendConfig{}, fakeGen{parts: []genai.Part{
		genai.Text("```json\n{\"intent\":\"query\","), genai.Text("\"confidence\":0.7}\n```"),
	}}, logx.Nop())
	p, err := b.Classify(context.Background(), "what's on friday", intent.Input{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if p.Intent != intent.Query || p.Confidence != 0.7 || b.Name() != Kind {
		t.Fatalf("unexpected %+v", p)
	}
}

func TestClassifyEmptyAndError(t *testing.T) {
	t.Parallel()

	if _, err := newBackend(intent.BackendConfig{}, fakeGen{}, logx.Nop()).Classify(context.Background(), "x", intent.Input{}); err == nil {
		t.Fatalf("expected empty response error")
	}
	if _, err := newBackend(intent.BackendConfig{}, fakeGen{err: errors.New("quota")}, logx.Nop()).Classify(context.Background(), "x", intent.Input{}); err == nil {
		t.Fatalf("expected error")
	}
}
