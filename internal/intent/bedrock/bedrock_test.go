package bedrock

import (
	"context"
	"encoding/json"
	"testing"

	"agendabot/internal/intent"
	logx "agendabot/pkg/logx"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

type fakeInvoker struct {
	body []byte
	got  *bedrockruntime.InvokeModelInput
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.got = in
	return &bedrockruntime.InvokeModelOutput{Body: f.body}, nil
}

func TestAnthropicModel(t *testing.T) {
	t.Parallel()

	fi := &fakeInvoker{body: []byte(`{"content":[{"type":"text","text":"{\"intent\":\"delete\",\"confidence\":0.66}"}]}`)}
	b := newBackend(intent.BackendConfig{}, fi, logx.Nop())
	p, err := b.Classify(context.Background(), "cancel lunch", intent.Input{})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if p.Intent != intent.Delete || p.Confidence != 0.66 {
		t.Fatalf("unexpected %+v", p)
	}
	var sent map[string]any
	if err := json.Unmarshal(fi.got.Body, &sent); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if sent["anthropic_version"] == nil || sent["messages"] == nil {
		t.Fatalf("unexpected payload %v", sent)
	}
}

func TestTitanModel(t *testing.T) {
	t.Parallel()

	fi := &fakeInvoker{body: []byte(`{"results":[{"outputText":"{\"intent\":\"help\",\"confidence\":0.9}"}]}`)}
	b := newBackend(intent.BackendConfig{Model: "amazon.titan-text-express-v1"}, fi, logx.Nop())
	p, err := b.Classify(context.Background(), "how does this work", intent.Input{})
	if err != nil || p.Intent != intent.Help {
		t.Fatalf("got %+v err %v", p, err)
	}
}
