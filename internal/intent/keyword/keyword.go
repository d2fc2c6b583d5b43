// Package keyword is a deterministic, offline classifier backend driven by
// phrase tables. It needs no network and always answers.
package keyword

import (
	"context"
	"strings"
	"unicode"

	"agendabot/internal/intent"
	logx "agendabot/pkg/logx"

	"golang.org/x/text/cases"
)

const Kind = "keyword"

// phrases are matched on whole words of the case-folded text.
var phrases = map[intent.Intent][]string{
	intent.Help: {
		"help", "what can you do", "how do i", "how does this work", "usage", "commands", "עזרה",
	},
	intent.Query: {
		"what do i have", "what's on", "whats on", "what is on", "show", "list", "agenda", "am i free",
		"anything planned", "any events", "my schedule", "upcoming", "what's planned", "מה יש לי", "מה מתוכנן",
	},
	intent.Delete: {
		"cancel", "delete", "remove", "drop", "call off", "forget about", "בטל", "מחק",
	},
	intent.Update: {
		"move", "reschedule", "postpone", "change", "update", "shift", "push back", "bring forward", "rename",
		"דחה", "הזז", "שנה",
	},
	intent.CreateReminder: {
		"remind", "reminder", "don't let me forget", "dont let me forget", "remember to", "alert me", "ping me",
		"nudge me", "תזכיר", "תזכורת",
	},
	intent.CreateEvent: {
		"meeting", "schedule", "add", "book", "appointment", "event", "lunch", "dinner", "breakfast", "party",
		"call with", "interview", "class", "session", "פגישה", "אירוע", "תקבע",
	},
}

type Backend struct {
	name string
}

func New(name string) *Backend {
	if name == "" {
		name = Kind
	}
	return &Backend{name: name}
}

// Factory adapts New to the intent registry.
func Factory(cfg intent.BackendConfig, _ logx.Logger) (intent.Backend, error) {
	return New(cfg.Name), nil
}

func (b *Backend) Name() string { return b.name }

// Classify picks the intent whose first phrase appears earliest in the text,
// so "remind me to cancel" is a reminder and "cancel my reminder" is a delete.
// More distinct hits raise confidence.
func (b *Backend) Classify(ctx context.Context, text string, _ intent.Input) (intent.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return intent.Prediction{}, err
	}
	norm := " " + normalize(text) + " "

	best, bestPos, bestHits := intent.Unknown, len(norm), 0
	for _, in := range intent.All() {
		pos, hits := len(norm), 0
		for _, p := range phrases[in] {
			i := strings.Index(norm, " "+normalize(p)+" ")
			if i < 0 {
				continue
			}
			hits++
			pos = min(pos, i)
		}
		if hits == 0 {
			continue
		}
		if pos < bestPos {
			best, bestPos, bestHits = in, pos, hits
		}
	}

	switch {
	case best != intent.Unknown:
		return intent.Prediction{Intent: best, Confidence: min(0.6+0.1*float64(bestHits), 0.9)}, nil
	case strings.IndexFunc(text, unicode.IsDigit) >= 0:
		// A bare time or date with no verb is most likely a new entry.
		return intent.Prediction{Intent: intent.CreateEvent, Confidence: 0.55}, nil
	}
	return intent.Prediction{Intent: intent.Unknown, Confidence: 0.5}, nil
}

// normalize case-folds and turns every non-letter, non-digit rune (except an
// apostrophe) into a single space. A Caser keeps state, so each call gets its own.
func normalize(s string) string {
	s = cases.Fold().String(s)
	var sb strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '\'' {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(sb.String())
}
