package intent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const promptFormat = `You classify messages sent to a calendar and reminder assistant.
Pick exactly one intent:
- create_event: add a meeting, appointment or other calendar entry
- create_reminder: be reminded to do something
- update: move, reschedule or change an existing entry
- delete: cancel or remove an existing entry
- query: ask what is planned
- help: ask how to use the assistant
- unknown: none of the above

The user's current time is %s.

Message:
%s

Respond only with a JSON object like {"intent": "create_event", "confidence": 0.9}
where confidence is a number between 0 and 1.`

// BuildPrompt renders the shared instruction used by the LLM backends.
func BuildPrompt(text string, in Input) string {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	return fmt.Sprintf(promptFormat, now.Format("Monday 2006-01-02 15:04 MST"), text)
}

// ParsePrediction reads a model reply. Replies often wrap the JSON object in
// prose or a code fence, so the outermost braces are tried as a fallback.
func ParsePrediction(raw string) (Prediction, error) {
	var reply struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		start, end := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}')
		if start < 0 || end <= start {
			return Prediction{}, fmt.Errorf("%w: no JSON object in reply", ErrInvalidPrediction)
		}
		if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
			return Prediction{}, fmt.Errorf("%w: %v", ErrInvalidPrediction, err)
		}
	}
	i, ok := Parse(reply.Intent)
	if !ok {
		return Prediction{}, fmt.Errorf("%w: intent %q", ErrInvalidPrediction, reply.Intent)
	}
	return Prediction{Intent: i, Confidence: reply.Confidence}.validate()
}
