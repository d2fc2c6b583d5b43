package validate

import (
	"agendabot/internal/extract"
	"agendabot/internal/intent"
)

// Required returns the fields an intent needs, in the order they are asked about.
func Required(i intent.Intent) []extract.Field {
	switch i {
	case intent.CreateEvent, intent.CreateReminder:
		return []extract.Field{extract.FieldTitle, extract.FieldDate, extract.FieldTime}
	case intent.Update:
		return []extract.Field{extract.FieldTitle, extract.FieldDate}
	case intent.Delete:
		return []extract.Field{extract.FieldTitle}
	}
	return nil
}

// score sets the aggregate confidence: the minimum over the intent and its required
// fields. A required field that was never resolved counts as zero. An unknown intent
// always asks.
func (v *Validator) score(req Request, r *Report) {
	agg, weakest := req.IntentConfidence, FieldIntent
	for _, f := range Required(req.Intent) {
		c, ok := req.Entities.Confidence[f]
		if !ok {
			c = 0
		}
		if c < agg {
			agg, weakest = c, f
		}
	}
	r.Confidence = agg
	unknown := req.Intent == intent.Unknown || req.Intent == ""
	if agg >= v.cfg.Threshold && !unknown {
		return
	}
	r.NeedsClarification = true
	if unknown {
		weakest = FieldIntent
	}
	r.Weakest = weakest
	r.Question = Question(weakest, req.Intent)
}

// clarifyFailure points the question at the first failed hard check, whatever the
// confidence said.
func (v *Validator) clarifyFailure(req Request, r *Report) {
	is := r.Errors[0]
	r.NeedsClarification = true
	r.Weakest = is.Field
	switch is.Code {
	case CodeStartInPast:
		r.Question = "That time has already passed. Which day did you mean?"
	case CodeEndBeforeStart:
		r.Question = "The end is before the start. When does it end?"
	default:
		r.Question = Question(is.Field, req.Intent)
	}
}

// Question is the follow-up asked when field is the least certain part of a request.
func Question(field extract.Field, i intent.Intent) string {
	switch field {
	case FieldIntent:
		return "Sorry, I'm not sure what you want. Should I add an event, set a reminder, change or cancel something, or show your agenda?"
	case extract.FieldTitle:
		if i == intent.Update || i == intent.Delete {
			return "Which event do you mean?"
		}
		return "What should I call it?"
	case extract.FieldDate:
		return "Which day is that for?"
	case extract.FieldTime:
		return "At what time?"
	case extract.FieldEnd:
		return "When does it end?"
	}
	return "Could you say that again with a bit more detail?"
}
