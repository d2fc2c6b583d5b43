package extract

import (
	"regexp"
	"strings"
)

var (
	commandPrefixRe = regexp.MustCompile(`(?i)^\s*(?:please\s+)?(?:(?:can|could|would)\s+you\s+)?(?:` +
		`remind\s+me\s+(?:to\s+|about\s+|that\s+|of\s+)?|` +
		`remember\s+to\s+|don'?t\s+let\s+me\s+forget\s+(?:to\s+)?|` +
		`set\s+(?:up\s+)?(?:an?\s+)?(?:reminder|alarm)\s*(?:to\s+|for\s+|about\s+)?|` +
		`(?:schedule|add|create|book|put|plan|make|new)\s+(?:an?\s+|the\s+|my\s+)?(?:new\s+)?(?:(?:event|reminder)\s*(?:to\s+|for\s+|about\s+|called\s+)?)?|` +
		`(?:cancel|delete|remove|drop|move|reschedule|postpone|change|update|shift)\s+(?:the\s+|my\s+)?|` +
		`(?:log|record)\s+|note\s+that\s+)`)
	danglingTailRe  = regexp.MustCompile(`(?i)(?:\s+(?:on|at|in|with|for|by|to|from|and|about|the))+\s*$`)
	danglingPunctRe = regexp.MustCompile(`(?i)\s+(?:on|at|in|with|for|by|to|from|and|about)\s*([,;])`)
	spaceRunRe      = regexp.MustCompile(`\s+`)
	spaceBeforeRe   = regexp.MustCompile(`\s+([,;:.!?])`)
	punctRunRe      = regexp.MustCompile(`([,;])(?:\s*[,;])+`)
	edgePunctRe     = regexp.MustCompile(`^[\s,.;:!?\-–]+|[\s,;:\-–]+$`)
	remindWordRe    = regexp.MustCompile(`(?i)\bremind`)
)

// finalizeTitle derives the title from the text left after every consumed
// span is removed.
func (s *scan) finalizeTitle() {
	rest := strings.ReplaceAll(s.masked(), string(rune(mask)), " ")
	title := cleanTitle(rest)
	if title == "" {
		title = "Event"
		if remindWordRe.MatchString(s.text) {
			title = "Reminder"
		}
		s.ent.Title = title
		s.ent.Confidence[FieldTitle] = ConfFallback
		s.ent.Defaulted[FieldTitle] = true
		return
	}
	s.ent.Title = title
	s.ent.Confidence[FieldTitle] = ConfQualified
}

func cleanTitle(s string) string {
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = commandPrefixRe.ReplaceAllString(s, "")
	s = danglingPunctRe.ReplaceAllString(s, "$1")
	s = spaceBeforeRe.ReplaceAllString(s, "$1")
	s = punctRunRe.ReplaceAllString(s, "$1")
	for {
		next := edgePunctRe.ReplaceAllString(danglingTailRe.ReplaceAllString(s, ""), "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}
