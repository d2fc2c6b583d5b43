package reminder

import (
	"fmt"
	"strings"

	"agendabot/internal/storage"
)

// DefaultTemplate is used when a job has none.
const DefaultTemplate = "⏰ {title} ({remaining})"

// TimeRemaining phrases a lead time: "now", "in 1 minute", "in 1 hour 30 minutes".
func TimeRemaining(leadMinutes int) string {
	if leadMinutes <= 0 {
		return "now"
	}
	h, m := leadMinutes/60, leadMinutes%60
	var parts []string
	if h > 0 {
		parts = append(parts, plural(h, "hour"))
	}
	if m > 0 {
		parts = append(parts, plural(m, "minute"))
	}
	return "in " + strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// Render fills a job template. {remaining} is the lead phrase; any other
// {key} comes from the job snapshot. Unknown placeholders are left alone.
func Render(j storage.Job) string {
	tpl := j.Template
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultTemplate
	}
	pairs := []string{"{remaining}", TimeRemaining(j.LeadMinutes)}
	for k, v := range j.Snapshot {
		pairs = append(pairs, "{"+k+"}", v)
	}
	if _, ok := j.Snapshot["title"]; !ok {
		pairs = append(pairs, "{title}", "Reminder")
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
