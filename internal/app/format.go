package app

import (
	"fmt"
	"strings"
	"time"

	"agendabot/internal/interpret"
	"agendabot/internal/reminder"
	"agendabot/internal/storage"
)

const stamp = "Mon 02 Jan 15:04"

const usageHint = "Try \"dentist tomorrow at 15:00\" or send /help."

const usage = `I keep your agenda and remind you before things happen. Just write naturally:

• meeting on 18.10 at 14 with Moti, remind me 30 minutes before
• remind me to call mom tomorrow evening
• gym every monday at 7:00
• move dentist to friday 10:00
• delete dentist
• what do I have tomorrow?

Commands:
/list - upcoming reminders
/cancel <id> - cancel a reminder
/help - this message`

func span(ev storage.Event, loc *time.Location) string {
	s := ev.Start.In(loc).Format(stamp)
	if !ev.End.IsZero() && ev.End.After(ev.Start) {
		end := ev.End.In(loc)
		if sameDay(ev.Start.In(loc), end) {
			return s + "-" + end.Format("15:04")
		}
		return s + " - " + end.Format(stamp)
	}
	return s
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func formatCreated(ev storage.Event, res interpret.Result, s scheduled, loc *time.Location) string {
	var b strings.Builder
	if ev.Kind == storage.KindReminder {
		fmt.Fprintf(&b, "✅ Reminder set: %s\n", ev.Title)
	} else {
		fmt.Fprintf(&b, "✅ Saved: %s\n", ev.Title)
	}
	fmt.Fprintf(&b, "🗓 %s", span(ev, loc))
	if ev.Location != "" {
		fmt.Fprintf(&b, "\n📍 %s", ev.Location)
	}
	if len(ev.Contacts) > 0 {
		fmt.Fprintf(&b, "\n👥 %s", strings.Join(ev.Contacts, ", "))
	}
	if ev.Recurrence != "" {
		fmt.Fprintf(&b, "\n🔁 %s", ev.Recurrence)
		if len(res.Upcoming) > 0 {
			days := make([]string, len(res.Upcoming))
			for i, t := range res.Upcoming {
				days[i] = t.In(loc).Format("Mon 02 Jan")
			}
			fmt.Fprintf(&b, " (next: %s)", strings.Join(days, ", "))
		}
	}
	writeReminders(&b, s, loc)
	for _, w := range res.Validation.Warnings {
		fmt.Fprintf(&b, "\n⚠️ %s", w.Message)
	}
	return b.String()
}

func writeReminders(b *strings.Builder, s scheduled, loc *time.Location) {
	switch len(s.outcomes) {
	case 0:
		if s.missed > 0 {
			b.WriteString("\n⚠️ The reminder time has already passed, so no reminder was scheduled.")
		}
		return
	case 1:
		b.WriteString("\n" + reminderLine(s.outcomes[0], loc))
	default:
		first := s.outcomes[0]
		fmt.Fprintf(b, "\n⏰ %d reminders scheduled, first at %s (id %s)",
			len(s.outcomes), first.Target.In(loc).Format(stamp), reminder.ShortID(first.JobID))
	}
	if s.missed > 0 {
		fmt.Fprintf(b, "\n⚠️ %d occurrence(s) already passed and were skipped.", s.missed)
	}
}

func reminderLine(o reminder.Outcome, loc *time.Location) string {
	id := reminder.ShortID(o.JobID)
	switch {
	case o.Status == reminder.StatusImmediate:
		return fmt.Sprintf("⏰ Reminder is due now (id %s)", id)
	case o.LeadMinutes == 0:
		return fmt.Sprintf("⏰ Reminder at %s (id %s)", o.Target.In(loc).Format(stamp), id)
	default:
		return fmt.Sprintf("⏰ Reminder %s before, at %s (id %s)",
			strings.TrimPrefix(reminder.TimeRemaining(o.LeadMinutes), "in "), o.Target.In(loc).Format(stamp), id)
	}
}

func formatMoved(ev storage.Event, s scheduled, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✏️ Moved %q to %s", ev.Title, span(ev, loc))
	writeReminders(&b, s, loc)
	return b.String()
}

func formatDeleted(ev storage.Event, cancelled int, loc *time.Location) string {
	msg := fmt.Sprintf("🗑 Deleted %q (%s)", ev.Title, ev.Start.In(loc).Format(stamp))
	if cancelled > 0 {
		msg += fmt.Sprintf(", %d reminder(s) cancelled", cancelled)
	}
	return msg
}

func notFound(title string) string {
	return fmt.Sprintf("🔍 I couldn't find an upcoming event matching %q.", title)
}

func formatAgenda(label string, events []storage.Event, loc *time.Location) string {
	if len(events) == 0 {
		return fmt.Sprintf("📭 Nothing scheduled for %s.", label)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Agenda for %s:", label)
	for _, ev := range events {
		fmt.Fprintf(&b, "\n• %s %s", span(ev, loc), ev.Title)
		if ev.Location != "" {
			fmt.Fprintf(&b, " @ %s", ev.Location)
		}
	}
	return b.String()
}

func formatJobs(jobs []storage.Job, loc *time.Location) string {
	if len(jobs) == 0 {
		return "📭 No upcoming reminders."
	}
	var b strings.Builder
	b.WriteString("⏰ Upcoming reminders:")
	for _, j := range jobs {
		title := j.Snapshot["title"]
		if title == "" {
			title = "Reminder"
		}
		fmt.Fprintf(&b, "\n• %s %s %s", reminder.ShortID(j.ID), j.Target.In(loc).Format(stamp), title)
		if j.State == storage.JobRunning {
			b.WriteString(" (sending)")
		}
	}
	return b.String()
}
