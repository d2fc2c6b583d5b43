package app

import (
	"context"
	"errors"
	"strings"

	"agendabot/internal/reminder"
	"agendabot/internal/storage"
	logx "agendabot/pkg/logx"
)

// BotCommands is the command menu published to the chat platform.
var BotCommands = []struct{ Command, Description string }{
	{"start", "Introduction"},
	{"help", "How to talk to me"},
	{"list", "Upcoming reminders"},
	{"cancel", "Cancel a reminder: /cancel <id>"},
}

// parseCommand splits "/cancel@agendabot 1a2b" into "cancel" and "1a2b".
func parseCommand(text string) (name, args string) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "/")
	name, args, _ = strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name), strings.TrimSpace(args)
}

func (h *Handler) command(ctx context.Context, owner, text string) string {
	name, args := parseCommand(text)
	switch name {
	case "start":
		return "👋 Hi! " + usage
	case "help":
		return usage
	case "list":
		jobs, err := h.reminders.Upcoming(ctx, owner)
		if err != nil {
			h.log.Error("list reminders failed", logx.String("owner", owner), logx.Err(err))
			return "⚠️ I couldn't read your reminders right now."
		}
		return formatJobs(jobs, h.loc)
	case "cancel":
		return h.cancel(ctx, owner, args)
	default:
		return "Unknown command. " + usageHint
	}
}

func (h *Handler) cancel(ctx context.Context, owner, ref string) string {
	if ref == "" {
		return "Usage: /cancel <id>. Send /list to see reminder ids."
	}
	job, err := h.reminders.Resolve(ctx, owner, ref)
	if err == nil {
		err = h.reminders.Cancel(ctx, owner, job.ID)
	}
	act := action{name: "cancel_reminder", target: job.ID}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "🔍 No upcoming reminder with id " + ref + "."
	case errors.Is(err, reminder.ErrNotCancellable):
		return "That reminder has already been sent."
	case err != nil:
		h.log.Error("cancel failed", logx.String("owner", owner), logx.String("ref", ref), logx.Err(err))
		return "⚠️ I couldn't cancel that reminder right now."
	}
	h.auditCommand(ctx, owner, act)
	return "🗑 Cancelled reminder " + reminder.ShortID(job.ID) + "."
}

func (h *Handler) auditCommand(ctx context.Context, owner string, act action) {
	err := h.store.AppendAudit(ctx, storage.AuditEntry{
		At:     h.clock.Now().UTC(),
		Owner:  owner,
		Action: act.name,
		Target: act.target,
		OK:     true,
	})
	if err != nil {
		h.log.Warn("audit append failed", logx.Err(err))
	}
}
