package config

import (
	"reflect"
	"sort"
	"strings"

	logx "agendabot/pkg/logx"
)

// hotSections are applied without a restart.
var hotSections = map[string]bool{"logging": true, "notifier": true, "debug": true}

// SummarizeConfigChange returns the changed top-level sections and log fields describing them.
// Secrets (bot token, API keys, DSN, debug token) are only reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		mark("telegram",
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
			logx.Int("telegram.allowed_users", len(newCfg.Telegram.AllowedUserIDs)),
			logx.Bool("telegram.operator_chat_set", newCfg.Telegram.OperatorChat != 0),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
			logx.Bool("logging.operator", newCfg.Logging.Operator.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		mark("task_engine",
			logx.Int("task_engine.workers", newCfg.TaskEngine.Workers),
			logx.Int("task_engine.queue_size", newCfg.TaskEngine.QueueSize),
		)
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		mark("notifier",
			logx.Int("notifier.workers", newCfg.Notifier.Workers),
			logx.Int("notifier.rate_per_sec", newCfg.Notifier.RatePerSec),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		mark("storage",
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Interpreter, newCfg.Interpreter) {
		mark("interpreter",
			logx.String("interpreter.timezone", newCfg.Interpreter.Timezone),
			logx.Float64("interpreter.confidence_threshold", newCfg.Interpreter.ConfidenceThreshold),
		)
	}
	if !reflect.DeepEqual(oldCfg.Classifier, newCfg.Classifier) {
		names := make([]string, 0, len(newCfg.Classifier.Backends))
		for _, b := range newCfg.Classifier.Backends {
			names = append(names, b.Kind+":"+b.Name)
		}
		mark("classifier", logx.Strings("classifier.backends", names))
	}
	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		mark("reminders",
			logx.Int("reminders.max_lead_minutes", newCfg.Reminders.MaxLeadMinutes),
			logx.String("reminders.sweep_schedule", newCfg.Reminders.SweepSchedule),
		)
	}
	if !reflect.DeepEqual(oldCfg.Recurrence, newCfg.Recurrence) {
		mark("recurrence", logx.String("recurrence.horizon", newCfg.Recurrence.Horizon))
	}
	if !reflect.DeepEqual(oldCfg.Calendar, newCfg.Calendar) {
		mark("calendar", logx.Bool("calendar.enabled", newCfg.Calendar.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Debug, newCfg.Debug) {
		mark("debug",
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", newCfg.Debug.Addr),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters changed sections down to those not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}
