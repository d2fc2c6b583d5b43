package app

import (
	"fmt"
	"strings"
	"time"

	"agendabot/internal/calendar"
	"agendabot/internal/config"
	"agendabot/internal/extract"
	"agendabot/internal/intent"
	"agendabot/internal/intent/bedrock"
	"agendabot/internal/intent/gemini"
	"agendabot/internal/intent/keyword"
	"agendabot/internal/intent/openai"
	"agendabot/internal/notifier"
	"agendabot/internal/observability"
	"agendabot/internal/recurrence"
	"agendabot/internal/reminder"
	"agendabot/internal/storage"
	"agendabot/internal/task/engine"
	"agendabot/internal/validate"
	logx "agendabot/pkg/logx"
)

// DefaultEventLead is the reminder lead for create_event requests that name none.
const DefaultEventLead = 15

func mapLogging(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Operator: logx.OperatorConfig{
			Enabled:    c.Operator.Enabled,
			MinLevel:   c.Operator.MinLevel,
			RatePerSec: c.Operator.RatePerSec,
		},
	}
}

func mapEngine(c config.TaskEngineConfig) (engine.Config, error) {
	timeout, err := config.ParseDurationField("task_engine.default_timeout", c.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("task_engine.max_queue_delay", c.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Enabled:        true,
		Workers:        c.Workers,
		QueueSize:      c.QueueSize,
		DefaultTimeout: timeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    c.HistorySize,
	}, nil
}

func mapNotifier(c config.NotifierConfig) (notifier.Config, error) {
	out := notifier.Config{
		Enabled:    c.Enabled == nil || *c.Enabled,
		Workers:    c.Workers,
		QueueSize:  c.QueueSize,
		RatePerSec: c.RatePerSec,
		RetryMax:   c.RetryMax,
	}
	var err error
	if out.RetryBase, err = config.ParseDurationField("notifier.retry_base", c.RetryBase); err != nil {
		return out, err
	}
	if out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", c.RetryMaxDelay); err != nil {
		return out, err
	}
	if out.DedupWindow, err = config.ParseDurationOrDefault("notifier.dedup_window", c.DedupWindow, time.Minute); err != nil {
		return out, err
	}
	return out, nil
}

func mapStorage(c config.StorageConfig) (storage.Config, error) {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	busy, err := config.ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Path) == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
	case "mysql":
		if strings.TrimSpace(c.DSN) == "" {
			return storage.Config{}, fmt.Errorf("storage.dsn is required when storage.driver=mysql")
		}
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", c.Driver)
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(c.Path), DSN: c.DSN, BusyTimeout: busy}, nil
}

func mapLocation(c config.InterpreterConfig) (*time.Location, error) {
	return config.ParseLocationField("interpreter.timezone", c.Timezone)
}

func mapExtract(c config.InterpreterConfig) (extract.Options, error) {
	opt := extract.Options{TwoDigitYearPivot: c.TwoDigitYearPivot}
	var err error
	if opt.WeekStart, err = config.ParseWeekdayField("interpreter.week_start", c.WeekStart, time.Sunday); err != nil {
		return opt, err
	}
	if opt.Morning, err = config.ParseClockField("interpreter.morning", c.Morning, [2]int{}); err != nil {
		return opt, err
	}
	if opt.Afternoon, err = config.ParseClockField("interpreter.afternoon", c.Afternoon, [2]int{}); err != nil {
		return opt, err
	}
	if opt.Evening, err = config.ParseClockField("interpreter.evening", c.Evening, [2]int{}); err != nil {
		return opt, err
	}
	return opt, nil
}

func mapValidate(c config.InterpreterConfig) (validate.Config, error) {
	out := validate.Config{Threshold: c.ConfidenceThreshold}
	var err error
	if out.PastGrace, err = config.ParseDurationField("interpreter.past_grace", c.PastGrace); err != nil {
		return out, err
	}
	if out.DefaultDuration, err = config.ParseDurationField("interpreter.default_duration", c.DefaultDuration); err != nil {
		return out, err
	}
	return out, nil
}

// mapReminder also returns the lead used for create_event requests without one.
func mapReminder(c config.ReminderConfig) (reminder.Config, int, error) {
	out := reminder.Config{MaxLeadMinutes: c.MaxLeadMinutes, SweepSchedule: strings.TrimSpace(c.SweepSchedule)}
	if c.MaxRetries != nil {
		out.MaxRetries = *c.MaxRetries
		if out.MaxRetries == 0 {
			out.MaxRetries = -1
		}
	}
	lead := DefaultEventLead
	if c.DefaultLeadMinutes != nil {
		lead = max(*c.DefaultLeadMinutes, 0)
	}
	fields := []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"reminders.missed_window", c.MissedWindow, &out.MissedWindow},
		{"reminders.arm_window", c.ArmWindow, &out.ArmWindow},
		{"reminders.retry_base", c.RetryBase, &out.RetryBase},
		{"reminders.retry_max_delay", c.RetryMaxDelay, &out.RetryMaxDelay},
		{"reminders.delivery_timeout", c.DeliveryTimeout, &out.DeliveryTimeout},
	}
	for _, f := range fields {
		d, err := config.ParseDurationField(f.path, f.raw)
		if err != nil {
			return out, lead, err
		}
		*f.dst = d
	}
	return out, lead, nil
}

func mapRecurrence(c config.RecurrenceConfig) (recurrence.Options, error) {
	h, err := config.ParseDurationField("recurrence.horizon", c.Horizon)
	if err != nil {
		return recurrence.Options{}, err
	}
	return recurrence.Options{Horizon: h, MaxOccurrences: c.MaxOccurrences}, nil
}

func mapClassifier(c config.ClassifierConfig) ([]intent.BackendConfig, []intent.Option, error) {
	var opts []intent.Option
	timeout, err := config.ParseDurationField("classifier.timeout", c.Timeout)
	if err != nil {
		return nil, nil, err
	}
	if timeout > 0 {
		opts = append(opts, intent.WithTimeout(timeout))
	}
	opts = append(opts, intent.WithTiers(intent.Tiers{
		UnanimousFloor:    c.Tiers.UnanimousFloor,
		MajorityFloor:     c.Tiers.MajorityFloor,
		MajorityCeiling:   c.Tiers.MajorityCeiling,
		NoMajorityCeiling: c.Tiers.NoMajorityCeiling,
	}))

	backends := make([]intent.BackendConfig, 0, len(c.Backends))
	for i, b := range c.Backends {
		t, err := config.ParseDurationField(fmt.Sprintf("classifier.backends[%d].timeout", i), b.Timeout)
		if err != nil {
			return nil, nil, err
		}
		backends = append(backends, intent.BackendConfig{
			Name:        b.Name,
			Kind:        b.Kind,
			Weight:      b.Weight,
			Timeout:     t,
			Model:       b.Model,
			APIKey:      b.APIKey,
			APIKeyEnv:   b.APIKeyEnv,
			BaseURL:     b.BaseURL,
			Region:      b.Region,
			MaxTokens:   b.MaxTokens,
			Temperature: b.Temperature,
		})
	}
	return backends, opts, nil
}

// newRegistry knows every built-in backend kind.
func newRegistry() *intent.Registry {
	r := intent.NewRegistry()
	r.Register("keyword", keyword.Factory)
	r.Register("openai", openai.Factory)
	r.Register("gemini", gemini.Factory)
	r.Register("bedrock", bedrock.Factory)
	return r
}

func mapDebug(c config.DebugConfig) (observability.ServerConfig, error) {
	out := observability.ServerConfig{
		Enabled:       c.Enabled,
		Addr:          c.Addr,
		Token:         c.Token,
		AllowInsecure: c.AllowInsecure,
		Pprof:         c.Pprof,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("debug.read_timeout", c.ReadTimeout, 10*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("debug.idle_timeout", c.IdleTimeout, 60*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

// openCalendar returns a cached file provider, or nil when advisories are off.
func openCalendar(c config.CalendarConfig) (calendar.Provider, error) {
	if !c.Enabled {
		return nil, nil
	}
	ttl, err := config.ParseDurationField("calendar.cache_ttl", c.CacheTTL)
	if err != nil {
		return nil, err
	}
	f, err := calendar.LoadFile(c.Path)
	if err != nil {
		return nil, err
	}
	return calendar.NewCached(f, c.CacheSize, ttl), nil
}
