package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

var knownBackendKinds = map[string]bool{"keyword": true, "openai": true, "gemini": true, "bedrock": true}

// Validate reports every problem found in cfg, joined into one error.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token is required"))
	}
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	dur("telegram.handle_timeout", cfg.Telegram.HandleTimeout)
	if cfg.Telegram.RatePerMinute < 0 || cfg.Telegram.RateBurst < 0 {
		add(errors.New("telegram.rate_per_minute and telegram.rate_burst must be >= 0"))
	}

	dur("task_engine.default_timeout", cfg.TaskEngine.DefaultTimeout)
	dur("task_engine.max_queue_delay", cfg.TaskEngine.MaxQueueDelay)
	dur("notifier.retry_base", cfg.Notifier.RetryBase)
	dur("notifier.retry_max_delay", cfg.Notifier.RetryMaxDelay)
	dur("notifier.dedup_window", cfg.Notifier.DedupWindow)
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)

	ic := cfg.Interpreter
	_, err := ParseLocationField("interpreter.timezone", ic.Timezone)
	add(err)
	if ic.ConfidenceThreshold < 0 || ic.ConfidenceThreshold > 1 {
		add(fmt.Errorf("interpreter.confidence_threshold must be within [0,1]"))
	}
	if ic.TwoDigitYearPivot < 0 || ic.TwoDigitYearPivot > 99 {
		add(fmt.Errorf("interpreter.two_digit_year_pivot must be within [0,99]"))
	}
	dur("interpreter.past_grace", ic.PastGrace)
	dur("interpreter.default_duration", ic.DefaultDuration)
	for path, raw := range map[string]string{
		"interpreter.morning":   ic.Morning,
		"interpreter.afternoon": ic.Afternoon,
		"interpreter.evening":   ic.Evening,
	} {
		_, err := ParseClockField(path, raw, [2]int{})
		add(err)
	}
	_, err = ParseWeekdayField("interpreter.week_start", ic.WeekStart, 0)
	add(err)

	dur("classifier.timeout", cfg.Classifier.Timeout)
	if len(cfg.Classifier.Backends) == 0 {
		add(errors.New("classifier.backends: at least one backend is required"))
	}
	seen := map[string]bool{}
	for i, b := range cfg.Classifier.Backends {
		path := fmt.Sprintf("classifier.backends[%d]", i)
		kind := strings.ToLower(strings.TrimSpace(b.Kind))
		if !knownBackendKinds[kind] {
			add(fmt.Errorf("%s.kind: unknown backend kind %q", path, b.Kind))
		}
		name := b.Name
		if name == "" {
			name = kind
		}
		if seen[name] {
			add(fmt.Errorf("%s.name: duplicate backend name %q", path, name))
		}
		seen[name] = true
		if b.Weight < 0 {
			add(fmt.Errorf("%s.weight must be >= 0", path))
		}
		dur(path+".timeout", b.Timeout)
	}
	t := cfg.Classifier.Tiers
	for path, v := range map[string]float64{
		"classifier.tiers.unanimous_floor":     t.UnanimousFloor,
		"classifier.tiers.majority_floor":      t.MajorityFloor,
		"classifier.tiers.majority_ceiling":    t.MajorityCeiling,
		"classifier.tiers.no_majority_ceiling": t.NoMajorityCeiling,
	} {
		if v < 0 || v > 1 {
			add(fmt.Errorf("%s must be within [0,1]", path))
		}
	}

	rc := cfg.Reminders
	if rc.MaxLeadMinutes < 0 {
		add(errors.New("reminders.max_lead_minutes must be >= 0"))
	}
	if rc.DefaultLeadMinutes != nil && *rc.DefaultLeadMinutes < 0 {
		add(errors.New("reminders.default_lead_minutes must be >= 0"))
	}
	if rc.MaxRetries != nil && *rc.MaxRetries < 0 {
		add(errors.New("reminders.max_retries must be >= 0"))
	}
	dur("reminders.missed_window", rc.MissedWindow)
	dur("reminders.arm_window", rc.ArmWindow)
	dur("reminders.retry_base", rc.RetryBase)
	dur("reminders.retry_max_delay", rc.RetryMaxDelay)
	dur("reminders.delivery_timeout", rc.DeliveryTimeout)
	if s := strings.TrimSpace(rc.SweepSchedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			add(fmt.Errorf("reminders.sweep_schedule: %w", err))
		}
	}

	dur("recurrence.horizon", cfg.Recurrence.Horizon)
	if cfg.Recurrence.MaxOccurrences < 0 {
		add(errors.New("recurrence.max_occurrences must be >= 0"))
	}

	if cfg.Calendar.Enabled && strings.TrimSpace(cfg.Calendar.Path) == "" {
		add(errors.New("calendar.path is required when calendar is enabled"))
	}
	dur("calendar.cache_ttl", cfg.Calendar.CacheTTL)

	dur("debug.read_timeout", cfg.Debug.ReadTimeout)
	dur("debug.idle_timeout", cfg.Debug.IdleTimeout)

	return errors.Join(errs...)
}
