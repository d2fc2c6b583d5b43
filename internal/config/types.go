package config

// Config is the root of the agendabot configuration file (JSON or YAML).
//
// Durations are Go duration strings ("500ms", "10s", "2h"). Omitted fields fall back to
// the defaults of the component they configure.
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	TaskEngine  TaskEngineConfig  `json:"task_engine"`
	Notifier    NotifierConfig    `json:"notifier"`
	Storage     StorageConfig     `json:"storage"`
	Interpreter InterpreterConfig `json:"interpreter"`
	Classifier  ClassifierConfig  `json:"classifier"`
	Reminders   ReminderConfig    `json:"reminders"`
	Recurrence  RecurrenceConfig  `json:"recurrence"`
	Calendar    CalendarConfig    `json:"calendar"`
	Debug       DebugConfig       `json:"debug"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// AllowedUserIDs restricts who may talk to the bot. Empty means anyone.
	AllowedUserIDs []int64 `json:"allowed_user_ids,omitempty"`
	// OperatorChat receives error alerts and failed-delivery notices.
	OperatorChat int64  `json:"operator_chat,omitempty"`
	PollTimeout  string `json:"poll_timeout,omitempty"`
	// HandleTimeout bounds the handling of one message.
	HandleTimeout string `json:"handle_timeout,omitempty"`
	// RatePerMinute and RateBurst limit messages per user. Zero uses 20/min with a burst of 5.
	RatePerMinute float64 `json:"rate_per_minute,omitempty"`
	RateBurst     int     `json:"rate_burst,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Operator LoggingOperator `json:"operator"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingOperator struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// TaskEngineConfig sizes the worker pool that runs reminder deliveries.
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// NotifierConfig controls the outbound reply / operator-alert pipeline.
type NotifierConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	DedupWindow   string `json:"dedup_window,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/agenda.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // mysql; never logged
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// InterpreterConfig holds extraction and validation knobs.
type InterpreterConfig struct {
	Timezone            string  `json:"timezone,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	PastGrace           string  `json:"past_grace,omitempty"`
	TwoDigitYearPivot   int     `json:"two_digit_year_pivot,omitempty"`
	WeekStart           string  `json:"week_start,omitempty"`
	Morning             string  `json:"morning,omitempty"`
	Afternoon           string  `json:"afternoon,omitempty"`
	Evening             string  `json:"evening,omitempty"`
	DefaultDuration     string  `json:"default_duration,omitempty"`
}

// ClassifierConfig lists the ensemble members and the agreement tiers.
type ClassifierConfig struct {
	Timeout  string          `json:"timeout,omitempty"`
	Backends []BackendConfig `json:"backends"`
	Tiers    TierConfig      `json:"tiers"`
}

// BackendConfig describes one classifier backend. Kind is one of keyword, openai, gemini,
// bedrock. APIKeyEnv names an environment variable holding the key when APIKey is empty.
type BackendConfig struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Weight      float64 `json:"weight,omitempty"`
	Timeout     string  `json:"timeout,omitempty"`
	Model       string  `json:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	APIKeyEnv   string  `json:"api_key_env,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Region      string  `json:"region,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type TierConfig struct {
	UnanimousFloor    float64 `json:"unanimous_floor,omitempty"`
	MajorityFloor     float64 `json:"majority_floor,omitempty"`
	MajorityCeiling   float64 `json:"majority_ceiling,omitempty"`
	NoMajorityCeiling float64 `json:"no_majority_ceiling,omitempty"`
}

// ReminderConfig controls scheduling and delivery of reminder jobs.
type ReminderConfig struct {
	MaxLeadMinutes     int    `json:"max_lead_minutes,omitempty"`
	DefaultLeadMinutes *int   `json:"default_lead_minutes,omitempty"`
	MissedWindow       string `json:"missed_window,omitempty"`
	ArmWindow          string `json:"arm_window,omitempty"`
	SweepSchedule      string `json:"sweep_schedule,omitempty"`
	MaxRetries         *int   `json:"max_retries,omitempty"`
	RetryBase          string `json:"retry_base,omitempty"`
	RetryMaxDelay      string `json:"retry_max_delay,omitempty"`
	DeliveryTimeout    string `json:"delivery_timeout,omitempty"`
}

type RecurrenceConfig struct {
	Horizon        string `json:"horizon,omitempty"`
	MaxOccurrences int    `json:"max_occurrences,omitempty"`
}

// CalendarConfig points at an optional advisory-day file.
type CalendarConfig struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path,omitempty"`
	CacheSize int    `json:"cache_size,omitempty"`
	CacheTTL  string `json:"cache_ttl,omitempty"`
}

// DebugConfig controls the HTTP server exposing /metrics and pprof.
//
// Prefer a loopback address; a non-loopback bind needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}
