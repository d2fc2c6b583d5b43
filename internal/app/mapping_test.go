package app

import (
	"slices"
	"strings"
	"testing"
	"time"

	"agendabot/internal/config"
)

func intPtr(v int) *int { return &v }

func TestMapStorage(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		in      config.StorageConfig
		driver  string
		wantErr string
	}{
		{"default", config.StorageConfig{}, "memory", ""},
		{"sqlite", config.StorageConfig{Driver: "SQLite", Path: " data/agenda.db "}, "sqlite", ""},
		{"sqlite without path", config.StorageConfig{Driver: "sqlite"}, "", "storage.path"},
		{"mysql without dsn", config.StorageConfig{Driver: "mysql"}, "", "storage.dsn"},
		{"unknown", config.StorageConfig{Driver: "redis"}, "", "unknown storage.driver"},
		{"bad busy timeout", config.StorageConfig{Driver: "sqlite", Path: "x", BusyTimeout: "soon"}, "", "storage.busy_timeout"},
	}
	for _, c := range cases {
		got, err := mapStorage(c.in)
		if c.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), c.wantErr) {
				t.Fatalf("%s: err = %v, want %q", c.name, err, c.wantErr)
			}
			continue
		}
		if err != nil || got.Driver != c.driver {
			t.Fatalf("%s: got %+v, %v", c.name, got, err)
		}
	}
}

func TestMapReminder(t *testing.T) {
	t.Parallel()
	cfg, lead, err := mapReminder(config.ReminderConfig{})
	if err != nil || lead != DefaultEventLead || cfg.MaxRetries != 0 {
		t.Fatalf("defaults: %+v lead=%d err=%v", cfg, lead, err)
	}

	cfg, lead, err = mapReminder(config.ReminderConfig{
		DefaultLeadMinutes: intPtr(0),
		MaxRetries:         intPtr(0),
		MissedWindow:       "10m",
	})
	if err != nil {
		t.Fatal(err)
	}
	if lead != 0 || cfg.MaxRetries != -1 || cfg.MissedWindow != 10*time.Minute {
		t.Fatalf("explicit: %+v lead=%d", cfg, lead)
	}

	if _, _, err := mapReminder(config.ReminderConfig{ArmWindow: "-1h"}); err == nil {
		t.Fatal("negative arm window accepted")
	}
}

func TestMapNotifierDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapNotifier(config.NotifierConfig{})
	if err != nil || !got.Enabled || got.DedupWindow != time.Minute {
		t.Fatalf("got %+v, %v", got, err)
	}
	off := false
	got, err = mapNotifier(config.NotifierConfig{Enabled: &off, DedupWindow: "5m"})
	if err != nil || got.Enabled || got.DedupWindow != 5*time.Minute {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestMapClassifier(t *testing.T) {
	t.Parallel()
	backends, opts, err := mapClassifier(config.ClassifierConfig{
		Timeout: "4s",
		Backends: []config.BackendConfig{
			{Name: "kw", Kind: "keyword", Weight: 1},
			{Name: "gpt", Kind: "openai", Timeout: "2s"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(backends) != 2 || backends[1].Timeout != 2*time.Second || len(opts) != 2 {
		t.Fatalf("backends=%+v opts=%d", backends, len(opts))
	}

	_, _, err = mapClassifier(config.ClassifierConfig{Backends: []config.BackendConfig{{Kind: "keyword", Timeout: "x"}}})
	if err == nil || !strings.Contains(err.Error(), "classifier.backends[0].timeout") {
		t.Fatalf("err = %v", err)
	}
}

func TestMapExtractAndLocation(t *testing.T) {
	t.Parallel()
	opt, err := mapExtract(config.InterpreterConfig{WeekStart: "mon", Morning: "08:30"})
	if err != nil || opt.WeekStart != time.Monday || opt.Morning != [2]int{8, 30} {
		t.Fatalf("got %+v, %v", opt, err)
	}
	if _, err := mapExtract(config.InterpreterConfig{Evening: "late"}); err == nil {
		t.Fatal("bad clock accepted")
	}
	loc, err := mapLocation(config.InterpreterConfig{})
	if err != nil || loc != time.UTC {
		t.Fatalf("loc = %v, %v", loc, err)
	}
}

func TestMapDebugDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapDebug(config.DebugConfig{Enabled: true})
	if err != nil || got.ReadTimeout != 10*time.Second || got.IdleTimeout != time.Minute {
		t.Fatalf("got %+v, %v", got, err)
	}
}

func TestRegistryKnowsBuiltinBackends(t *testing.T) {
	t.Parallel()
	want := []string{"bedrock", "gemini", "keyword", "openai"}
	if got := newRegistry().Kinds(); !slices.Equal(got, want) {
		t.Fatalf("kinds = %v, want %v", got, want)
	}
}

func TestOpenCalendarDisabled(t *testing.T) {
	t.Parallel()
	cal, err := openCalendar(config.CalendarConfig{})
	if err != nil || cal != nil {
		t.Fatalf("cal = %v, %v", cal, err)
	}
	if _, err := openCalendar(config.CalendarConfig{Enabled: true, Path: "does-not-exist.json"}); err == nil {
		t.Fatal("missing calendar file accepted")
	}
}
