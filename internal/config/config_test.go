package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  operator_chat: -100
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./data/agenda.db
interpreter:
  timezone: UTC
  confidence_threshold: 0.75
  morning: "08:30"
classifier:
  timeout: 2s
  backends:
    - name: rules
      kind: keyword
    - name: gpt
      kind: openai
      weight: 1.5
      model: gpt-4o-mini
reminders:
  max_lead_minutes: 120
  sweep_schedule: "@every 5m"
`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("agenda.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telegram.OperatorChat != -100 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Classifier.Backends) != 2 || cfg.Classifier.Backends[1].Weight != 1.5 {
		t.Fatalf("backends not decoded: %+v", cfg.Classifier.Backends)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := ParseBytes("agenda.json", []byte(`{"telegram":{"token":"x"},"plugins":{}}`))
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	if _, err := ParseBytes("agenda.json", []byte(`{} {}`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Interpreter: InterpreterConfig{ConfidenceThreshold: 1.5, PastGrace: "soon", Morning: "8am"},
		Classifier:  ClassifierConfig{Backends: []BackendConfig{{Kind: "keyword"}, {Kind: "keyword"}, {Kind: "llama"}}},
		Reminders:   ReminderConfig{SweepSchedule: "every five minutes"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected errors")
	}
	for _, want := range []string{
		"telegram.token", "confidence_threshold", "past_grace", "interpreter.morning",
		"duplicate backend name", "unknown backend kind", "sweep_schedule",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	hm, err := ParseClockField("x", "19:45", [2]int{})
	if err != nil || hm != [2]int{19, 45} {
		t.Fatalf("clock: %v %v", hm, err)
	}
	wd, err := ParseWeekdayField("x", "Mon", time.Sunday)
	if err != nil || wd != time.Monday {
		t.Fatalf("weekday: %v %v", wd, err)
	}
	d, err := ParseDurationOrDefault("x", "", 5*time.Minute)
	if err != nil || d != 5*time.Minute {
		t.Fatalf("duration: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a, _ := ParseBytes("a.yaml", []byte(sampleYAML))
	b, _ := ParseBytes("b.yaml", []byte(sampleYAML))
	b.Logging.Level = "info"
	b.Reminders.MaxLeadMinutes = 60

	changed, attrs := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "logging,reminders" {
		t.Fatalf("changed=%v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if got := RestartRequired(changed); len(got) != 1 || got[0] != "reminders" {
		t.Fatalf("restart required=%v", got)
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "agenda.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	updated := strings.Replace(sampleYAML, "level: debug", "level: warn", 1)
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		// Rewrite until the watcher is up and notices.
		_ = os.WriteFile(path, []byte(updated), 0o600)
		select {
		case cfg := <-ch:
			if cfg.Logging.Level != "warn" {
				t.Fatalf("unexpected level %q", cfg.Logging.Level)
			}
			return
		case <-deadline:
			t.Fatalf("no config published")
		case <-tick.C:
		}
	}
}
