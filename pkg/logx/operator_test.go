package logx

import (
	"strings"
	"testing"
)

func TestFormatOperatorLine(t *testing.T) {
	t.Parallel()

	line := `{"level":"error","time":"x","message":"delivery failed","job":"j1","err":"boom"}`
	got := formatOperatorLine([]byte(line))
	if !strings.HasPrefix(got, "[ERROR] delivery failed") {
		t.Fatalf("unexpected header: %q", got)
	}
	if !strings.Contains(got, "- err=boom\n- job=j1") {
		t.Fatalf("fields not sorted or missing: %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time should be dropped: %q", got)
	}
}

func TestFormatOperatorLineNotJSON(t *testing.T) {
	t.Parallel()

	if got := formatOperatorLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdefghijklmnop", 12, "abcdefghi..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.n); got != tc.want {
			t.Fatalf("truncate(%q,%d)=%q want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	if ParseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatalf("warning should map to warn")
	}
	if ParseLevel("nope", LevelDebug) != LevelDebug {
		t.Fatalf("unknown level should fall back")
	}
}
