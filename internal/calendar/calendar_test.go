package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
)

const sample = `
days:
  - date: "12-25"
    name: Christmas
    severity: block_suggested
  - date: "2025-12-25"
    name: Company party
    severity: warn
  - date: "02-29"
    name: Leap day
`

func TestFileLookup(t *testing.T) {
	t.Parallel()

	f, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Len() != 3 {
		t.Fatalf("len %d", f.Len())
	}
	loc := time.FixedZone("X", 2*3600)
	cases := []struct {
		at   time.Time
		name string
		sev  Severity
	}{
		{time.Date(2025, 12, 25, 18, 0, 0, 0, loc), "Company party", SeverityWarn},
		{time.Date(2026, 12, 25, 9, 0, 0, 0, loc), "Christmas", SeverityBlockSuggested},
		{time.Date(2028, 2, 29, 9, 0, 0, 0, loc), "Leap day", SeverityInfo},
		{time.Date(2026, 12, 24, 9, 0, 0, 0, loc), "", ""},
	}
	for _, tc := range cases {
		adv, err := f.Lookup(context.Background(), tc.at)
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		if adv.Name != tc.name || adv.Severity != tc.sev {
			t.Fatalf("%s: got %+v", tc.at, adv)
		}
		if !adv.Empty() && (adv.Date.Hour() != 0 || adv.Date.Location() != loc) {
			t.Fatalf("advisory date not at local midnight: %v", adv.Date)
		}
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	for _, doc := range []string{
		"days:\n  - date: \"13-01\"\n    name: x\n",
		"days:\n  - date: \"2025-01-01\"\n    name: x\n    severity: panic\n",
		"days:\n  - date: \"2025-01-01\"\n",
		"days: [",
	} {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Fatalf("expected error for %q", doc)
		}
	}
}

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Lookup(_ context.Context, d time.Time) (Advisory, error) {
	p.calls++
	if p.err != nil {
		return Advisory{}, p.err
	}
	return Advisory{Date: d, Name: "x", Severity: SeverityInfo}, nil
}

func TestCachedLookup(t *testing.T) {
	t.Parallel()

	p := &countingProvider{}
	c := NewCached(p, 8, time.Hour)
	now := time.Date(2025, 10, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	day := time.Date(2025, 10, 3, 9, 0, 0, 0, time.UTC)
	for range 3 {
		if _, err := c.Lookup(context.Background(), day); err != nil {
			t.Fatalf("Lookup: %v", err)
		}
	}
	// same day, different hour
	_, _ = c.Lookup(context.Background(), day.Add(5*time.Hour))
	if p.calls != 1 {
		t.Fatalf("calls %d want 1", p.calls)
	}

	now = now.Add(2 * time.Hour)
	_, _ = c.Lookup(context.Background(), day)
	if p.calls != 2 {
		t.Fatalf("expired entry not refreshed: calls %d", p.calls)
	}

	p.err = ErrUnavailable
	other := day.AddDate(0, 0, 1)
	for range 2 {
		if _, err := c.Lookup(context.Background(), other); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("err %v", err)
		}
	}
	if p.calls != 4 {
		t.Fatalf("errors must not be cached: calls %d", p.calls)
	}
}
