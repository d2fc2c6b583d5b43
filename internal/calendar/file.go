package calendar

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Day is one entry of an advisory file. Date is either a full date (2025-12-25) or a
// yearly MM-DD (12-25).
type Day struct {
	Date     string   `yaml:"date"`
	Name     string   `yaml:"name"`
	Severity Severity `yaml:"severity"`
	Note     string   `yaml:"note"`
}

type fileDoc struct {
	Days []Day `yaml:"days"`
}

// File answers from a static list loaded once. Fixed dates win over yearly ones.
type File struct {
	fixed  map[string]Day // YYYY-MM-DD
	yearly map[string]Day // MM-DD
}

// LoadFile reads a YAML advisory file:
//
//	days:
//	  - date: "12-25"
//	    name: Christmas
//	    severity: block_suggested
//	  - date: "2025-10-07"
//	    name: Offsite
//	    severity: warn
func LoadFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calendar: read %s: %w", path, err)
	}
	return Parse(b)
}

func Parse(data []byte) (*File, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("calendar: parse: %w", err)
	}
	f := &File{fixed: map[string]Day{}, yearly: map[string]Day{}}
	for i, d := range doc.Days {
		d.Date = strings.TrimSpace(d.Date)
		if d.Severity == "" {
			d.Severity = SeverityInfo
		}
		if !d.Severity.valid() {
			return nil, fmt.Errorf("calendar: days[%d]: unknown severity %q", i, d.Severity)
		}
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("calendar: days[%d]: name is required", i)
		}
		if _, err := time.Parse("2006-01-02", d.Date); err == nil {
			f.fixed[d.Date] = d
			continue
		}
		// Feb 29 must parse, so check MM-DD against a leap year.
		if _, err := time.Parse("2006-01-02", "2024-"+d.Date); err == nil && len(d.Date) == 5 {
			f.yearly[d.Date] = d
			continue
		}
		return nil, fmt.Errorf("calendar: days[%d]: bad date %q (want YYYY-MM-DD or MM-DD)", i, d.Date)
	}
	return f, nil
}

func (f *File) Len() int { return len(f.fixed) + len(f.yearly) }

func (f *File) Lookup(ctx context.Context, date time.Time) (Advisory, error) {
	if err := ctx.Err(); err != nil {
		return Advisory{}, err
	}
	key := dayKey(date)
	d, ok := f.fixed[key]
	if !ok {
		d, ok = f.yearly[key[5:]]
	}
	if !ok {
		return Advisory{}, nil
	}
	y, m, dd := date.Date()
	return Advisory{
		Date:     time.Date(y, m, dd, 0, 0, 0, 0, date.Location()),
		Name:     d.Name,
		Severity: d.Severity,
		Note:     d.Note,
	}, nil
}
