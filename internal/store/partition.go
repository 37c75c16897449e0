package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DateLayout is the partition date format. Dates in this form order
// lexically.
const DateLayout = "2006-01-02"

// Partition identifies one model's partition file for one date.
type Partition struct {
	Model string
	Date  string
	Path  string
	Size  int64
}

// DateRange is an inclusive interval of partition dates.
type DateRange struct {
	From string
	To   string
}

// NewDateRange validates both bounds as YYYY-MM-DD.
func NewDateRange(from, to string) (DateRange, error) {
	for _, d := range []string{from, to} {
		if !validDate(d) {
			return DateRange{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
		}
	}
	return DateRange{From: from, To: to}, nil
}

// Contains reports whether date lies within the range.
func (r DateRange) Contains(date string) bool {
	return r.From <= date && date <= r.To
}

func validDate(s string) bool {
	t, err := time.Parse(DateLayout, s)
	return err == nil && t.Format(DateLayout) == s
}

// PathFor returns the partition path of model for the calendar date of t,
// creating its directories.
func (s *Store) PathFor(model string, t time.Time) (string, error) {
	dir := filepath.Join(s.opts.Root, t.Format("2006"), t.Format("01"), t.Format("02"))
	if err := s.opts.Fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create partition dir: %w", err)
	}
	return filepath.Join(dir, s.fileName(model)), nil
}

func (s *Store) fileName(model string) string {
	return model + "." + s.opts.Extension
}

// Scan lists the partitions of model, newest first. A nil rng lists all.
func (s *Store) Scan(ctx context.Context, model string, rng *DateRange) ([]Partition, error) {
	exists, err := afero.DirExists(s.opts.Fs, s.opts.Root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", model, err)
	}
	if !exists {
		return nil, nil
	}

	name := s.fileName(model)
	var out []Partition
	err = afero.Walk(s.opts.Fs, s.opts.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || info.Name() != name {
			return nil
		}

		date, ok := s.dateOf(path)
		if !ok {
			return nil
		}
		if rng != nil && !rng.Contains(date) {
			return nil
		}
		out = append(out, Partition{Model: model, Date: date, Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", model, err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// dateOf extracts YYYY-MM-DD from <root>/YYYY/MM/DD/<file>.
func (s *Store) dateOf(path string) (string, bool) {
	rel, err := filepath.Rel(s.opts.Root, path)
	if err != nil {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 {
		return "", false
	}
	date := parts[0] + "-" + parts[1] + "-" + parts[2]
	if !validDate(date) {
		return "", false
	}
	return date, true
}

// Models lists the distinct model names with at least one partition, sorted.
func (s *Store) Models(ctx context.Context) ([]string, error) {
	exists, err := afero.DirExists(s.opts.Fs, s.opts.Root)
	if err != nil || !exists {
		return nil, err
	}

	suffix := "." + s.opts.Extension
	seen := make(map[string]struct{})
	err = afero.Walk(s.opts.Fs, s.opts.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), suffix) {
			return nil
		}
		if _, ok := s.dateOf(path); ok {
			seen[strings.TrimSuffix(info.Name(), suffix)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	models := make([]string, 0, len(seen))
	for m := range seen {
		models = append(models, m)
	}
	sort.Strings(models)
	return models, nil
}
