package harness

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/orm"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Model    string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s %s\n", e.Type, e.Model)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// assertCount checks the number of instances matching the assertion's where
// clause.
func assertCount(ctx context.Context, db *orm.DB, a Assertion) error {
	n, err := db.Objects(a.Model).Filter(a.Where).Count(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", a.Model, err)
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Model:    a.Model,
			Expected: fmt.Sprintf("%d matching %s", a.Count, formatWhere(a.Where)),
			Actual:   fmt.Sprintf("%d", n),
		}
	}
	return nil
}

// assertFinalState checks the fields of the first instance matching the
// assertion's where clause (subset match).
func assertFinalState(ctx context.Context, db *orm.DB, a Assertion) error {
	inst, err := db.Objects(a.Model).Filter(a.Where).First(ctx)
	if err != nil {
		return fmt.Errorf("final_state %s: %w", a.Model, err)
	}
	if inst == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Model:    a.Model,
			Expected: fmt.Sprintf("an instance matching %s", formatWhere(a.Where)),
			Actual:   "none",
		}
	}

	rec := inst.Record()
	for _, field := range sortedKeys(a.Expect) {
		want := a.Expect[field]
		got, ok := rec[field]
		if !ok || !ir.Equal(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Model:    a.Model,
				Expected: fmt.Sprintf("%s = %s", field, ir.Stringify(want)),
				Actual:   fmt.Sprintf("%s = %s", field, ir.Stringify(got)),
			}
		}
	}
	return nil
}

func formatWhere(where map[string]any) string {
	if len(where) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, ir.Stringify(where[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(ctx context.Context, db *orm.DB, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCount:
			err = assertCount(ctx, db, a)
		case AssertFinalState:
			err = assertFinalState(ctx, db, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}
