// Package query materializes query specifications against the record store.
//
// A Spec names a model plus lookups ("field__op" keys), an optional date
// range, an optional ordering and an optional limit. Specs are immutable:
// every builder method returns a new Spec. Engine.Execute scans the model's
// partitions newest first, uses the secondary index for partitions it has
// already indexed, and evaluates every lookup against each candidate record.
package query

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/roach88/vaultorm/internal/ir"
)

// Op is a lookup operator.
type Op string

const (
	Exact     Op = "exact"
	Contains  Op = "contains"
	IContains Op = "icontains"
	Gt        Op = "gt"
	Lt        Op = "lt"
	In        Op = "in"
)

// Known reports whether op is a supported operator.
func (op Op) Known() bool {
	switch op {
	case Exact, Contains, IContains, Gt, Lt, In:
		return true
	}
	return false
}

// Lookup is one parsed filter.
type Lookup struct {
	Key   string
	Field string
	Op    Op
	Value any
}

// ParseLookup splits key at the first "__" into field and operator. A key
// without "__" is an exact lookup.
func ParseLookup(key string, value any) Lookup {
	field, op, found := strings.Cut(key, "__")
	if !found {
		op = string(Exact)
	}
	return Lookup{Key: key, Field: field, Op: Op(op), Value: value}
}

// fold case-folds s. Casers are stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Match evaluates the lookup against rec. An unknown operator rejects the
// record. Ordering comparisons between incomparable values return an
// *ir.CompareError.
func (l Lookup) Match(rec ir.Record) (bool, error) {
	actual := rec[l.Field]

	switch l.Op {
	case Exact:
		return ir.Key(actual) == ir.Key(l.Value), nil
	case Contains:
		return strings.Contains(ir.Key(actual), ir.Key(l.Value)), nil
	case IContains:
		return strings.Contains(fold(ir.Key(actual)), fold(ir.Key(l.Value))), nil
	case Gt:
		c, err := ir.Compare(actual, l.Value)
		if err != nil {
			return false, fmt.Errorf("lookup %s: %w", l.Key, err)
		}
		return c > 0, nil
	case Lt:
		c, err := ir.Compare(actual, l.Value)
		if err != nil {
			return false, fmt.Errorf("lookup %s: %w", l.Key, err)
		}
		return c < 0, nil
	case In:
		ok, err := ir.Contains(l.Value, actual)
		if err != nil {
			return false, fmt.Errorf("lookup %s: %w", l.Key, err)
		}
		return ok, nil
	default:
		return false, nil
	}
}

// MatchAll reports whether rec satisfies every lookup. Evaluation stops at
// the first failing lookup.
func MatchAll(rec ir.Record, lookups []Lookup) (bool, error) {
	for _, l := range lookups {
		ok, err := l.Match(rec)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
