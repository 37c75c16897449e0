package orm

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/query"
	"github.com/roach88/vaultorm/internal/schema"
	"github.com/roach88/vaultorm/internal/store"
)

// QuerySet is a lazy, immutable query over one model. Builder methods return
// new QuerySets; the first method that needs results materializes and caches
// them.
type QuerySet struct {
	db    *DB
	model *schema.Model
	spec  query.Spec
	err   error

	mu      sync.Mutex
	fetched bool
	results []*Instance
}

func (qs *QuerySet) derive(spec query.Spec, err error) *QuerySet {
	if qs.err != nil {
		err = qs.err
	}
	return &QuerySet{db: qs.db, model: qs.model, spec: spec, err: err}
}

// Spec returns the underlying query specification.
func (qs *QuerySet) Spec() query.Spec { return qs.spec }

// Err returns the deferred construction error, if any.
func (qs *QuerySet) Err() error { return qs.err }

// Filter narrows the set with "field__op" lookups. A key already present is
// replaced. *Instance values are replaced by their id.
func (qs *QuerySet) Filter(filters map[string]any) *QuerySet {
	return qs.derive(qs.spec.Filter(normalizeValues(filters)), nil)
}

// Between restricts the set to partitions dated from..to inclusive
// (YYYY-MM-DD). Invalid dates surface when the set is materialized.
func (qs *QuerySet) Between(from, to string) *QuerySet {
	rng, err := store.NewDateRange(from, to)
	if err != nil {
		return qs.derive(qs.spec, fmt.Errorf("between: %w", err))
	}
	return qs.derive(qs.spec.Between(rng), nil)
}

// OrderBy orders by field, descending when prefixed by "-".
func (qs *QuerySet) OrderBy(field string) *QuerySet {
	return qs.derive(qs.spec.OrderBy(field), nil)
}

// Limit caps the number of results.
func (qs *QuerySet) Limit(n int) *QuerySet {
	return qs.derive(qs.spec.Limit(n), nil)
}

func (qs *QuerySet) fetch(ctx context.Context) ([]*Instance, error) {
	if qs.err != nil {
		return nil, qs.err
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.fetched {
		return qs.results, nil
	}

	records, err := qs.db.engine.Execute(ctx, qs.spec)
	if err != nil {
		return nil, err
	}
	qs.results = qs.instances(records)
	qs.fetched = true
	return qs.results, nil
}

func (qs *QuerySet) instances(records []ir.Record) []*Instance {
	out := make([]*Instance, len(records))
	for i, rec := range records {
		out[i] = qs.db.fromRecord(qs.model, rec)
	}
	return out
}

// All materializes the set.
func (qs *QuerySet) All(ctx context.Context) ([]*Instance, error) {
	results, err := qs.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Instance, len(results))
	copy(out, results)
	return out, nil
}

// Count returns the number of instances in the set.
func (qs *QuerySet) Count(ctx context.Context) (int, error) {
	results, err := qs.fetch(ctx)
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// At returns the instance at position i of the materialized set.
func (qs *QuerySet) At(ctx context.Context, i int) (*Instance, error) {
	results, err := qs.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(results) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, i, len(results))
	}
	return results[i], nil
}

// First returns the first match in scan order, ignoring any ordering, or nil.
// A materialized set answers from its cache.
func (qs *QuerySet) First(ctx context.Context) (*Instance, error) {
	if qs.err != nil {
		return nil, qs.err
	}

	qs.mu.Lock()
	fetched, results := qs.fetched, qs.results
	qs.mu.Unlock()
	if fetched {
		if len(results) == 0 {
			return nil, nil
		}
		return results[0], nil
	}

	records, err := qs.db.engine.Execute(ctx, qs.spec.OrderBy("").Limit(1))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return qs.db.fromRecord(qs.model, records[0]), nil
}

// Exists reports whether the set has at least one instance.
func (qs *QuerySet) Exists(ctx context.Context) (bool, error) {
	first, err := qs.First(ctx)
	return first != nil, err
}

// Paginate returns page (1-based) of perPage instances from the materialized
// set. Pages out of range, page < 1 and perPage < 1 return an empty slice.
func (qs *QuerySet) Paginate(ctx context.Context, page, perPage int) ([]*Instance, error) {
	results, err := qs.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if page < 1 || perPage < 1 {
		return []*Instance{}, nil
	}

	start := (page - 1) * perPage
	if start >= len(results) {
		return []*Instance{}, nil
	}
	end := min(start+perPage, len(results))
	out := make([]*Instance, end-start)
	copy(out, results[start:end])
	return out, nil
}

// Records returns the serialized form of every instance in the set.
func (qs *QuerySet) Records(ctx context.Context) ([]ir.Record, error) {
	results, err := qs.fetch(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Record, len(results))
	for i, inst := range results {
		out[i] = inst.Record()
	}
	return out, nil
}

// normalizeValues replaces *Instance values by their ids.
func normalizeValues(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if inst, ok := v.(*Instance); ok && inst != nil {
			v = inst.ID()
		}
		out[k] = v
	}
	return out
}
