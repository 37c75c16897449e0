package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/metrics"
	"github.com/roach88/vaultorm/internal/store"
)

// Engine materializes Specs against one Store.
type Engine struct {
	store *store.Store
}

// NewEngine returns an Engine reading from s.
func NewEngine(s *store.Store) *Engine {
	return &Engine{store: s}
}

// Execute returns the records matching spec, as independent copies.
//
// Partitions are visited newest first. Within a partition, records keep file
// order. Without an ordering, a limit stops the scan as soon as it is
// reached; with one, the full result is sorted (stably) and then truncated.
func (e *Engine) Execute(ctx context.Context, spec Spec) (_ []ir.Record, err error) {
	start := time.Now()
	defer func() {
		status := metrics.Ok
		if err != nil {
			status = metrics.Fail
		}
		metrics.QueryDurationSeconds.WithLabelValues(spec.model, status).Observe(time.Since(start).Seconds())
	}()

	partitions, err := e.store.Scan(ctx, spec.model, spec.rng)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec.model, err)
	}

	lookups := spec.Lookups()
	probe, hasProbe := indexProbe(lookups)
	orderField, desc := spec.Order()
	earlyLimit := spec.limit > 0 && orderField == ""
	idx := e.store.Index(spec.model)

	var out []ir.Record
	for _, p := range partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var candidates []ir.Record
		if hasProbe && idx.Loaded(p.Date) {
			for _, entry := range idx.Lookup(probe.Field, probe.Value, p.Date) {
				candidates = append(candidates, entry.Record)
			}
			metrics.IndexHitsTotal.WithLabelValues(spec.model).Inc()
		} else {
			candidates, err = e.store.Load(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", spec.model, err)
			}
		}

		for _, rec := range candidates {
			ok, err := MatchAll(rec, lookups)
			if err != nil {
				return nil, fmt.Errorf("query %s: %w", spec.model, err)
			}
			if !ok {
				continue
			}
			out = append(out, rec.Clone())
			if earlyLimit && len(out) >= spec.limit {
				return out, nil
			}
		}
	}

	if orderField != "" {
		if err := sortRecords(out, orderField, desc); err != nil {
			return nil, fmt.Errorf("query %s: %w", spec.model, err)
		}
	}
	if spec.limit > 0 && len(out) > spec.limit {
		out = out[:spec.limit]
	}
	return out, nil
}

// indexProbe picks the exact lookup answered by the index. Records lacking a
// field are not indexed under it, yet match any value whose key is "null", so
// such lookups always scan.
func indexProbe(lookups []Lookup) (Lookup, bool) {
	nullKey := ir.Key(nil)
	for _, l := range lookups {
		if l.Op == Exact && ir.Key(l.Value) != nullKey {
			return l, true
		}
	}
	return Lookup{}, false
}

// sortRecords stable-sorts by field. Records lacking the field (or holding
// nil) sort before all others in ascending order.
func sortRecords(records []ir.Record, field string, desc bool) error {
	var cmpErr error
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i][field], records[j][field]
		if desc {
			a, b = b, a
		}
		switch {
		case a == nil && b == nil:
			return false
		case a == nil:
			return true
		case b == nil:
			return false
		}
		c, err := ir.Compare(a, b)
		if err != nil {
			if cmpErr == nil {
				cmpErr = err
			}
			return false
		}
		return c < 0
	})
	return cmpErr
}
