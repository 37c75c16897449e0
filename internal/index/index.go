package index

import (
	"sort"
	"sync"

	"github.com/roach88/vaultorm/internal/ir"
)

// Entry is one indexed record together with the date of its partition.
type Entry struct {
	Date   string
	Record ir.Record
}

// ModelIndex indexes every field of one model's records. A partition is added
// whole and at most once; Loaded reports which dates are covered.
//
// Thread-safety: all methods are safe for concurrent use.
type ModelIndex struct {
	mu     sync.RWMutex
	fields map[string]*Node[Entry]
	dates  map[string]struct{}
}

// NewModelIndex returns an empty index.
func NewModelIndex() *ModelIndex {
	return &ModelIndex{
		fields: make(map[string]*Node[Entry]),
		dates:  make(map[string]struct{}),
	}
}

// AddPartition indexes every record of the partition for date. It returns
// false without changes when date is already indexed.
func (x *ModelIndex) AddPartition(date string, records []ir.Record) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.dates[date]; ok {
		return false
	}
	x.dates[date] = struct{}{}
	for _, rec := range records {
		x.addLocked(date, rec)
	}
	return true
}

// Append indexes rec, just appended to the partition for date. When that
// partition is not indexed yet, the whole partition (which includes rec) is
// indexed instead, so a partition is never indexed partially.
func (x *ModelIndex) Append(date string, partition []ir.Record, rec ir.Record) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.dates[date]; ok {
		x.addLocked(date, rec)
		return
	}
	x.dates[date] = struct{}{}
	for _, r := range partition {
		x.addLocked(date, r)
	}
}

func (x *ModelIndex) addLocked(date string, rec ir.Record) {
	for field, value := range rec {
		root, ok := x.fields[field]
		if !ok {
			root = NewNode[Entry]()
			x.fields[field] = root
		}
		root.Insert([]string{ir.Key(value)}, Entry{Date: date, Record: rec})
	}
}

// Loaded reports whether the partition for date has been indexed.
func (x *ModelIndex) Loaded(date string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.dates[date]
	return ok
}

// Dates returns the indexed dates, newest first.
func (x *ModelIndex) Dates() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]string, 0, len(x.dates))
	for d := range x.dates {
		out = append(out, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out
}

// Lookup returns the entries whose field equals value, optionally restricted
// to one partition date. The result is a copy.
func (x *ModelIndex) Lookup(field string, value any, date string) []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	root, ok := x.fields[field]
	if !ok {
		return nil
	}
	found := root.Search([]string{ir.Key(value)})
	out := make([]Entry, 0, len(found))
	for _, e := range found {
		if date == "" || e.Date == date {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops every indexed partition.
func (x *ModelIndex) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.fields = make(map[string]*Node[Entry])
	x.dates = make(map[string]struct{})
}

// Registry holds one ModelIndex per model name.
type Registry struct {
	mu     sync.Mutex
	models map[string]*ModelIndex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]*ModelIndex)}
}

// For returns the index for model, creating it on first use.
func (r *Registry) For(model string) *ModelIndex {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, ok := r.models[model]
	if !ok {
		x = NewModelIndex()
		r.models[model] = x
	}
	return x
}
