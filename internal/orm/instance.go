package orm

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/schema"
)

// Instance is one in-memory model object. Foreign key and one-to-one fields
// hold the raw id of their target; the resolved target is cached until the
// field is reassigned.
//
// Thread-safety: an Instance must not be used from several goroutines
// without external synchronization.
type Instance struct {
	db     *DB
	model  *schema.Model
	values map[string]any
	cache  map[string]*Instance
}

// New creates an unsaved instance of model. Values may only name stored
// fields; *Instance values are replaced by their id. A v4 UUID id is
// generated unless one is given.
func (db *DB) New(model string, values map[string]any) (*Instance, error) {
	m, err := db.Model(model)
	if err != nil {
		return nil, err
	}

	inst := &Instance{db: db, model: m, values: make(map[string]any, len(m.Fields))}
	for _, name := range m.FieldNames() {
		inst.values[name] = nil
	}
	for field, v := range values {
		if err := inst.Set(field, v); err != nil {
			return nil, err
		}
	}
	if inst.values[schema.IDField] == nil {
		inst.values[schema.IDField] = uuid.NewString()
	}
	return inst, nil
}

// fromRecord materializes a stored record. Undeclared fields are dropped.
func (db *DB) fromRecord(m *schema.Model, rec ir.Record) *Instance {
	inst := &Instance{db: db, model: m, values: make(map[string]any, len(m.Fields))}
	for _, name := range m.FieldNames() {
		inst.values[name] = ir.Normalize(rec[name])
	}
	return inst
}

// Model returns the instance's model.
func (i *Instance) Model() *schema.Model { return i.model }

// ID returns the stringified id.
func (i *Instance) ID() string {
	v := i.values[schema.IDField]
	if v == nil {
		return ""
	}
	return ir.Stringify(v)
}

// Get returns the raw value of a stored field.
func (i *Instance) Get(field string) (any, error) {
	v, ok := i.values[field]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, i.model.Name, field)
	}
	return v, nil
}

// Set assigns a stored field. Assigning a relation field drops its cached
// target; an *Instance value stores its id and becomes the cached target.
func (i *Instance) Set(field string, v any) error {
	if _, ok := i.model.Field(field); !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, i.model.Name, field)
	}

	if target, ok := v.(*Instance); ok {
		if target == nil {
			i.values[field] = nil
			delete(i.cache, field)
			return nil
		}
		rel, isRel := i.model.Relation(field)
		if isRel && target.model.Name != rel.Target {
			return fmt.Errorf("%s.%s: cannot link a %s", i.model.Name, field, target.model.Name)
		}
		i.values[field] = target.ID()
		if isRel {
			i.cacheTarget(field, target)
		}
		return nil
	}

	i.values[field] = ir.Normalize(v)
	delete(i.cache, field)
	return nil
}

func (i *Instance) cacheTarget(field string, target *Instance) {
	if i.cache == nil {
		i.cache = make(map[string]*Instance)
	}
	i.cache[field] = target
}

// Record returns the serialized form: one entry per stored field, with nil
// values replaced by the field default.
func (i *Instance) Record() ir.Record {
	rec := make(ir.Record, len(i.model.Fields))
	for _, f := range i.model.Fields {
		v := i.values[f.Name]
		if v == nil && f.HasDefault {
			v = ir.Normalize(f.Default)
		}
		rec[f.Name] = v
	}
	return rec
}

// Save appends the instance to today's partition of its model. Saving again
// appends another copy.
func (i *Instance) Save(ctx context.Context) error {
	if _, err := i.db.store.Append(ctx, i.model.Name, i.Record()); err != nil {
		return fmt.Errorf("save %s %s: %w", i.model.Name, i.ID(), err)
	}
	return nil
}

// Related resolves a foreign key or one-to-one field to its target instance.
// It returns nil when the field is unset or the target does not exist.
func (i *Instance) Related(ctx context.Context, field string) (*Instance, error) {
	rel, ok := i.model.Relation(field)
	if !ok || rel.Kind == schema.ManyToMany {
		return nil, fmt.Errorf("%w: %s.%s is not a foreign key", ErrNotRelation, i.model.Name, field)
	}
	if cached, ok := i.cache[field]; ok {
		return cached, nil
	}

	id := i.values[field]
	if id == nil {
		return nil, nil
	}
	target, err := i.db.Objects(rel.Target).Filter(map[string]any{schema.IDField: id}).First(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve %s.%s: %w", i.model.Name, field, err)
	}
	if target != nil {
		i.cacheTarget(field, target)
	}
	return target, nil
}

// Many returns the manager of a many-to-many field.
func (i *Instance) Many(field string) (*Manager, error) {
	rel, ok := i.model.Relation(field)
	if !ok || rel.Kind != schema.ManyToMany {
		return nil, fmt.Errorf("%w: %s.%s is not many-to-many", ErrNotRelation, i.model.Name, field)
	}
	through, err := i.db.Model(rel.Through)
	if err != nil {
		return nil, err
	}
	return &Manager{owner: i, field: field, through: through.Name, target: rel.Target}, nil
}

func (i *Instance) reverse(name string) ([]schema.Reverse, error) {
	entries := i.model.Reverse(name)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no reverse relation %q", ErrNotRelation, i.model.Name, name)
	}
	return entries, nil
}

// ReverseSets returns one QuerySet per relation registered under name: the
// declaring model's instances pointing at this instance. Several entries
// mean several relations share the related name.
func (i *Instance) ReverseSets(ctx context.Context, name string) ([]*QuerySet, error) {
	entries, err := i.reverse(name)
	if err != nil {
		return nil, err
	}
	out := make([]*QuerySet, 0, len(entries))
	for _, e := range entries {
		qs, err := i.reverseSet(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, qs)
	}
	return out, nil
}

// ReverseSet returns the QuerySet of the first relation registered under name.
func (i *Instance) ReverseSet(ctx context.Context, name string) (*QuerySet, error) {
	entries, err := i.reverse(name)
	if err != nil {
		return nil, err
	}
	return i.reverseSet(ctx, entries[0])
}

func (i *Instance) reverseSet(ctx context.Context, e schema.Reverse) (*QuerySet, error) {
	if e.Kind != schema.ManyToMany {
		return i.db.Objects(e.Model).Filter(map[string]any{e.Field: i.ID()}), nil
	}

	declaring, err := i.db.Model(e.Model)
	if err != nil {
		return nil, err
	}
	rel, _ := declaring.Relation(e.Field)
	links, err := i.db.Objects(rel.Through).Filter(map[string]any{schema.ToField: i.ID()}).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reverse %s.%s: %w", i.model.Name, e.Name, err)
	}
	return i.db.Objects(e.Model).Filter(map[string]any{"id__in": linkedIDs(links, schema.FromField)}), nil
}

// ReverseOne resolves a one-to-one reverse relation: the first declaring
// instance pointing at this one, or nil.
func (i *Instance) ReverseOne(ctx context.Context, name string) (*Instance, error) {
	entries, err := i.reverse(name)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Kind != schema.OneToOne {
			continue
		}
		found, err := i.db.Objects(e.Model).Filter(map[string]any{e.Field: i.ID()}).First(ctx)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

func linkedIDs(links []*Instance, field string) []any {
	ids := make([]any, 0, len(links))
	for _, l := range links {
		if v := l.values[field]; v != nil {
			ids = append(ids, v)
		}
	}
	return ids
}
