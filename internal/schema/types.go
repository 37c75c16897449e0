// Package schema declares models, their fields and relations, and wires the
// relation graph: reverse-lookup metadata on related models and a synthesized
// junction model for every many-to-many relation.
//
// Models are declared on a Builder and fixed by Build. A Registry is
// immutable afterward and safe for concurrent reads.
package schema

import (
	"fmt"
	"slices"
)

// IDField is the field every model carries.
const IDField = "id"

// Junction model field names.
const (
	FromField = "from_model"
	ToField   = "to_model"
)

// Kind is the kind of a relation.
type Kind int

const (
	ForeignKey Kind = iota + 1
	OneToOne
	ManyToMany
)

func (k Kind) String() string {
	switch k {
	case ForeignKey:
		return "foreign_key"
	case OneToOne:
		return "one_to_one"
	case ManyToMany:
		return "many_to_many"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a kind name to a Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range []Kind{ForeignKey, OneToOne, ManyToMany} {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown relation kind %q", name)
}

// Field is a stored field. Values are not type checked.
type Field struct {
	Name       string
	Label      string
	Default    any
	HasDefault bool
}

// Relation is a declared relation. ForeignKey and OneToOne relations are also
// stored fields holding the target id; ManyToMany membership lives only in
// the Through junction model.
type Relation struct {
	Name        string
	Kind        Kind
	Target      string
	RelatedName string

	// Through names the junction model of a ManyToMany relation.
	Through string
}

// Reverse describes a relation declared on another model that points here.
type Reverse struct {
	// Name is the related_name the entry is registered under.
	Name string

	// Model and Field identify the declaring relation.
	Model string
	Field string
	Kind  Kind
}

// Model is a fixed model definition.
type Model struct {
	Name      string
	Fields    []Field
	Relations []Relation

	// Junction is set on synthesized many-to-many junction models.
	Junction bool

	reverse      map[string][]Reverse
	reverseNames []string
}

// Field returns the stored field called name.
func (m *Model) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the stored field names in declaration order.
func (m *Model) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// Relation returns the relation declared as name.
func (m *Model) Relation(name string) (Relation, bool) {
	for _, r := range m.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// Reverse returns the reverse entries registered under name, in registration
// order. More than one entry means several relations share the name.
func (m *Model) Reverse(name string) []Reverse {
	return slices.Clone(m.reverse[name])
}

// ReverseNames returns every registered related_name in registration order.
func (m *Model) ReverseNames() []string {
	return slices.Clone(m.reverseNames)
}

func (m *Model) addReverse(r Reverse) bool {
	if m.reverse == nil {
		m.reverse = make(map[string][]Reverse)
	}
	existing, collided := m.reverse[r.Name]
	if !collided {
		m.reverseNames = append(m.reverseNames, r.Name)
	}
	m.reverse[r.Name] = append(existing, r)
	return collided
}

// Diagnostic reports a non-fatal schema problem found by Build.
type Diagnostic struct {
	Model   string
	Name    string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s.%s: %s", d.Model, d.Name, d.Message)
}

// Registry maps model names to models for one storage root.
type Registry struct {
	models      map[string]*Model
	order       []string
	diagnostics []Diagnostic
}

// Model returns the model called name.
func (r *Registry) Model(name string) (*Model, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Models returns every model, junction models included, in registration order.
func (r *Registry) Models() []*Model {
	out := make([]*Model, len(r.order))
	for i, name := range r.order {
		out[i] = r.models[name]
	}
	return out
}

// Diagnostics returns the problems recorded while building.
func (r *Registry) Diagnostics() []Diagnostic {
	return slices.Clone(r.diagnostics)
}
