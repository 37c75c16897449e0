package schema

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Option configures a field or relation declaration.
type Option func(*decl)

// Label sets the display label.
func Label(label string) Option {
	return func(d *decl) { d.label = label }
}

// Default sets the value serialized when the field is nil.
func Default(v any) Option {
	return func(d *decl) { d.def, d.hasDefault = v, true }
}

// RelatedName registers a reverse accessor called name on the target model.
func RelatedName(name string) Option {
	return func(d *decl) { d.relatedName = name }
}

type decl struct {
	name        string
	kind        Kind // zero for plain fields
	target      string
	label       string
	def         any
	hasDefault  bool
	relatedName string
}

// Builder collects model declarations. Build resolves them into a Registry.
type Builder struct {
	models []*ModelBuilder
	log    logrus.FieldLogger
}

// NewBuilder returns an empty Builder logging to the standard logger.
func NewBuilder() *Builder {
	return &Builder{log: logrus.StandardLogger()}
}

// WithLogger sets the logger Build reports diagnostics to.
func (b *Builder) WithLogger(log logrus.FieldLogger) *Builder {
	b.log = log
	return b
}

// ModelBuilder declares the fields and relations of one model.
type ModelBuilder struct {
	name  string
	decls []decl
}

// Model starts (or continues) the declaration of model name.
func (b *Builder) Model(name string) *ModelBuilder {
	for _, m := range b.models {
		if m.name == name {
			return m
		}
	}
	m := &ModelBuilder{name: name}
	b.models = append(b.models, m)
	return m
}

// Field declares a stored field.
func (m *ModelBuilder) Field(name string, opts ...Option) *ModelBuilder {
	return m.add(name, 0, "", opts)
}

// ForeignKey declares a stored reference to one target instance.
func (m *ModelBuilder) ForeignKey(name, target string, opts ...Option) *ModelBuilder {
	return m.add(name, ForeignKey, target, opts)
}

// OneToOne declares a foreign key whose reverse accessor yields one instance.
func (m *ModelBuilder) OneToOne(name, target string, opts ...Option) *ModelBuilder {
	return m.add(name, OneToOne, target, opts)
}

// ManyToMany declares a relation stored in a synthesized junction model.
func (m *ModelBuilder) ManyToMany(name, target string, opts ...Option) *ModelBuilder {
	return m.add(name, ManyToMany, target, opts)
}

func (m *ModelBuilder) add(name string, kind Kind, target string, opts []Option) *ModelBuilder {
	d := decl{name: name, kind: kind, target: target}
	for _, opt := range opts {
		opt(&d)
	}
	m.decls = append(m.decls, d)
	return m
}

// JunctionName returns the junction model name of relation field on model.
func JunctionName(model, field string) string {
	return model + cases.Title(language.Und, cases.NoLower).String(field) + "Through"
}

// Build validates the declarations and returns the Registry.
//
// Pass one normalizes every model and creates junction shells. Pass two binds
// relation targets by name, binds each junction's from_model to its declaring
// model, and registers reverse metadata.
func (b *Builder) Build() (*Registry, error) {
	reg := &Registry{models: make(map[string]*Model)}
	register := func(m *Model) error {
		if _, dup := reg.models[m.Name]; dup {
			return fmt.Errorf("build schema: model %q declared twice", m.Name)
		}
		reg.models[m.Name] = m
		reg.order = append(reg.order, m.Name)
		return nil
	}

	// Pass one.
	for _, mb := range b.models {
		if mb.name == "" {
			return nil, fmt.Errorf("build schema: empty model name")
		}
		m, junctions, err := mb.normalize()
		if err != nil {
			return nil, fmt.Errorf("build schema: %w", err)
		}
		if err := register(m); err != nil {
			return nil, err
		}
		for _, j := range junctions {
			if err := register(j); err != nil {
				return nil, err
			}
		}
	}

	// Pass two.
	for _, name := range reg.order {
		m := reg.models[name]
		for _, rel := range m.Relations {
			if rel.Kind != ManyToMany {
				continue
			}
			j := reg.models[rel.Through]
			for i := range j.Relations {
				if j.Relations[i].Name == FromField {
					j.Relations[i].Target = m.Name
				}
			}
		}
	}
	for _, name := range reg.order {
		m := reg.models[name]
		for _, rel := range m.Relations {
			target, ok := reg.models[rel.Target]
			if !ok {
				return nil, fmt.Errorf("build schema: %s.%s: unknown relation target %q", m.Name, rel.Name, rel.Target)
			}
			if rel.RelatedName != "" {
				reg.addReverse(b.log, target, Reverse{Name: rel.RelatedName, Model: m.Name, Field: rel.Name, Kind: rel.Kind})
			}
		}
	}

	return reg, nil
}

func (r *Registry) addReverse(log logrus.FieldLogger, target *Model, rev Reverse) {
	if target.addReverse(rev) {
		d := Diagnostic{
			Model:   target.Name,
			Name:    rev.Name,
			Message: fmt.Sprintf("related name shared by %d relations; reverse lookups fan in", len(target.reverse[rev.Name])),
		}
		r.diagnostics = append(r.diagnostics, d)
		log.WithFields(logrus.Fields{
			"model":        target.Name,
			"related_name": rev.Name,
			"from":         rev.Model + "." + rev.Field,
		}).Warn("related name collision")
	}
	if _, ok := target.Field(rev.Name); ok {
		r.diagnostics = append(r.diagnostics, Diagnostic{
			Model:   target.Name,
			Name:    rev.Name,
			Message: "related name shadows a stored field",
		})
	}
}

// normalize produces the model and its junction shells.
func (mb *ModelBuilder) normalize() (*Model, []*Model, error) {
	m := &Model{Name: mb.name}
	seen := make(map[string]bool)
	var junctions []*Model

	for _, d := range mb.decls {
		if d.name == "" {
			return nil, nil, fmt.Errorf("%s: empty field name", mb.name)
		}
		if seen[d.name] {
			return nil, nil, fmt.Errorf("%s.%s: declared twice", mb.name, d.name)
		}
		seen[d.name] = true

		if d.kind == 0 {
			if d.relatedName != "" {
				return nil, nil, fmt.Errorf("%s.%s: related name on a plain field", mb.name, d.name)
			}
			m.Fields = append(m.Fields, Field{Name: d.name, Label: d.label, Default: d.def, HasDefault: d.hasDefault})
			continue
		}

		if d.target == "" {
			return nil, nil, fmt.Errorf("%s.%s: relation without target", mb.name, d.name)
		}
		rel := Relation{Name: d.name, Kind: d.kind, Target: d.target, RelatedName: d.relatedName}
		if d.kind == ManyToMany {
			rel.Through = JunctionName(mb.name, d.name)
			junctions = append(junctions, junctionShell(rel.Through, d.target))
		} else {
			m.Fields = append(m.Fields, Field{Name: d.name, Label: d.label, Default: d.def, HasDefault: d.hasDefault})
		}
		m.Relations = append(m.Relations, rel)
	}

	if !seen[IDField] {
		m.Fields = append(m.Fields, Field{Name: IDField})
	}
	return m, junctions, nil
}

// junctionShell returns a junction model whose from_model target is bound in
// pass two.
func junctionShell(name, target string) *Model {
	return &Model{
		Name:     name,
		Junction: true,
		Fields: []Field{
			{Name: FromField},
			{Name: ToField},
			{Name: IDField},
		},
		Relations: []Relation{
			{Name: FromField, Kind: ForeignKey},
			{Name: ToField, Kind: ForeignKey, Target: target},
		},
	}
}
