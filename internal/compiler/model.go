// Package compiler turns CUE model declarations into schema declarations.
//
// A declaration file looks like:
//
//	model: Book: {
//		fields: title: {label: "Title", default: "untitled"}
//		relations: author: {kind: "foreign_key", to: "Author", related_name: "books"}
//	}
//
// Fields and relations keep their CUE declaration order.
package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/sirupsen/logrus"

	"github.com/roach88/vaultorm/internal/schema"
)

// ModelDecl is one compiled model declaration.
type ModelDecl struct {
	Name      string
	Fields    []FieldDecl
	Relations []RelationDecl
	Pos       token.Pos
}

// FieldDecl is a stored field declaration.
type FieldDecl struct {
	Name       string
	Label      string
	Default    any
	HasDefault bool
	Pos        token.Pos
}

// RelationDecl is a relation declaration.
type RelationDecl struct {
	Name        string
	Kind        schema.Kind
	To          string
	RelatedName string
	Label       string
	Pos         token.Pos
}

// CompileModels compiles every model under the "model" struct of v. A value
// without models compiles to an empty slice.
func CompileModels(v cue.Value) ([]ModelDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, nil
	}

	iter, err := modelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var decls []ModelDecl
	for iter.Next() {
		decl, err := CompileModel(iter.Value())
		if err != nil {
			return nil, err
		}
		decls = append(decls, *decl)
	}
	return decls, nil
}

// CompileModel compiles a single model struct. The model name is the last
// selector of the value's path, e.g. "Book" for model.Book.
func CompileModel(v cue.Value) (*ModelDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decl := &ModelDecl{Pos: v.Pos()}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		decl.Name = labels[len(labels)-1].String()
	}
	if decl.Name == "" {
		return nil, &CompileError{Field: "model", Message: "model name is required", Pos: v.Pos()}
	}

	var err error
	decl.Fields, err = parseFields(decl.Name, v)
	if err != nil {
		return nil, err
	}
	decl.Relations, err = parseRelations(decl.Name, v)
	if err != nil {
		return nil, err
	}
	return decl, nil
}

func parseFields(model string, v cue.Value) ([]FieldDecl, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var fields []FieldDecl
	for iter.Next() {
		fv := iter.Value()
		field := FieldDecl{Name: iter.Label(), Pos: fv.Pos()}

		if field.Label, err = optionalString(fv, "label"); err != nil {
			return nil, err
		}

		defVal := fv.LookupPath(cue.ParsePath("default"))
		if defVal.Exists() {
			def, err := scalar(defVal)
			if err != nil {
				return nil, &CompileError{
					Field:   fmt.Sprintf("%s.fields.%s.default", model, field.Name),
					Message: err.Error(),
					Pos:     defVal.Pos(),
				}
			}
			field.Default, field.HasDefault = def, true
		}
		fields = append(fields, field)
	}
	return fields, nil
}

func parseRelations(model string, v cue.Value) ([]RelationDecl, error) {
	relsVal := v.LookupPath(cue.ParsePath("relations"))
	if !relsVal.Exists() {
		return nil, nil
	}

	iter, err := relsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []RelationDecl
	for iter.Next() {
		rv := iter.Value()
		rel := RelationDecl{Name: iter.Label(), Pos: rv.Pos()}
		path := fmt.Sprintf("%s.relations.%s", model, rel.Name)

		kindVal := rv.LookupPath(cue.ParsePath("kind"))
		if !kindVal.Exists() {
			return nil, &CompileError{Field: path + ".kind", Message: "relation kind is required", Pos: rv.Pos()}
		}
		kindName, err := kindVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if rel.Kind, err = schema.ParseKind(kindName); err != nil {
			return nil, &CompileError{Field: path + ".kind", Message: err.Error(), Pos: kindVal.Pos()}
		}

		toVal := rv.LookupPath(cue.ParsePath("to"))
		if !toVal.Exists() {
			return nil, &CompileError{Field: path + ".to", Message: "relation target is required", Pos: rv.Pos()}
		}
		if rel.To, err = toVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if rel.RelatedName, err = optionalString(rv, "related_name"); err != nil {
			return nil, err
		}
		if rel.Label, err = optionalString(rv, "label"); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// scalar extracts a concrete string, number, bool or null.
func scalar(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.StringKind:
		return v.String()
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.BottomKind:
		return nil, fmt.Errorf("default must be concrete")
	default:
		return nil, fmt.Errorf("default must be a string, number, bool or null, got %v", v.Kind())
	}
}

// Apply declares decls on b.
func Apply(b *schema.Builder, decls []ModelDecl) {
	for _, d := range decls {
		mb := b.Model(d.Name)
		for _, f := range d.Fields {
			var opts []schema.Option
			if f.Label != "" {
				opts = append(opts, schema.Label(f.Label))
			}
			if f.HasDefault {
				opts = append(opts, schema.Default(f.Default))
			}
			mb.Field(f.Name, opts...)
		}
		for _, r := range d.Relations {
			var opts []schema.Option
			if r.Label != "" {
				opts = append(opts, schema.Label(r.Label))
			}
			if r.RelatedName != "" {
				opts = append(opts, schema.RelatedName(r.RelatedName))
			}
			switch r.Kind {
			case schema.ForeignKey:
				mb.ForeignKey(r.Name, r.To, opts...)
			case schema.OneToOne:
				mb.OneToOne(r.Name, r.To, opts...)
			case schema.ManyToMany:
				mb.ManyToMany(r.Name, r.To, opts...)
			}
		}
	}
}

// BuildRegistry validates decls and builds them into a Registry.
func BuildRegistry(decls []ModelDecl, log logrus.FieldLogger) (*schema.Registry, error) {
	if errs := Validate(decls); len(errs) > 0 {
		return nil, errs[0]
	}
	b := schema.NewBuilder()
	if log != nil {
		b = b.WithLogger(log)
	}
	Apply(b, decls)
	return b.Build()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
