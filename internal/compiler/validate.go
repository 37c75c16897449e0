package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/vaultorm/internal/schema"
)

// Validation error codes (E100-E199)
const (
	ErrInvalidName      = "E101" // model, field or relation name is not an identifier
	ErrDuplicateName    = "E102" // model declared twice, or field and relation share a name
	ErrUnknownTarget    = "E103" // relation target is not a declared model
	ErrJunctionConflict = "E104" // synthesized junction name collides with a declared model
	ErrIDRelation       = "E105" // "id" declared as a relation
)

// ValidationError represents a model declaration error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks compiled declarations as a whole and returns every error
// found. Related-name collisions and shadowing are not errors; the schema
// builder reports them as diagnostics.
func Validate(decls []ModelDecl) []ValidationError {
	var errs []ValidationError

	declared := make(map[string]*ModelDecl, len(decls))
	for i := range decls {
		d := &decls[i]
		if !identPattern.MatchString(d.Name) {
			errs = append(errs, ValidationError{
				Field:   "model",
				Message: fmt.Sprintf("invalid model name %q", d.Name),
				Code:    ErrInvalidName,
				Line:    d.Pos.Line(),
			})
		}
		if _, dup := declared[d.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   d.Name,
				Message: fmt.Sprintf("model %q declared twice", d.Name),
				Code:    ErrDuplicateName,
				Line:    d.Pos.Line(),
			})
		}
		declared[d.Name] = d
	}

	for _, d := range decls {
		names := make(map[string]bool)
		for _, f := range d.Fields {
			errs = append(errs, checkName(d.Name, f.Name, f.Pos.Line(), names)...)
		}
		for _, r := range d.Relations {
			path := d.Name + "." + r.Name
			line := r.Pos.Line()
			errs = append(errs, checkName(d.Name, r.Name, line, names)...)

			if r.Name == schema.IDField {
				errs = append(errs, ValidationError{
					Field:   path,
					Message: "the id field cannot be a relation",
					Code:    ErrIDRelation,
					Line:    line,
				})
			}

			if _, ok := declared[r.To]; !ok {
				errs = append(errs, ValidationError{
					Field:   path + ".to",
					Message: fmt.Sprintf("unknown relation target %q", r.To),
					Code:    ErrUnknownTarget,
					Line:    line,
				})
			}

			if r.Kind == schema.ManyToMany {
				junction := schema.JunctionName(d.Name, r.Name)
				if _, clash := declared[junction]; clash {
					errs = append(errs, ValidationError{
						Field:   path,
						Message: fmt.Sprintf("junction model %q is already declared", junction),
						Code:    ErrJunctionConflict,
						Line:    line,
					})
				}
			}
		}
	}

	return errs
}

func checkName(model, name string, line int, seen map[string]bool) []ValidationError {
	var errs []ValidationError
	path := model + "." + name
	if !identPattern.MatchString(name) {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("invalid name %q", name),
			Code:    ErrInvalidName,
			Line:    line,
		})
	}
	if seen[name] {
		errs = append(errs, ValidationError{
			Field:   path,
			Message: fmt.Sprintf("%q declared twice", name),
			Code:    ErrDuplicateName,
			Line:    line,
		})
	}
	seen[name] = true
	return errs
}
