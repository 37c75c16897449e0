package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultorm/internal/compiler"
	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/schema"
)

// SchemaResult is the payload of the schema command.
type SchemaResult struct {
	Models      []any    `json:"models"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Validate and describe the models of --schema",
		Long: `Compile the CUE model declarations of --schema, validate them and print
the resulting registry: fields, relations, junction models and reverse
accessors. Related-name collisions are reported as diagnostics.

Exit codes:
  0 - Models are valid
  1 - Validation errors
  2 - Command error (missing --schema, CUE syntax errors)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(rootOpts, cmd)
		},
	}
}

func runSchema(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Schema == "" {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "--schema is required", nil)
	}

	cfg, err := opts.options()
	if err != nil {
		return failOpen(f, err)
	}
	log := opts.logger(cmd.ErrOrStderr(), cfg)

	decls, err := opts.loadDecls()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeSchema, "load schema", err)
	}
	f.VerboseLog("Compiled %d model(s) from %s", len(decls), opts.Schema)

	if errs := compiler.Validate(decls); len(errs) > 0 {
		if err := f.Error(ErrCodeSchema, fmt.Sprintf("%d validation error(s)", len(errs)), errs); err != nil {
			return err
		}
		if f.Format != "json" {
			for _, e := range errs {
				fmt.Fprintf(f.Writer, "  %s\n", e.Error())
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(errs)))
	}

	reg, err := compiler.BuildRegistry(decls, log)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeSchema, "build registry", err)
	}

	res := SchemaResult{Models: reg.Describe()}
	for _, d := range reg.Diagnostics() {
		res.Diagnostics = append(res.Diagnostics, d.String())
	}
	return f.Success(res, func(w io.Writer) { describeText(w, reg) })
}

func describeText(w io.Writer, reg *schema.Registry) {
	for _, m := range reg.Models() {
		if m.Junction {
			fmt.Fprintf(w, "%s (junction)\n", m.Name)
		} else {
			fmt.Fprintln(w, m.Name)
		}
		for _, field := range m.Fields {
			line := "  " + field.Name
			if field.Label != "" {
				line += fmt.Sprintf(" %q", field.Label)
			}
			if field.HasDefault {
				line += " = " + ir.Stringify(field.Default)
			}
			fmt.Fprintln(w, line)
		}
		for _, rel := range m.Relations {
			line := fmt.Sprintf("  %s -> %s (%s", rel.Name, rel.Target, rel.Kind)
			if rel.RelatedName != "" {
				line += ", related " + rel.RelatedName
			}
			if rel.Through != "" {
				line += ", through " + rel.Through
			}
			fmt.Fprintln(w, line+")")
		}
		for _, name := range m.ReverseNames() {
			var from []string
			for _, rev := range m.Reverse(name) {
				from = append(from, rev.Model+"."+rev.Field)
			}
			fmt.Fprintf(w, "  <- %s (%s)\n", name, strings.Join(from, ", "))
		}
	}

	if diags := reg.Diagnostics(); len(diags) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%d diagnostic(s):\n", len(diags))
		for _, d := range diags {
			fmt.Fprintf(w, "  %s\n", d)
		}
	}
}
