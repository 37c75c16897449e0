package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/schema"
)

// SaveOptions holds flags for the save command.
type SaveOptions struct {
	*RootOptions
	ID  string
	Set []string
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <model>",
		Short: "Create an instance and append it to today's partition",
		Long: `Create an instance of model from --set assignments and save it. Values
are YAML scalars: 3 is an integer, true a boolean, [a, b] a list.

Examples:
  vaultorm save Book --set title=Dune --set pages=412
  vaultorm save Tag --id scifi --set label="science fiction"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "explicit instance id (default: generated)")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "field assignment key=value (repeatable)")

	return cmd
}

func runSave(opts *SaveOptions, model string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	values, err := parseAssignments(opts.Set)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "parse --set", err)
	}
	if values == nil {
		values = map[string]any{}
	}
	if opts.ID != "" {
		values[schema.IDField] = opts.ID
	}

	s, err := opts.open(cmd, f)
	if err != nil {
		return err
	}

	inst, err := s.db.New(model, values)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "new "+model, err)
	}
	if err := inst.Save(cmd.Context()); err != nil {
		return failWrite(f, "save "+model, err)
	}

	rec := inst.Record()
	return f.Success(rec, func(w io.Writer) {
		data, _ := ir.MarshalCanonical(rec)
		fmt.Fprintf(w, "✓ Saved %s %s\n%s\n", model, inst.ID(), data)
	})
}
