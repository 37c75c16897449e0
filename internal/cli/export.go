package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultorm/internal/export"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <sqlite-file>",
		Short: "Export every model into a SQLite file",
		Long: `Decrypt every partition of every model declared in --schema and write
the records into a SQLite file: one table per model, one column per field
plus _partition. Existing tables of the same name are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(rootOpts, args[0], cmd)
		},
	}
}

func runExport(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	if opts.Schema == "" {
		return f.Fail(ExitCommandError, ErrCodeNotFound, "--schema is required", nil)
	}

	s, err := opts.open(cmd, f)
	if err != nil {
		return err
	}

	summary, err := export.New(s.db.Store(), s.db.Registry(), s.log).Export(cmd.Context(), path)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "export", err)
	}

	return f.Success(summary, func(w io.Writer) {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tPARTITIONS\tROWS")
		for _, m := range summary.Models {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", m.Model, m.Partitions, m.Rows)
		}
		tw.Flush()
		fmt.Fprintf(w, "✓ Exported %d row(s) to %s\n", summary.Rows(), summary.Path)
	})
}
