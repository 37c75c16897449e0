package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/roach88/vaultorm/internal/store"
)

// PartitionsOptions holds flags for the partitions command.
type PartitionsOptions struct {
	*RootOptions
	From string
	To   string
}

// PartitionInfo describes one partition file.
type PartitionInfo struct {
	Model string `json:"model"`
	Date  string `json:"date"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
}

// NewPartitionsCommand creates the partitions command.
func NewPartitionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PartitionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "partitions [model...]",
		Short: "List partition files",
		Long: `List the partition files of the storage root, newest first per model.
Without arguments every model with at least one partition is listed.

Examples:
  vaultorm partitions
  vaultorm partitions Book --from 2024-01-01 --to 2024-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPartitions(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last date (YYYY-MM-DD)")

	return cmd
}

func runPartitions(opts *PartitionsOptions, models []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	var rng *store.DateRange
	if opts.From != "" || opts.To != "" {
		if opts.From == "" || opts.To == "" {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "--from and --to go together", nil)
		}
		r, err := store.NewDateRange(opts.From, opts.To)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid range", err)
		}
		rng = &r
	}

	s, err := opts.open(cmd, f)
	if err != nil {
		return err
	}
	st := s.db.Store()

	if len(models) == 0 {
		if models, err = st.Models(ctx); err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, "list models", err)
		}
	}

	infos := []PartitionInfo{}
	var total int64
	for _, model := range models {
		parts, err := st.Scan(ctx, model, rng)
		if err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, "scan "+model, err)
		}
		for _, p := range parts {
			infos = append(infos, PartitionInfo{Model: p.Model, Date: p.Date, Path: p.Path, Size: p.Size})
			total += p.Size
		}
	}
	f.VerboseLog("Scanned %d model(s) under %s", len(models), st.Root())

	return f.Success(infos, func(w io.Writer) {
		if len(infos) == 0 {
			fmt.Fprintln(w, "No partitions found.")
			return
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tDATE\tSIZE\tPATH")
		for _, p := range infos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Model, p.Date, humanize.Bytes(uint64(p.Size)), p.Path)
		}
		tw.Flush()
		fmt.Fprintf(w, "%d partition(s), %s\n", len(infos), humanize.Bytes(uint64(total)))
	})
}
