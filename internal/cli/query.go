package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/vaultorm/internal/ir"
	"github.com/roach88/vaultorm/internal/orm"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Filter  []string
	From    string
	To      string
	OrderBy string
	Limit   int
	Page    int
	PerPage int
	First   bool
	Count   bool
}

// QueryResult is the payload of the query command.
type QueryResult struct {
	Model   string      `json:"model"`
	Count   int         `json:"count"`
	Records []ir.Record `json:"records,omitempty"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <model>",
		Short: "Query the instances of a model",
		Long: `Query the instances of model. Filters use field lookups
(field, field__gt, field__icontains, field__in, ...); values are YAML scalars.
Records are printed as canonical JSON, one per line.

Examples:
  vaultorm query Book --filter pages__gt=300 --order-by -pages --limit 5
  vaultorm query Book --from 2024-01-01 --to 2024-01-31 --count
  vaultorm query Tag --filter label__icontains=fi --first`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Filter, "filter", nil, "lookup key=value (repeatable)")
	cmd.Flags().StringVar(&opts.From, "from", "", "first partition date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.To, "to", "", "last partition date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.OrderBy, "order-by", "", "order field, descending when prefixed by -")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of results")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number (1-based), with --per-page")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", 0, "page size, with --page")
	cmd.Flags().BoolVar(&opts.First, "first", false, "only the first match in scan order")
	cmd.Flags().BoolVar(&opts.Count, "count", false, "only print the number of matches")

	return cmd
}

// querySet builds the QuerySet described by the filter flags.
func querySet(db *orm.DB, model string, filter []string, from, to string) (*orm.QuerySet, error) {
	filters, err := parseAssignments(filter)
	if err != nil {
		return nil, err
	}
	qs := db.Objects(model)
	if len(filters) > 0 {
		qs = qs.Filter(filters)
	}
	if from != "" || to != "" {
		if from == "" || to == "" {
			return nil, fmt.Errorf("--from and --to go together")
		}
		qs = qs.Between(from, to)
	}
	return qs, nil
}

func runQuery(opts *QueryOptions, model string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := opts.open(cmd, f)
	if err != nil {
		return err
	}

	qs, err := querySet(s.db, model, opts.Filter, opts.From, opts.To)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "invalid query", err)
	}
	if opts.OrderBy != "" {
		qs = qs.OrderBy(opts.OrderBy)
	}
	if opts.Limit > 0 {
		qs = qs.Limit(opts.Limit)
	}

	res := QueryResult{Model: model}
	if opts.Count {
		if res.Count, err = qs.Count(ctx); err != nil {
			return f.Fail(ExitFailure, ErrCodeGeneric, "query "+model, err)
		}
		return f.Success(res, func(w io.Writer) { fmt.Fprintln(w, res.Count) })
	}

	var instances []*orm.Instance
	switch {
	case opts.First:
		var first *orm.Instance
		if first, err = qs.First(ctx); first != nil {
			instances = []*orm.Instance{first}
		}
	case opts.Page > 0 || opts.PerPage > 0:
		instances, err = qs.Paginate(ctx, opts.Page, opts.PerPage)
	default:
		instances, err = qs.All(ctx)
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeGeneric, "query "+model, err)
	}

	res.Count = len(instances)
	res.Records = make([]ir.Record, len(instances))
	for i, inst := range instances {
		res.Records[i] = inst.Record()
	}
	f.VerboseLog("%d %s instance(s)", res.Count, model)

	return f.Success(res, func(w io.Writer) {
		for _, rec := range res.Records {
			data, err := ir.MarshalCanonical(rec)
			if err != nil {
				fmt.Fprintf(w, "%v\n", rec)
				continue
			}
			fmt.Fprintln(w, string(data))
		}
	})
}
