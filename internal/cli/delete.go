package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	Filter []string
	All    bool
}

// DeleteResult is the payload of the delete command.
type DeleteResult struct {
	Model   string `json:"model"`
	Deleted int    `json:"deleted"`
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <model>",
		Short: "Delete the instances of a model matching a filter",
		Long: `Delete every instance of model whose fields equal every --filter value,
across all partitions. Filters are exact field=value pairs; lookups such as
pages__gt are rejected. Deleting every instance needs --all.

Examples:
  vaultorm delete Book --filter id=3f1c...
  vaultorm delete Tag --all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Filter, "filter", nil, "exact field=value (repeatable)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "delete every instance when no filter is given")

	return cmd
}

func runDelete(opts *DeleteOptions, model string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	match, err := parseAssignments(opts.Filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "parse --filter", err)
	}
	for key := range match {
		if strings.Contains(key, "__") {
			return f.Fail(ExitCommandError, ErrCodeGeneric,
				fmt.Sprintf("delete matches fields exactly; lookup %q is not supported", key), nil)
		}
	}
	if len(match) == 0 && !opts.All {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "refusing to delete every instance without --all", nil)
	}

	s, err := opts.open(cmd, f)
	if err != nil {
		return err
	}

	n, err := s.db.Delete(cmd.Context(), model, match)
	if err != nil {
		return failWrite(f, "delete "+model, err)
	}
	s.log.WithFields(logrus.Fields{"model": model, "deleted": n}).Debug("deleted instances")

	res := DeleteResult{Model: model, Deleted: n}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Deleted %d %s instance(s)\n", n, model)
	})
}
