package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/roach88/vaultorm/internal/auth"
)

// SignupResult is the payload of the signup command.
type SignupResult struct {
	User      string `json:"user"`
	UsersFile string `json:"users_file"`
}

// NewSignupCommand creates the signup command.
func NewSignupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Register the descriptor's user",
		Long: `Register the user and password of the connection descriptor in the
storage root's users file. Writes are only accepted for registered users.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSignup(rootOpts, cmd)
		},
	}
}

func runSignup(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	desc, err := opts.descriptor()
	if err != nil {
		return failOpen(f, err)
	}
	cfg, err := opts.options()
	if err != nil {
		return failOpen(f, err)
	}
	log := opts.logger(cmd.ErrOrStderr(), cfg)

	path := usersFile(desc, cfg)
	mgr, err := auth.NewManager(afero.NewOsFs(), path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, "read users", err)
	}
	if err := mgr.Signup(desc.User, desc.Password); err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return f.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("user %q already exists", desc.User), nil)
		}
		return f.Fail(ExitCommandError, ErrCodeGeneric, "signup", err)
	}
	log.WithFields(logrus.Fields{"user": desc.User, "users_file": path}).Debug("user registered")

	res := SignupResult{User: desc.User, UsersFile: path}
	return f.Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Registered %s in %s\n", res.User, res.UsersFile)
	})
}
