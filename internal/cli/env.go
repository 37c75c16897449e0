package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/vaultorm/internal/compiler"
	"github.com/roach88/vaultorm/internal/config"
	"github.com/roach88/vaultorm/internal/orm"
	"github.com/roach88/vaultorm/internal/schema"
	"github.com/roach88/vaultorm/internal/store"
)

// descriptor returns --db, or the environment's descriptor.
func (o *RootOptions) descriptor() (config.Descriptor, error) {
	raw := o.DB
	if raw == "" {
		raw = os.Getenv(config.EnvDescriptor)
	}
	if raw == "" {
		return config.Descriptor{}, NewExitError(ExitCommandError,
			fmt.Sprintf("no database: pass --db or set %s", config.EnvDescriptor))
	}
	return config.ParseDescriptor(raw)
}

func (o *RootOptions) rawDescriptor() string {
	if o.DB != "" {
		return o.DB
	}
	return os.Getenv(config.EnvDescriptor)
}

func (o *RootOptions) options() (config.Options, error) {
	if o.Config == "" {
		return config.Defaults(), nil
	}
	return config.LoadFile(afero.NewOsFs(), o.Config)
}

func (o *RootOptions) logger(w io.Writer, opts config.Options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(opts.Level())
	if o.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// loadDecls compiles --schema, a .cue file or a directory of them.
func (o *RootOptions) loadDecls() ([]compiler.ModelDecl, error) {
	if o.Schema == "" {
		return nil, nil
	}
	info, err := os.Stat(o.Schema)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		res, err := compiler.LoadDir(o.Schema)
		if err != nil {
			return nil, err
		}
		return res.Models, nil
	}
	return compiler.LoadFile(o.Schema)
}

// registry builds the registry of --schema. Without a schema the registry is
// empty, which is enough for commands that only list partitions.
func (o *RootOptions) registry(log logrus.FieldLogger) (*schema.Registry, error) {
	decls, err := o.loadDecls()
	if err != nil {
		return nil, err
	}
	return compiler.BuildRegistry(decls, log)
}

// session is an open database with the logger it writes to.
type session struct {
	db   *orm.DB
	log  *logrus.Logger
	opts config.Options
}

// open opens the database named by the global flags. Failures are reported
// through f.
func (o *RootOptions) open(cmd *cobra.Command, f *OutputFormatter) (*session, error) {
	if _, err := o.descriptor(); err != nil {
		return nil, failOpen(f, err)
	}
	opts, err := o.options()
	if err != nil {
		return nil, failOpen(f, err)
	}
	log := o.logger(cmd.ErrOrStderr(), opts)

	reg, err := o.registry(log)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSchema, "load schema", err)
	}

	db, err := orm.Open(o.rawDescriptor(), reg, orm.WithOptions(opts), orm.WithLogger(log))
	if err != nil {
		return nil, failOpen(f, err)
	}
	f.VerboseLog("opened %s", db.Descriptor())
	return &session{db: db, log: log, opts: opts}, nil
}

func failOpen(f *OutputFormatter, err error) error {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return f.Fail(exitErr.Code, ErrCodeNoDatabase, exitErr.Message, nil)
	case config.IsConfigError(err):
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	default:
		return f.Fail(ExitCommandError, ErrCodeGeneric, "open database", err)
	}
}

// failWrite reports a failed write, naming missing authentication.
func failWrite(f *OutputFormatter, op string, err error) error {
	if errors.Is(err, store.ErrUnauthorized) {
		return f.Fail(ExitCommandError, ErrCodeUnauthorized, op+": run signup first or check the descriptor's credentials", err)
	}
	return f.Fail(ExitFailure, ErrCodeGeneric, op, err)
}

// usersFile is the users file path of desc under opts.
func usersFile(desc config.Descriptor, opts config.Options) string {
	if filepath.IsAbs(opts.UsersFile) {
		return opts.UsersFile
	}
	return filepath.Join(desc.Root, opts.UsersFile)
}

// parseAssignments parses key=value pairs. Values are YAML scalars, so
// 3 is an integer, true a boolean and [a, b] a list.
func parseAssignments(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q: want key=value", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if v == nil && raw != "null" && raw != "~" {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}
