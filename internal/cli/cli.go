// Package cli implements the signalbox command line.
package cli

import (
	"database/sql"
	"errors"
	"io"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/avivsinai/signalbox/internal/claim"
	"github.com/avivsinai/signalbox/internal/config"
	"github.com/avivsinai/signalbox/internal/logging"
	"github.com/avivsinai/signalbox/internal/mailbox"
)

// annotationCreatesConfig marks commands that may be pointed at a config file
// they are about to write.
const annotationCreatesConfig = "signalbox/creates-config"

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v          *viper.Viper
	configFile string
	jsonOut    bool

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
	in     io.Reader
}

// Run executes signalbox with args, not including the program name.
func Run(args []string) error {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

// NewRootCmd builds a fresh command tree with its own viper instance.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: logging.Discard()}

	root := &cobra.Command{
		Use:   "signalbox",
		Short: "Filesystem mailbox for a messaging bridge",
		Long: `signalbox exchanges messages with a bridge process through plain files.

Outgoing items are written to <root>/to-send/<client>/ and picked up by the
bridge. Incoming messages arrive in <root>/received/<client>/ and are drained
by one or more consumers, optionally partitioned by a first-line prefix.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WithExitCode(ExitUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./"+config.FileName+")")
	pf.BoolVar(&a.jsonOut, "json", false, "emit JSON output")
	pf.String("root", "", "messages root directory (or SIGNALBOX_ROOT)")
	pf.String("client", "", "client id, e.g. a phone number (or SIGNALBOX_CLIENT)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text, json")
	pf.String("claims", "", "claim backend for incoming items: marker, sqlite")
	pf.String("claims-db", "", "SQLite claims database (default <root>/.signalbox/claims.db)")
	bindFlags(a.v, pf, map[string]string{
		"root":               "root",
		"client":             "client",
		"logging.level":      "log-level",
		"logging.format":     "log-format",
		"claims.backend":     "claims",
		"claims.sqlite_path": "claims-db",
	})

	root.AddCommand(
		a.initCmd(),
		a.sendCmd(),
		a.attachCmd(),
		a.replyCmd(),
		a.drainCmd(),
		a.watchCmd(),
		a.pendingCmd(),
		a.cleanupCmd(),
		a.versionCmd(),
	)
	return root
}

// usageArgs makes positional argument errors exit with ExitUsage.
func usageArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return WithExitCode(ExitUsage, validate(cmd, args))
	}
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	a.in = cmd.InOrStdin()

	if cmd.Annotations[annotationCreatesConfig] != "" && a.configFile != "" && !fileExists(a.configFile) {
		config.InitEnv(a.v)
	} else if err := config.Init(a.v, a.configFile); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NotFoundError("%v", err)
		}
		return WithExitCode(ExitUsage, err)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return WithExitCode(ExitUsage, err)
	}
	cfg.Root = resolveRoot(cfg.Root)
	a.cfg = cfg

	logger, err := logging.New(cfg.Logging, a.errOut)
	if err != nil {
		return WithExitCode(ExitUsage, err)
	}
	a.logger = logger
	return nil
}

// openMailbox builds the client's mailbox from the loaded config. The returned
// close function releases the claims database when one was opened.
func (a *app) openMailbox() (*mailbox.Mailbox, func(), error) {
	if a.cfg.Client == "" {
		return nil, nil, UsageError("--client is required (or set SIGNALBOX_CLIENT)")
	}

	opts := []mailbox.Option{
		mailbox.WithLogger(a.logger),
		mailbox.WithMaxCollisionRetries(a.cfg.Enqueue.MaxCollisionRetries),
	}
	if a.cfg.Drain.Order == config.OrderDirectory {
		opts = append(opts, mailbox.WithDirectoryOrder())
	}

	closeFn := func() {}
	if a.cfg.Claims.Backend == config.BackendSQLite {
		db, err := claim.OpenSQLiteDB(a.cfg.ClaimsDBPath())
		if err != nil {
			return nil, nil, err
		}
		closeFn = func() { closeDB(db, a.logger) }
		opts = append(opts, mailbox.WithClaimer(claim.NewSQLite(db)))
	}

	mb, err := mailbox.New(a.cfg.Root, a.cfg.Client, opts...)
	if err != nil {
		closeFn()
		if errors.Is(err, mailbox.ErrInvalidClient) {
			return nil, nil, WithExitCode(ExitUsage, err)
		}
		return nil, nil, err
	}
	return mb, closeFn, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("close claims database", "error", err)
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the signalbox version",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			if a.jsonOut {
				return writeJSON(a.out, map[string]string{"version": Version})
			}
			return a.println("signalbox " + Version)
		},
	}
}
