package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fractalnote/internal/config"
	"fractalnote/internal/domain"
	"fractalnote/internal/logger"
	"fractalnote/internal/metrics"
	"fractalnote/internal/service"
	"fractalnote/internal/store"
)

// Version is overridden at build time with -ldflags "-X main.Version=v1.2.3"
var Version = "dev"

type globalFlags struct {
	cfgFile  string
	store    string
	root     string
	logLevel string
	verbose  bool
}

// app carries what every subcommand needs once the root has run
type app struct {
	flags globalFlags

	in  io.Reader
	out io.Writer
	err io.Writer

	cfg      *config.Config
	cfgPath  string
	log      zerolog.Logger
	closeLog func() error

	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// NewRootCmd builds the command tree reading from in and writing to out
// and errOut.
func NewRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, err: errOut, log: zerolog.Nop(), closeLog: func() error { return nil }}

	root := &cobra.Command{
		Use:   "fractalnote",
		Short: "fractalnote edits hierarchical note stores",
		Long: `fractalnote manages note trees kept in single-file SQLite stores.

Every mutation takes the version token printed by the previous command (or
"fractalnote token"); a stale token is refused so concurrent editors never
overwrite each other. Without --token the current token is used.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.closeLog()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.cfgFile, "config", "", "config file (default: $"+config.EnvConfigPath+" or $XDG_CONFIG_HOME/fractalnote/config.yaml)")
	pf.StringVarP(&a.flags.store, "store", "s", "", "store path relative to the store root (default from config)")
	pf.StringVar(&a.flags.root, "root", "", "directory stores are resolved under (default from config)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "log at info level in console format")

	root.AddCommand(
		newInitCmd(a),
		newTokenCmd(a),
		newTreeCmd(a),
		newShowCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newMoveCmd(a),
		newDeleteCmd(a),
		newImportCmd(a),
		newFsckCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
	)

	return root
}

// setup loads the config, applies flag overrides and builds the logger
func (a *app) setup() error {
	var err error
	if a.flags.cfgFile != "" {
		a.cfg, a.cfgPath, err = config.LoadFromPath(a.flags.cfgFile)
	} else {
		a.cfg, a.cfgPath, err = config.Load()
	}
	if err != nil {
		return err
	}

	if a.flags.root != "" {
		a.cfg.Store.Root = a.flags.root
	}
	if a.flags.store != "" {
		a.cfg.Store.Default = a.flags.store
	}
	if a.flags.verbose {
		a.cfg.Log.Level = "info"
		a.cfg.Log.Pretty = true
	}
	if a.flags.logLevel != "" {
		a.cfg.Log.Level = a.flags.logLevel
	}

	lc := a.cfg.LoggerConfig()
	lc.Output = a.err
	a.log, a.closeLog, err = logger.New(lc)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.New(a.registry)

	a.log.Debug().
		Str("config", a.cfgPath).
		Str("root", a.cfg.Store.Root).
		Str("store", a.cfg.Store.Default).
		Msg("configured")
	return nil
}

// withNotes opens the configured store for the duration of fn. A missing
// store is only created when create is set.
func (a *app) withNotes(ctx context.Context, create bool, fn func(*service.Notes) error) error {
	opts := a.cfg.StoreOptions()
	opts.Logger = a.log
	loc := store.NewLocator(a.cfg.Store.Root, opts)

	open := loc.Open
	if create {
		open = loc.Create
	}
	h, err := open(ctx, a.cfg.Store.Default)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			a.log.Warn().Err(cerr).Msg("close store")
		}
	}()

	return fn(service.NewNotes(h, nil, a.metrics, a.log))
}

// token returns the token the user passed, or the store's current one
func (a *app) token(ctx context.Context, notes *service.Notes, flag string) (store.Token, error) {
	if flag == "" {
		return notes.Token(ctx)
	}
	return store.ParseToken(flag)
}

// printResult reports a mutation's outcome: the next token, and the node
// id when the command created one.
func (a *app) printResult(res service.Result, withID bool) {
	if withID {
		fmt.Fprintf(a.out, "id %d\n", res.ID)
	}
	fmt.Fprintf(a.out, "token %s\n", res.Token)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domain.InvalidArgumentf("node id %q", s)
	}
	return id, nil
}
