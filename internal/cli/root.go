package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Zombieliu/gear/internal/codec"
	"github.com/Zombieliu/gear/internal/config"
	"github.com/Zombieliu/gear/internal/engine"
	"github.com/Zombieliu/gear/internal/store"
)

// RootOptions holds global flags and what PersistentPreRunE derives from
// them.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	Config config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the gtest command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: config.Default()}

	cmd := &cobra.Command{
		Use:   "gtest",
		Short: "gtest - message program fixture runner",
		Long: `Run fixture documents against message programs that suspend on
replies, and inspect the recorded runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")

	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewProgramsCommand(opts))

	return cmd
}

// setup validates the flags, loads the config and builds the logger.
func (o *RootOptions) setup(logOut io.Writer) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	if o.ConfigPath != "" {
		cfg, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		o.Config = cfg
	}
	o.Logger = newLogger(logOut, o.cfg().Log, o.Verbose)
	return nil
}

// cfg returns the loaded config, or the defaults when none was set.
func (o *RootOptions) cfg() config.Config {
	if o.Config == (config.Config{}) {
		return config.Default()
	}
	return o.Config
}

func newLogger(w io.Writer, cfg config.LogConfig, verbose bool) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelWarn
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// logger returns the configured logger, or a discarding one when a
// subcommand runs without the root command (as in tests).
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// formatter builds the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// engineOptions maps the engine section of the config to engine options.
func (o *RootOptions) engineOptions() ([]engine.EngineOption, error) {
	ec := o.cfg().Engine
	c, err := codec.ByName(ec.Codec)
	if err != nil {
		return nil, err
	}
	return []engine.EngineOption{
		engine.WithMaxSteps(ec.MaxSteps),
		engine.WithGasPerCall(ec.GasPerCall),
		engine.WithDefaultGas(ec.DefaultGas),
		engine.WithPageLimit(ec.PageLimit),
		engine.WithCodec(c),
	}, nil
}

// openStore opens the run log at path, falling back to the configured
// path. It returns nil when neither is set.
func (o *RootOptions) openStore(path string) (*store.Store, error) {
	if path == "" {
		path = o.cfg().Store.Path
	}
	if path == "" {
		return nil, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}
