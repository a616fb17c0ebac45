package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"

	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	Catalog     string // plan catalog database
	Parallelism int

	// Logger is set before any subcommand runs.
	Logger *slog.Logger

	// IDs overrides the plan id generator (for testing).
	// If nil, the coordinator uses UUIDv7 ids.
	IDs shard.IDGenerator
}

// Env holds the environment defaults of the global flags.
// Flags given on the command line win.
type Env struct {
	Catalog     string `env:"SHARDQ_CATALOG"`
	Parallelism int    `env:"SHARDQ_PARALLELISM" envDefault:"4"`
	Format      string `env:"SHARDQ_FORMAT" envDefault:"text"`
}

// ParseEnv loads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the shardq command tree with defaults taken from
// the environment.
func NewRootCommand() *cobra.Command {
	e, err := ParseEnv()
	if err != nil {
		// Reported by PersistentPreRunE; help still renders.
		e = Env{Parallelism: shard.DefaultParallelism, Format: "text"}
	}
	return newRootCommand(e, err, &RootOptions{})
}

// newRootCommand binds the global flags into opts.
func newRootCommand(defaults Env, envErr error, opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shardq",
		Short: "shardq - sharded criteria replay",
		Long: `Build one logical criteria query and replay it on every shard.

Queries, entity mappings and shards are declared in CUE. Sub-criteria are
captured once as recipes and materialized on each shard in creation order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", envErr)
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Parallelism < 1 {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid parallelism %d: must be at least 1", opts.Parallelism))
			}
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", defaults.Format, "output format (json|text) [SHARDQ_FORMAT]")
	cmd.PersistentFlags().StringVar(&opts.Catalog, "catalog", defaults.Catalog, "plan catalog database [SHARDQ_CATALOG]")
	cmd.PersistentFlags().IntVar(&opts.Parallelism, "parallelism", defaults.Parallelism, "shards built concurrently [SHARDQ_PARALLELISM]")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewPlansCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// newLogger logs warnings to w, or everything under --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
