package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ruilorenzetti/hibernate-shards/internal/compiler"
)

// ValidationResult is the output of validate.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Entities int                        `json:"entities"`
	Shards   int                        `json:"shards"`
	Queries  []string                   `json:"queries"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Compile a config and check its queries",
		Long: `Compile a CUE config and check every query for alias problems that
would fail it on every shard: duplicate aliases in one query tree, and
restrictions, orders or projections naming an alias no criteria declares.

Exit codes:
  0 - Config valid
  1 - Validation errors found
  2 - Config could not be loaded or compiled`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	res, err := LoadConfig(path)
	if err != nil {
		return loadFailure(f, err)
	}
	cfg := res.Config
	opts.Logger.Debug("config compiled", "path", path, "files", res.Files)

	out := ValidationResult{
		Entities: len(cfg.Registry.Names()),
		Shards:   len(cfg.Shards),
		Queries:  cfg.QueryNames(),
		Errors:   compiler.Validate(cfg),
	}
	out.Valid = len(out.Errors) == 0

	if f.JSON() {
		if err := f.Success(out); err != nil {
			return err
		}
	} else if err := f.Success(formatValidation(out)); err != nil {
		return err
	}

	if !out.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(out.Errors)))
	}
	return nil
}

func formatValidation(out ValidationResult) string {
	var b strings.Builder
	if out.Valid {
		fmt.Fprintf(&b, "✓ config valid: %d entities, %d shards, %d queries", out.Entities, out.Shards, len(out.Queries))
		return b.String()
	}
	fmt.Fprintf(&b, "✗ %d validation error(s):", len(out.Errors))
	for _, e := range out.Errors {
		fmt.Fprintf(&b, "\n  %s", e.Error())
	}
	return b.String()
}
