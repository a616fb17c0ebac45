package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ruilorenzetti/hibernate-shards/internal/harness"
)

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <scenarios>",
		Short: "Run replay scenarios",
		Long: `Run YAML replay scenarios against recording shard criteria. <scenarios>
is a scenario file or a directory searched for .yaml and .yml files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  shardq test ./scenarios
  shardq test ./scenarios/orders_alias_restriction.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(rootOpts, args[0], cmd)
		},
	}
}

func runTests(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	h := harness.New(
		harness.WithLogger(opts.Logger),
		harness.WithParallelism(opts.Parallelism),
	)
	result, err := h.RunSuite(cmd.Context(), path)
	if err != nil {
		code := ErrCodeScenario
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			code = ErrCodeNotFound
		}
		if outErr := f.Error(code, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "run scenarios", err)
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else if err := f.Success(formatSuite(result)); err != nil {
		return err
	}

	if !result.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.TotalScenarios))
	}
	return nil
}

func formatSuite(r *harness.SuiteResult) string {
	if r.TotalScenarios == 0 {
		return "No scenarios found."
	}
	var b strings.Builder
	for _, fail := range r.Failures {
		fmt.Fprintf(&b, "✗ %s (%s)\n", fail.Scenario, fail.ScenarioPath)
		for _, line := range strings.Split(fail.Error, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
	}
	fmt.Fprintf(&b, "%d passed, %d failed, %d total", r.Passed, r.Failed, r.TotalScenarios)
	return b.String()
}
