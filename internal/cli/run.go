package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
)

// ShardRowsResult is one shard's result set.
type ShardRowsResult struct {
	Shard string      `json:"shard"`
	SQL   string      `json:"sql,omitempty"`
	Rows  []ir.Object `json:"rows"`
	Error string      `json:"error,omitempty"`
}

// RunResult is the output of run and of replay --execute.
type RunResult struct {
	Query  string            `json:"query"`
	PlanID string            `json:"plan_id,omitempty"`
	Shards []ShardRowsResult `json:"shards"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <config> <query>",
		Short: "Execute a query on every shard",
		Long: `Build a named query on every configured shard, execute each shard's
statement on its SQLite database and print the rows per shard. Rows are
never merged across shards.

Shard paths in the config resolve against the config's directory.

Example:
  shardq run ./shop.cue big_spenders
  shardq run ./shop.cue big_spenders --parallelism 8 --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runQuery(opts *RootOptions, path, queryName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	res, err := LoadConfig(path)
	if err != nil {
		return loadFailure(f, err)
	}
	shards, closeShards, err := openShards(res, opts)
	if err != nil {
		if outErr := f.Error(ErrCodeShard, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "open shards", err)
	}
	defer closeShards()

	coord, err := newCoordinator(res, shards, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "create coordinator", err)
	}
	c, err := newQueryCriteria(f, res, coord, queryName)
	if err != nil {
		return err
	}

	opts.Logger.Info("running query", "query", queryName, "shards", len(shards))
	rows, _ := c.Run(cmd.Context())
	return writeRows(f, RunResult{Query: queryName}, rows)
}

func writeRows(f *OutputFormatter, out RunResult, rows []shard.ShardRows) error {
	failed := 0
	out.Shards = make([]ShardRowsResult, len(rows))
	for i, r := range rows {
		sr := ShardRowsResult{Shard: r.Shard, SQL: r.SQL, Rows: r.Rows}
		if sr.Rows == nil {
			sr.Rows = []ir.Object{}
		}
		if r.Err != nil {
			sr.Error = r.Err.Error()
			failed++
		}
		out.Shards[i] = sr
	}

	if f.JSON() {
		if err := f.Success(out); err != nil {
			return err
		}
	} else if err := f.Success(formatRows(out)); err != nil {
		return err
	}
	return shardFailure(failed, len(rows))
}

func formatRows(out RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "query %s", out.Query)
	if out.PlanID != "" {
		fmt.Fprintf(&b, " (plan %s)", out.PlanID)
	}
	for _, s := range out.Shards {
		if s.Error != "" {
			fmt.Fprintf(&b, "\n[%s] error: %s", s.Shard, s.Error)
			continue
		}
		fmt.Fprintf(&b, "\n[%s] %d row(s)", s.Shard, len(s.Rows))
		for _, row := range s.Rows {
			fmt.Fprintf(&b, "\n  %s", formatRow(row))
		}
	}
	return b.String()
}

// formatRow renders a row as canonical JSON.
func formatRow(row ir.Object) string {
	data, err := ir.MarshalCanonical(row)
	if err != nil {
		return fmt.Sprintf("<unprintable row: %v>", err)
	}
	return string(data)
}
