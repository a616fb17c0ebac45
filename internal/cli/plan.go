package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
)

// ShardStatementResult is one shard's compiled SQL.
type ShardStatementResult struct {
	Shard  string `json:"shard"`
	SQL    string `json:"sql,omitempty"`
	Params []any  `json:"params,omitempty"`
	Error  string `json:"error,omitempty"`
}

// PlanResult is the output of plan and of replay without --execute.
type PlanResult struct {
	Query  string                 `json:"query"`
	PlanID string                 `json:"plan_id,omitempty"`
	Shards []ShardStatementResult `json:"shards"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <config> <query>",
		Short: "Show the SQL a query compiles to on every shard",
		Long: `Build a named query on every configured shard and print each shard's
SQL statement. No shard database is opened.

Example:
  shardq plan ./shop.cue big_spenders
  shardq plan ./shop.cue big_spenders --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runPlan(opts *RootOptions, path, queryName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	res, err := LoadConfig(path)
	if err != nil {
		return loadFailure(f, err)
	}
	coord, err := newCoordinator(res, planShards(res), opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "create coordinator", err)
	}
	c, err := newQueryCriteria(f, res, coord, queryName)
	if err != nil {
		return err
	}

	stmts, _ := c.Statements(cmd.Context())
	return writeStatements(f, PlanResult{Query: queryName}, stmts)
}

// newQueryCriteria records a named query on coord.
func newQueryCriteria(f *OutputFormatter, res *LoadResult, coord *shard.Coordinator, name string) (*shard.Criteria, error) {
	q, err := res.Config.Query(name)
	if err != nil {
		if outErr := f.Error(ErrCodeUnknownQuery, err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "unknown query", err)
	}
	c, err := q.NewCriteria(coord)
	if err != nil {
		if outErr := f.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return nil, outErr
		}
		return nil, WrapExitError(ExitCommandError, "record query", err)
	}
	return c, nil
}

// writeStatements prints per-shard SQL and fails when any shard failed.
func writeStatements(f *OutputFormatter, out PlanResult, stmts []shard.ShardStatement) error {
	failed := 0
	out.Shards = make([]ShardStatementResult, len(stmts))
	for i, st := range stmts {
		r := ShardStatementResult{Shard: st.Shard, SQL: st.SQL, Params: st.Params}
		if st.Err != nil {
			r.Error = st.Err.Error()
			failed++
		}
		out.Shards[i] = r
	}

	if f.JSON() {
		if err := f.Success(out); err != nil {
			return err
		}
	} else if err := f.Success(formatStatements(out)); err != nil {
		return err
	}
	return shardFailure(failed, len(stmts))
}

func formatStatements(out PlanResult) string {
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
		fmt.Fprintf(&b, "\n[%s] %s", s.Shard, s.SQL)
		if len(s.Params) > 0 {
			fmt.Fprintf(&b, "\n  params: %v", s.Params)
		}
	}
	return b.String()
}

func shardFailure(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d of %d shards failed", failed, total))
}
