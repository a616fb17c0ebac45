package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
	"github.com/ruilorenzetti/hibernate-shards/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Execute bool
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <config> <plan-id>",
		Short: "Replay a saved plan on every shard",
		Long: `Load a saved plan from the catalog, verify its hash, and materialize it
again on every shard configured in <config>. Prints each shard's SQL, or
with --execute runs it and prints the rows.

The config supplies the entity mappings and the shard list; they need not
match the config the plan was saved from, only declare its entity and
associations.

Example:
  shardq replay ./shop.cue 01927f6e-8a4b-7c00-9000-000000000001 --catalog ./plans.db
  shardq replay ./shop.cue <plan-id> --execute`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Execute, "execute", false, "run the replayed statements on the shard databases")

	return cmd
}

func runReplay(opts *ReplayOptions, path, planID string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	res, err := LoadConfig(path)
	if err != nil {
		return loadFailure(f, err)
	}
	catalog, err := openCatalog(opts.RootOptions)
	if err != nil {
		return catalogFailure(f, err)
	}
	defer closeStore(opts.RootOptions, catalog)

	rec, err := catalog.ReadPlan(cmd.Context(), planID)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			if outErr := f.Error(ErrCodeCatalog, err.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitCommandError, "replay", err)
		}
		return catalogFailure(f, err)
	}
	plan, err := shard.PlanFromRecord(rec)
	if err != nil {
		// A hash mismatch means the catalog row no longer matches what
		// was saved.
		if outErr := f.Error(ErrCodeCatalog, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "decode plan", err)
	}

	shards := planShards(res)
	if opts.Execute {
		var closeShards func()
		shards, closeShards, err = openShards(res, opts.RootOptions)
		if err != nil {
			if outErr := f.Error(ErrCodeShard, err.Error(), nil); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitCommandError, "open shards", err)
		}
		defer closeShards()
	}

	coord, err := newCoordinator(res, shards, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "create coordinator", err)
	}
	c, err := coord.FromPlan(plan)
	if err != nil {
		if outErr := f.Error(ErrCodeGeneric, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitFailure, "rebuild plan", err)
	}
	opts.Logger.Debug("plan loaded", "plan_id", plan.ID, "query", plan.Name, "nodes", len(plan.Nodes))

	if opts.Execute {
		rows, _ := c.Run(cmd.Context())
		return writeRows(f, RunResult{Query: plan.Name, PlanID: plan.ID}, rows)
	}
	stmts, _ := c.Statements(cmd.Context())
	return writeStatements(f, PlanResult{Query: plan.Name, PlanID: plan.ID}, stmts)
}
