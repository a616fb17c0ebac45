package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ruilorenzetti/hibernate-shards/internal/store"
)

// SaveResult is the output of save.
type SaveResult struct {
	PlanID   string `json:"plan_id"`
	Query    string `json:"query"`
	Hash     string `json:"hash"`
	Nodes    int    `json:"nodes"`
	Inserted bool   `json:"inserted"`
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "save <config> <query>",
		Short: "Save a query's plan to the catalog",
		Long: `Record a named query and save its plan (root events, captured
sub-criteria recipes and their events) to the plan catalog. The printed plan
id can be replayed later with 'shardq replay'.

Example:
  shardq save ./shop.cue big_spenders --catalog ./plans.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runSave(opts *RootOptions, path, queryName string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	res, err := LoadConfig(path)
	if err != nil {
		return loadFailure(f, err)
	}
	catalog, err := openCatalog(opts)
	if err != nil {
		return catalogFailure(f, err)
	}
	defer closeStore(opts, catalog)

	coord, err := newCoordinator(res, planShards(res), opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "create coordinator", err)
	}
	c, err := newQueryCriteria(f, res, coord, queryName)
	if err != nil {
		return err
	}

	rec, err := c.Plan(queryName).Record()
	if err != nil {
		return WrapExitError(ExitFailure, "encode plan", err)
	}
	inserted, err := catalog.WritePlan(cmd.Context(), rec)
	if err != nil {
		return catalogFailure(f, err)
	}
	opts.Logger.Info("plan saved", "plan_id", rec.ID, "query", queryName, "hash", rec.Hash)

	out := SaveResult{PlanID: rec.ID, Query: queryName, Hash: rec.Hash, Nodes: len(rec.Nodes), Inserted: inserted}
	if f.JSON() {
		return f.Success(out)
	}
	return f.Success(fmt.Sprintf("✓ saved plan %s (%s, %d sub-criteria)", out.PlanID, out.Query, out.Nodes))
}

// NewPlansCommand creates the plans command.
func NewPlansCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List saved plans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlans(rootOpts, cmd)
		},
	}
}

func runPlans(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	catalog, err := openCatalog(opts)
	if err != nil {
		return catalogFailure(f, err)
	}
	defer closeStore(opts, catalog)

	plans, err := catalog.ListPlans(cmd.Context())
	if err != nil {
		return catalogFailure(f, err)
	}
	if f.JSON() {
		return f.Success(plans)
	}
	if len(plans) == 0 {
		return f.Success("No plans saved.")
	}
	var b strings.Builder
	for i, p := range plans {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %s  %s", p.ID, p.Name, p.Entity)
	}
	return f.Success(b.String())
}

func catalogFailure(f *OutputFormatter, err error) error {
	if outErr := f.Error(ErrCodeCatalog, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, "plan catalog", err)
}

func closeStore(opts *RootOptions, st *store.Store) {
	if err := st.Close(); err != nil {
		opts.Logger.Error("error closing database", "error", err)
	}
}
