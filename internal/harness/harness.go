package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruilorenzetti/hibernate-shards/internal/shard"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
	"github.com/ruilorenzetti/hibernate-shards/internal/testutil"
)

// Harness runs scenarios against recording shards.
type Harness struct {
	logger      *slog.Logger
	parallelism int
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger handed to the coordinator.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithParallelism bounds concurrent shard builds.
func WithParallelism(n int) Option {
	return func(h *Harness) { h.parallelism = n }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		parallelism: shard.DefaultParallelism,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(scenario *Scenario) (*Result, error) {
	return New().Run(context.Background(), scenario)
}

// Run executes a scenario and evaluates its assertions.
//
// Execution flow:
//  1. Every scenario shard gets a recording root criteria with its injected
//     failures
//  2. The root events and sub-criteria tree are recorded on a logical
//     criteria
//  3. The logical criteria is built on every shard
//  4. Assertions are evaluated against each shard's recorded calls
//
// A recipe that cannot be captured stops the scenario before any shard is
// built; every shard then reports the capture error and no calls.
//
// The returned error is reserved for scenarios that cannot run at all.
// Assertion failures are reported in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	log := testutil.NewCallLog()
	shards := make([]shard.Shard, len(scenario.Shards))
	for i, id := range scenario.Shards {
		shards[i] = shard.Shard{ID: id}
	}

	coord, err := shard.NewCoordinator(nil, shards,
		shard.WithParallelism(h.parallelism),
		shard.WithLogger(h.logger),
		shard.WithRootFactory(func(shardID, _, _ string) (subcriteria.Criteria, error) {
			root := testutil.NewRecordingCriteria(log, shardID)
			for _, f := range scenario.Fail {
				if f.Shard == shardID {
					root.FailOn(f.Target, f.Method, injectedError(f))
				}
			}
			return root, nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create coordinator: %w", err)
	}

	c, err := coord.NewCriteria(scenario.Entity, scenario.Alias)
	if err != nil {
		return nil, fmt.Errorf("create criteria: %w", err)
	}

	result := NewResult()
	var captureErr *CaptureError
	if err := record(c, scenario); err != nil && !errors.As(err, &captureErr) {
		return nil, err
	}

	if captureErr != nil {
		h.logger.Info("scenario stopped at capture", "scenario", scenario.Name, "error", captureErr)
		for _, id := range scenario.Shards {
			result.Shards = append(result.Shards, ShardTrace{
				Shard:     id,
				Calls:     []testutil.Call{},
				ErrorKind: ErrorKind(captureErr),
				Error:     captureErr.Error(),
			})
		}
	} else {
		built, _ := c.Build(ctx) // Per-shard errors are in the results
		for _, r := range built {
			trace := ShardTrace{
				Shard:     r.Shard,
				Calls:     log.ForShard(r.Shard),
				ErrorKind: ErrorKind(r.Err),
			}
			if trace.Calls == nil {
				trace.Calls = []testutil.Call{}
			}
			if r.Err != nil {
				trace.Error = r.Err.Error()
			}
			result.Shards = append(result.Shards, trace)
		}
	}

	for _, a := range scenario.Assertions {
		if err := evaluate(result, a); err != nil {
			result.AddError(err.Error())
		}
	}
	return result, nil
}

// recorder is what record needs from a logical criteria node.
type recorder interface {
	subcriteria.Criteria
	Attach(subcriteria.Recipe) (*shard.Subcriteria, error)
}

// CaptureError reports a sub-criteria whose recipe could not be captured.
type CaptureError struct {
	Path string
	Err  error
}

func (e *CaptureError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *CaptureError) Unwrap() error { return e.Err }

// record replays the scenario's steps onto the logical criteria. A
// *CaptureError is an outcome the scenario may assert on; any other error
// means the scenario itself is malformed.
func record(c *shard.Criteria, scenario *Scenario) error {
	if err := recordEvents(c, scenario.Root, "root"); err != nil {
		return err
	}
	return recordSteps(c, scenario.Subcriteria, "subcriteria")
}

func recordSteps(parent recorder, steps []SubcriteriaStep, path string) error {
	for i, step := range steps {
		where := fmt.Sprintf("%s[%d]", path, i)
		r, err := step.Recipe()
		if err != nil {
			if subcriteria.IsInvalidRecipe(err) || subcriteria.IsUnsupportedVariant(err) {
				return &CaptureError{Path: where, Err: err}
			}
			return fmt.Errorf("%s: %w", where, err)
		}
		sub, err := parent.Attach(r)
		if err != nil {
			return &CaptureError{Path: where, Err: err}
		}
		if err := recordEvents(sub, step.Events, where); err != nil {
			return err
		}
		if err := recordSteps(sub, step.Children, where+".children"); err != nil {
			return err
		}
	}
	return nil
}

func recordEvents(target subcriteria.Criteria, steps []EventStep, path string) error {
	events := make([]subcriteria.Event, 0, len(steps))
	for i, step := range steps {
		e, err := step.Event()
		if err != nil {
			return fmt.Errorf("%s.events[%d]: %w", path, i, err)
		}
		events = append(events, e)
	}
	// Recording on a logical criteria only fails on invalid arguments.
	if err := subcriteria.Replay(target, events); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func injectedError(f FailStep) error {
	msg := f.Message
	if msg == "" {
		msg = "injected failure"
	}
	return errors.New(msg)
}

// ErrorKind classifies a shard error as one of the Error* constants.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ErrorNone
	case subcriteria.IsUnsupportedVariant(err):
		return ErrorUnsupportedVariant
	case subcriteria.IsInvalidRecipe(err):
		return ErrorInvalidRecipe
	case subcriteria.IsSubqueryCreation(err):
		return ErrorSubqueryCreation
	case subcriteria.IsEventApplication(err):
		return ErrorEventApplication
	default:
		return ErrorOther
	}
}
