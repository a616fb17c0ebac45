package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
)

// TraceSnapshot captures the per-shard calls of a scenario execution.
// Global sequence numbers are left out: shards build concurrently, so only
// the order within a shard is deterministic.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Shards       []ShardTrace `json:"shards"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. ir.MarshalCanonical only handles IR types and
// primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	shards := make([]any, len(s.Shards))
	for i, trace := range s.Shards {
		calls := make([]any, len(trace.Calls))
		for j, c := range trace.Calls {
			args := make([]any, len(c.Args))
			for k, a := range c.Args {
				args[k] = a
			}
			call := map[string]any{
				"target": c.Target,
				"method": c.Method,
				"args":   args,
			}
			if c.Failed {
				call["failed"] = true
			}
			calls[j] = call
		}
		shard := map[string]any{
			"shard":      trace.Shard,
			"calls":      calls,
			"error_kind": trace.ErrorKind,
		}
		if trace.Error != "" {
			shard["error"] = trace.Error
		}
		shards[i] = shard
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"shards":        shards,
	}
}

// MarshalTrace renders a result's shard traces as canonical JSON.
func MarshalTrace(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Shards: result.Shards}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check assertions. Test failure
// (via goldie) occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
