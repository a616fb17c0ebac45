package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the shard's calls to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Shard    string   // Shard the assertion failed on
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Calls    []string // Every call recorded on the shard
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s on shard %s\n", e.Type, e.Shard)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nShard calls:\n")
	for i, c := range e.Calls {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, c)
	}
	return buf.String()
}

// evaluate runs one assertion against every shard it applies to and
// returns the first failure.
func evaluate(result *Result, a Assertion) error {
	for _, trace := range result.Shards {
		if a.Shard != "" && trace.Shard != a.Shard {
			continue
		}
		var err error
		switch a.Type {
		case AssertCallsOrder:
			err = assertCallsOrder(trace, a)
		case AssertCallsExact:
			err = assertCallsExact(trace, a)
		case AssertCallCount:
			err = assertCallCount(trace, a)
		case AssertShardError:
			err = assertShardError(trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// assertCallsOrder checks that the calls appear in the specified order.
// Calls don't need to be consecutive.
func assertCallsOrder(trace ShardTrace, a Assertion) error {
	rendered := trace.Rendered()
	next := 0
	for _, c := range rendered {
		if next < len(a.Calls) && c == a.Calls[next] {
			next++
		}
	}
	if next == len(a.Calls) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallsOrder,
		Shard:    trace.Shard,
		Expected: fmt.Sprintf("calls in order: %v", a.Calls),
		Actual:   fmt.Sprintf("%q not found after the first %d calls matched", a.Calls[next], next),
		Calls:    rendered,
	}
}

// assertCallsExact checks the shard's complete call list.
func assertCallsExact(trace ShardTrace, a Assertion) error {
	rendered := trace.Rendered()
	if len(rendered) == len(a.Calls) {
		same := true
		for i := range rendered {
			if rendered[i] != a.Calls[i] {
				same = false
				break
			}
		}
		if same {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertCallsExact,
		Shard:    trace.Shard,
		Expected: fmt.Sprintf("%d calls: %v", len(a.Calls), a.Calls),
		Actual:   fmt.Sprintf("%d calls: %v", len(rendered), rendered),
		Calls:    rendered,
	}
}

// assertCallCount checks that a method is called exactly Count times.
func assertCallCount(trace ShardTrace, a Assertion) error {
	count := 0
	for _, c := range trace.Calls {
		if c.Method == a.Method {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallCount,
		Shard:    trace.Shard,
		Expected: fmt.Sprintf("%d calls of %s", a.Count, a.Method),
		Actual:   fmt.Sprintf("%d calls", count),
		Calls:    trace.Rendered(),
	}
}

// assertShardError checks how the shard build ended.
func assertShardError(trace ShardTrace, a Assertion) error {
	if trace.ErrorKind == a.Error {
		return nil
	}
	actual := trace.ErrorKind
	if trace.Error != "" {
		actual += " (" + trace.Error + ")"
	}
	return &AssertionError{
		Type:     AssertShardError,
		Shard:    trace.Shard,
		Expected: a.Error,
		Actual:   actual,
		Calls:    trace.Rendered(),
	}
}
