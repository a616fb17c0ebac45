package harness

import "github.com/ruilorenzetti/hibernate-shards/internal/testutil"

// ShardTrace is what one shard recorded while the query was built on it.
type ShardTrace struct {
	Shard string          `json:"shard"`
	Calls []testutil.Call `json:"calls"`

	// ErrorKind is one of the Error* constants.
	ErrorKind string `json:"error_kind"`

	// Error is the full error message, empty on success.
	Error string `json:"error,omitempty"`
}

// Rendered returns the shard's calls rendered as "Method(args)".
func (s ShardTrace) Rendered() []string {
	out := make([]string, len(s.Calls))
	for i, c := range s.Calls {
		out[i] = c.String()
	}
	return out
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Shards holds one trace per scenario shard, in scenario order.
	Shards []ShardTrace `json:"shards"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Shards: []ShardTrace{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Shard returns the trace of one shard.
func (r *Result) Shard(id string) (ShardTrace, bool) {
	for _, s := range r.Shards {
		if s.Shard == id {
			return s, true
		}
	}
	return ShardTrace{}, false
}
