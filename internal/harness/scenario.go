package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Shards lists the shard ids the query fans out to, in build order.
	Shards []string `yaml:"shards"`

	// Entity and Alias describe the root criteria.
	Entity string `yaml:"entity"`
	Alias  string `yaml:"alias,omitempty"`

	// Root holds events recorded on the root criteria.
	Root []EventStep `yaml:"root,omitempty"`

	// Subcriteria are created on the root, in order.
	Subcriteria []SubcriteriaStep `yaml:"subcriteria,omitempty"`

	// Fail injects failures into shard-local criteria.
	Fail []FailStep `yaml:"fail,omitempty"`

	// Assertions validate the recorded calls and shard outcomes.
	Assertions []Assertion `yaml:"assertions"`
}

// SubcriteriaStep is one sub-criteria and the events recorded on it.
type SubcriteriaStep struct {
	// Variant names the recipe variant. Empty infers it from the fields set.
	Variant string `yaml:"variant,omitempty"`

	Association string `yaml:"association"`

	// Alias is a pointer so that an explicitly empty alias reaches recipe
	// validation instead of being treated as absent.
	Alias    *string        `yaml:"alias,omitempty"`
	JoinType string         `yaml:"join_type,omitempty"`
	Filter   map[string]any `yaml:"filter,omitempty"`

	Events   []EventStep       `yaml:"events,omitempty"`
	Children []SubcriteriaStep `yaml:"children,omitempty"`
}

// EventStep is one recorded mutation. Exactly one field is set.
type EventStep struct {
	// Restriction is shorthand for a raw SQL restriction without arguments.
	Restriction string `yaml:"restriction,omitempty"`

	// Add is a predicate in its tagged JSON form, written as YAML.
	Add map[string]any `yaml:"add,omitempty"`

	AddOrder       *OrderStep      `yaml:"add_order,omitempty"`
	SetProjection  *ProjectionStep `yaml:"set_projection,omitempty"`
	SetMaxResults  *int            `yaml:"set_max_results,omitempty"`
	SetFirstResult *int            `yaml:"set_first_result,omitempty"`
	SetComment     *string         `yaml:"set_comment,omitempty"`
}

// OrderStep is an ordering term.
type OrderStep struct {
	Property   string `yaml:"property"`
	Descending bool   `yaml:"descending,omitempty"`
}

// ProjectionStep is a projection.
type ProjectionStep struct {
	Properties []string `yaml:"properties,omitempty"`
	RowCount   bool     `yaml:"row_count,omitempty"`
}

// FailStep makes Method fail on Shard. Target is a criteria path such as
// "root/orders(o)"; empty fails the method on every criteria of the shard.
type FailStep struct {
	Shard   string `yaml:"shard"`
	Target  string `yaml:"target,omitempty"`
	Method  string `yaml:"method"`
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the recorded calls or a shard outcome.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Shard restricts the assertion to one shard. Empty applies it to every
	// shard of the scenario.
	Shard string `yaml:"shard,omitempty"`

	// Calls are rendered calls such as "Add(o.total > 100)" (calls_order,
	// calls_exact).
	Calls []string `yaml:"calls,omitempty"`

	// Method and Count are used by call_count.
	Method string `yaml:"method,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	// Error is the expected error kind (shard_error); "none" expects success.
	Error string `yaml:"error,omitempty"`
}

// Assertion type constants.
const (
	AssertCallsOrder = "calls_order"
	AssertCallsExact = "calls_exact"
	AssertCallCount  = "call_count"
	AssertShardError = "shard_error"
)

// Error kinds reported per shard.
const (
	ErrorNone               = "none"
	ErrorInvalidRecipe      = "invalid_recipe"
	ErrorUnsupportedVariant = "unsupported_variant"
	ErrorEventApplication   = "event_application"
	ErrorSubqueryCreation   = "subquery_creation"
	ErrorOther              = "other"
)

var errorKinds = map[string]bool{
	ErrorNone:               true,
	ErrorInvalidRecipe:      true,
	ErrorUnsupportedVariant: true,
	ErrorEventApplication:   true,
	ErrorSubqueryCreation:   true,
	ErrorOther:              true,
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks required fields. Recipe fields are not checked
// here: building an invalid recipe is something a scenario may assert on.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Shards) == 0 {
		return fmt.Errorf("shards list is required and must be non-empty")
	}
	if s.Entity == "" {
		return fmt.Errorf("entity is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	shards := make(map[string]bool, len(s.Shards))
	for i, id := range s.Shards {
		if id == "" {
			return fmt.Errorf("shards[%d]: empty id", i)
		}
		if shards[id] {
			return fmt.Errorf("shards[%d]: duplicate id %q", i, id)
		}
		shards[id] = true
	}

	for i, f := range s.Fail {
		if !shards[f.Shard] {
			return fmt.Errorf("fail[%d]: unknown shard %q", i, f.Shard)
		}
		if f.Method == "" {
			return fmt.Errorf("fail[%d]: method is required", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, shards); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion, shards map[string]bool) error {
	if a.Shard != "" && !shards[a.Shard] {
		return fmt.Errorf("assertions[%d]: unknown shard %q", index, a.Shard)
	}
	switch a.Type {
	case AssertCallsOrder, AssertCallsExact:
		if a.Type == AssertCallsOrder && len(a.Calls) == 0 {
			return fmt.Errorf("assertions[%d]: %s requires calls", index, a.Type)
		}
	case AssertCallCount:
		if a.Method == "" {
			return fmt.Errorf("assertions[%d]: call_count requires method", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: call_count requires a non-negative count", index)
		}
	case AssertShardError:
		if !errorKinds[a.Error] {
			return fmt.Errorf("assertions[%d]: unknown error kind %q", index, a.Error)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// Recipe captures the step's recipe.
func (s SubcriteriaStep) Recipe() (subcriteria.Recipe, error) {
	var opts []subcriteria.Option
	if s.JoinType != "" {
		jt, err := ir.ParseJoinType(s.JoinType)
		if err != nil {
			return subcriteria.Recipe{}, &subcriteria.InvalidRecipeError{Field: "join_type", Message: err.Error()}
		}
		opts = append(opts, subcriteria.WithJoinType(jt))
	}
	if s.Alias != nil {
		opts = append(opts, subcriteria.WithAliasName(*s.Alias))
	}
	if s.Filter != nil {
		p, err := predicateFromYAML(s.Filter)
		if err != nil {
			return subcriteria.Recipe{}, &subcriteria.InvalidRecipeError{Field: "filter", Message: err.Error()}
		}
		opts = append(opts, subcriteria.WithFilter(p))
	}

	var (
		v   subcriteria.Variant
		err error
	)
	if s.Variant != "" {
		if v, err = subcriteria.ParseVariant(s.Variant); err != nil {
			return subcriteria.Recipe{}, err
		}
	} else {
		v, err = subcriteria.InferVariant(s.JoinType != "", s.Alias != nil, s.Filter != nil)
		if err != nil {
			return subcriteria.Recipe{}, &subcriteria.InvalidRecipeError{Field: "filter", Message: err.Error()}
		}
	}
	return subcriteria.Capture(v, s.Association, opts...)
}

// Event converts the step to a mutation event.
func (e EventStep) Event() (subcriteria.Event, error) {
	var out []subcriteria.Event
	if e.Restriction != "" {
		out = append(out, subcriteria.Add(queryir.SQLRestriction{SQL: e.Restriction}))
	}
	if e.Add != nil {
		p, err := predicateFromYAML(e.Add)
		if err != nil {
			return nil, fmt.Errorf("add: %w", err)
		}
		out = append(out, subcriteria.Add(p))
	}
	if e.AddOrder != nil {
		out = append(out, subcriteria.AddOrder(queryir.Order{Property: e.AddOrder.Property, Descending: e.AddOrder.Descending}))
	}
	if e.SetProjection != nil {
		out = append(out, subcriteria.SetProjection(queryir.Projection{
			Properties: e.SetProjection.Properties,
			RowCount:   e.SetProjection.RowCount,
		}))
	}
	if e.SetMaxResults != nil {
		out = append(out, subcriteria.SetMaxResults(*e.SetMaxResults))
	}
	if e.SetFirstResult != nil {
		out = append(out, subcriteria.SetFirstResult(*e.SetFirstResult))
	}
	if e.SetComment != nil {
		out = append(out, subcriteria.SetComment(*e.SetComment))
	}

	switch len(out) {
	case 0:
		return nil, fmt.Errorf("event step sets no event")
	case 1:
		return out[0], nil
	default:
		return nil, fmt.Errorf("event step sets %d events, want exactly one", len(out))
	}
}

// predicateFromYAML decodes a predicate written as YAML in its tagged JSON
// form.
func predicateFromYAML(m map[string]any) (queryir.Predicate, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode predicate: %w", err)
	}
	return queryir.UnmarshalPredicate(data)
}
