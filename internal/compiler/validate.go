package compiler

import (
	"fmt"

	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
	"github.com/ruilorenzetti/hibernate-shards/internal/subcriteria"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateAlias = "E201" // two criteria of one query share an alias
	ErrUnknownAlias   = "E202" // a restriction or order names an undeclared alias
)

// ValidationError represents a semantic error in a compiled query.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks every query of cfg for problems that would fail the query
// on every shard. Returns all errors found (does not fail-fast).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	for _, name := range cfg.QueryNames() {
		errs = append(errs, validateQuery(cfg.Queries[name])...)
	}
	return errs
}

// aliasScope is the set of aliases a query declares, in declaration order.
type aliasScope struct {
	declared map[string]string // alias → field that declared it
}

func validateQuery(q *Query) []ValidationError {
	var errs []ValidationError
	field := "query." + q.Name

	root := q.Alias
	if root == "" {
		root = q.Entity
	}
	scope := aliasScope{declared: map[string]string{root: field}}
	collectAliases(&scope, q.Subcriteria, field, &errs)

	checkEvents(scope, q.Events, field, &errs)
	checkNodes(scope, q.Subcriteria, field, &errs)
	return errs
}

func collectAliases(scope *aliasScope, nodes []Node, field string, errs *[]ValidationError) {
	for i, n := range nodes {
		f := fmt.Sprintf("%s.subcriteria[%d]", field, i)
		if alias, ok := n.Recipe.Alias(); ok {
			if prev, dup := scope.declared[alias]; dup {
				*errs = append(*errs, ValidationError{
					Field:   f + ".alias",
					Message: fmt.Sprintf("alias %q already declared by %s", alias, prev),
					Code:    ErrDuplicateAlias,
				})
			} else {
				scope.declared[alias] = f
			}
		}
		collectAliases(scope, n.Children, f, errs)
	}
}

func checkNodes(scope aliasScope, nodes []Node, field string, errs *[]ValidationError) {
	for i, n := range nodes {
		f := fmt.Sprintf("%s.subcriteria[%d]", field, i)
		if p := n.Recipe.Filter(); p != nil {
			checkPredicate(scope, p, f+".filter", errs)
		}
		checkEvents(scope, n.Events, f, errs)
		checkNodes(scope, n.Children, f, errs)
	}
}

func checkEvents(scope aliasScope, events []subcriteria.Event, field string, errs *[]ValidationError) {
	for i, e := range events {
		f := fmt.Sprintf("%s.events[%d]", field, i)
		switch ev := e.(type) {
		case subcriteria.AddEvent:
			checkPredicate(scope, ev.Predicate, f, errs)
		case subcriteria.AddOrderEvent:
			checkAlias(scope, ev.Order.Property, f, errs)
		case subcriteria.SetProjectionEvent:
			for _, p := range ev.Projection.Properties {
				checkAlias(scope, p, f, errs)
			}
		}
	}
}

func checkPredicate(scope aliasScope, p queryir.Predicate, field string, errs *[]ValidationError) {
	for _, a := range queryir.FieldAliases(p) {
		if _, ok := scope.declared[a]; !ok {
			*errs = append(*errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("references undeclared alias %q", a),
				Code:    ErrUnknownAlias,
			})
		}
	}
}

func checkAlias(scope aliasScope, property, field string, errs *[]ValidationError) {
	if a, _ := queryir.SplitField(property); a != "" {
		if _, ok := scope.declared[a]; !ok {
			*errs = append(*errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("property %q references undeclared alias %q", property, a),
				Code:    ErrUnknownAlias,
			})
		}
	}
}
