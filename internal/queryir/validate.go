package queryir

import (
	"fmt"
)

// ValidationResult contains the structural analysis of a criteria tree.
type ValidationResult struct {
	// Valid is true when Problems is empty.
	Valid bool

	// Problems lists every structural defect found, in traversal order.
	Problems []string
}

// Validate checks a Select tree for structural consistency:
//  1. Root has a table and alias
//  2. Aliases are unique across root and joins
//  3. Every join's parent alias is declared before the join
//  4. Every join type is a known code
//  5. Every alias-qualified field in filters, with-clauses, orders and the
//     projection is declared
//
// Validate is a pure function with no side effects.
func Validate(s *Select) ValidationResult {
	v := &validator{problems: []string{}}
	if s == nil {
		v.add("nil select")
	} else {
		v.validateSelect(s)
	}
	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
	declared map[string]bool
}

func (v *validator) add(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateSelect(s *Select) {
	if s.Table == "" {
		v.add("root criteria for entity %q has no table", s.Entity)
	}
	if s.Alias == "" {
		v.add("root criteria has no alias")
	}

	v.declared = map[string]bool{s.Alias: true}
	for i, j := range s.Joins {
		v.validateJoin(i, j)
	}

	for i, f := range s.Filters {
		v.checkAliases(fmt.Sprintf("filter[%d]", i), f)
	}
	for i, o := range s.Orders {
		if a, _ := SplitField(o.Property); a != "" && !v.declared[a] {
			v.add("order[%d] references unknown alias %q", i, a)
		}
	}
	if s.Projection != nil {
		for i, p := range s.Projection.Properties {
			if a, _ := SplitField(p); a != "" && !v.declared[a] {
				v.add("projection[%d] references unknown alias %q", i, a)
			}
		}
	}
	if s.Limit < 0 {
		v.add("negative limit %d", s.Limit)
	}
	if s.Offset < 0 {
		v.add("negative offset %d", s.Offset)
	}
}

func (v *validator) validateJoin(i int, j *Join) {
	if j == nil {
		v.add("join[%d] is nil", i)
		return
	}
	if j.Association == "" {
		v.add("join[%d] has no association", i)
	}
	if !v.declared[j.ParentAlias] {
		v.add("join[%d] %q has unknown parent alias %q", i, j.Association, j.ParentAlias)
	}
	if !j.Type.Valid() {
		v.add("join[%d] %q has unknown join type %d", i, j.Association, int(j.Type))
	}
	if v.declared[j.Alias] {
		v.add("join[%d] %q reuses alias %q", i, j.Association, j.Alias)
	}
	v.declared[j.Alias] = true
	if j.With != nil {
		v.checkAliases(fmt.Sprintf("join[%d] with-clause", i), j.With)
	}
}

func (v *validator) checkAliases(where string, p Predicate) {
	for _, a := range FieldAliases(p) {
		if !v.declared[a] {
			v.add("%s references unknown alias %q", where, a)
		}
	}
}
