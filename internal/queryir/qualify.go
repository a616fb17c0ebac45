package queryir

import (
	"fmt"
	"strings"
)

// Qualify returns a copy of p with every bare property prefixed by alias and
// every {alias} placeholder in raw SQL replaced. Already-qualified
// properties are left untouched. p itself is never modified.
func Qualify(p Predicate, alias string) (Predicate, error) {
	q := func(field string) string {
		if a, _ := SplitField(field); a != "" {
			return field
		}
		return alias + "." + field
	}

	switch pred := p.(type) {
	case nil:
		return nil, nil
	case Compare:
		pred.Field = q(pred.Field)
		return pred, nil
	case *Compare:
		return Qualify(*pred, alias)
	case Like:
		pred.Field = q(pred.Field)
		return pred, nil
	case *Like:
		return Qualify(*pred, alias)
	case In:
		pred.Field = q(pred.Field)
		return pred, nil
	case *In:
		return Qualify(*pred, alias)
	case IsNull:
		pred.Field = q(pred.Field)
		return pred, nil
	case *IsNull:
		return Qualify(*pred, alias)
	case And:
		children, err := qualifyAll(pred.Predicates, alias)
		if err != nil {
			return nil, err
		}
		return And{Predicates: children}, nil
	case *And:
		return Qualify(*pred, alias)
	case Or:
		children, err := qualifyAll(pred.Predicates, alias)
		if err != nil {
			return nil, err
		}
		return Or{Predicates: children}, nil
	case *Or:
		return Qualify(*pred, alias)
	case Not:
		inner, err := Qualify(pred.Predicate, alias)
		if err != nil {
			return nil, err
		}
		return Not{Predicate: inner}, nil
	case *Not:
		return Qualify(*pred, alias)
	case SQLRestriction:
		pred.SQL = strings.ReplaceAll(pred.SQL, AliasPlaceholder, alias)
		return pred, nil
	case *SQLRestriction:
		return Qualify(*pred, alias)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func qualifyAll(preds []Predicate, alias string) ([]Predicate, error) {
	out := make([]Predicate, len(preds))
	for i, p := range preds {
		qp, err := Qualify(p, alias)
		if err != nil {
			return nil, err
		}
		out[i] = qp
	}
	return out, nil
}

// QualifyProperty prefixes a bare property with alias.
func QualifyProperty(property, alias string) string {
	if a, _ := SplitField(property); a != "" {
		return property
	}
	return alias + "." + property
}

// FieldAliases returns the alias qualifier of every field p references, in
// traversal order. Raw SQL restrictions are opaque and contribute nothing.
func FieldAliases(p Predicate) []string {
	var out []string
	var walk func(Predicate)
	add := func(field string) {
		if a, _ := SplitField(field); a != "" {
			out = append(out, a)
		}
	}
	walk = func(p Predicate) {
		switch pred := p.(type) {
		case Compare:
			add(pred.Field)
		case *Compare:
			add(pred.Field)
		case Like:
			add(pred.Field)
		case *Like:
			add(pred.Field)
		case In:
			add(pred.Field)
		case *In:
			add(pred.Field)
		case IsNull:
			add(pred.Field)
		case *IsNull:
			add(pred.Field)
		case And:
			for _, c := range pred.Predicates {
				walk(c)
			}
		case *And:
			walk(*pred)
		case Or:
			for _, c := range pred.Predicates {
				walk(c)
			}
		case *Or:
			walk(*pred)
		case Not:
			walk(pred.Predicate)
		case *Not:
			walk(pred.Predicate)
		}
	}
	walk(p)
	return out
}
