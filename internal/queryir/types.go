package queryir

import (
	"strings"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
)

// Predicate represents a restriction in the QueryIR.
//
// This is a sealed interface - only types in this package implement it.
// The marker method prevents external implementations and enables exhaustive
// type switches in the SQL compiler and the codec.
//
// Predicate types:
//   - Compare: field <op> literal
//   - Like: field LIKE pattern
//   - In: field IN (values...)
//   - IsNull: field IS [NOT] NULL
//   - And / Or / Not: boolean composition
//   - SQLRestriction: raw SQL fragment with {alias} placeholder
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "<>"
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// Valid reports whether op is one of the supported operators.
func (op CompareOp) Valid() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// Compare represents a field-versus-literal comparison.
//
// Field is either a bare property ("total"), which the shard engine
// qualifies with the alias of the criteria it is added to, or an
// alias-qualified property ("o.total").
//
// Example:
//
//	Compare{Field: "o.total", Op: OpGt, Value: ir.Int(100)}
//
// Translates to SQL:
//
//	o.total > ?
type Compare struct {
	Field string
	Op    CompareOp
	Value ir.Value // Literal (no floats)
}

func (Compare) predicateNode() {}

// Like matches a field against a SQL LIKE pattern.
type Like struct {
	Field   string
	Pattern string
}

func (Like) predicateNode() {}

// In matches a field against a list of literals.
// An empty list never matches.
type In struct {
	Field  string
	Values ir.List
}

func (In) predicateNode() {}

// IsNull tests a field for NULL, or NOT NULL when Negated is set.
type IsNull struct {
	Field   string
	Negated bool
}

func (IsNull) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or is a disjunction. An empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// SQLRestriction is a raw SQL fragment.
//
// The placeholder {alias} is replaced with the alias of the criteria the
// restriction is added to. Args bind to ? placeholders in SQL, in order.
//
// Example:
//
//	SQLRestriction{SQL: "o.total > 100"}
type SQLRestriction struct {
	SQL  string
	Args []ir.Value
}

func (SQLRestriction) predicateNode() {}

// AliasPlaceholder is substituted in SQLRestriction.SQL.
const AliasPlaceholder = "{alias}"

// Eq builds Compare{field = value}.
func Eq(field string, v ir.Value) Compare { return Compare{Field: field, Op: OpEq, Value: v} }

// Gt builds Compare{field > value}.
func Gt(field string, v ir.Value) Compare { return Compare{Field: field, Op: OpGt, Value: v} }

// Lt builds Compare{field < value}.
func Lt(field string, v ir.Value) Compare { return Compare{Field: field, Op: OpLt, Value: v} }

// Restriction builds a raw SQL restriction.
func Restriction(sql string, args ...ir.Value) SQLRestriction {
	return SQLRestriction{SQL: sql, Args: args}
}

// SplitField splits "alias.property" into its parts.
// A bare property returns an empty alias.
func SplitField(field string) (alias, property string) {
	if i := strings.LastIndexByte(field, '.'); i >= 0 {
		return field[:i], field[i+1:]
	}
	return "", field
}

// Order is a single ORDER BY term.
type Order struct {
	Property   string `json:"property"`
	Descending bool   `json:"descending,omitempty"`
}

// Asc orders by property ascending.
func Asc(property string) Order { return Order{Property: property} }

// Desc orders by property descending.
func Desc(property string) Order { return Order{Property: property, Descending: true} }

// Projection replaces the selected columns.
// RowCount selects COUNT(*) after the listed properties.
type Projection struct {
	Properties []string `json:"properties,omitempty"`
	RowCount   bool     `json:"row_count,omitempty"`
}

// Select is the root of a shard-local criteria tree.
//
// Semantics:
//
//	SELECT <projection | alias.*> FROM <Table> AS <Alias>
//	  <Joins...> WHERE <Filters...> ORDER BY <Orders...>, <Alias>.<IDColumn>
//	  LIMIT <Limit> OFFSET <Offset>
//
// Filters and Orders hold terms from the root and every sub-criteria, in the
// order they were applied, with property names already alias-qualified.
type Select struct {
	Entity     string
	Table      string
	Alias      string
	IDColumn   string
	Joins      []*Join // In creation order; a parent always precedes its children
	Filters    []Predicate
	Orders     []Order
	Projection *Projection
	Limit      int // 0 = unlimited
	Offset     int
	Comment    string
}

// Join is one sub-criteria: a traversal of an association from a parent alias.
//
// Semantics:
//
//	<Type> JOIN <Table> AS <Alias>
//	  ON <ParentAlias>.<ParentKey> = <Alias>.<ChildKey> [AND <With>]
type Join struct {
	Association string
	Entity      string
	Table       string
	Alias       string
	ParentAlias string
	ParentKey   string
	ChildKey    string
	Type        ir.JoinType
	With        Predicate // nil = no extra join condition
}

// Aliases returns every alias in the tree, root first.
func (s *Select) Aliases() []string {
	out := make([]string, 0, len(s.Joins)+1)
	out = append(out, s.Alias)
	for _, j := range s.Joins {
		out = append(out, j.Alias)
	}
	return out
}

// HasAlias reports whether alias names the root or a join.
func (s *Select) HasAlias(alias string) bool {
	if s.Alias == alias {
		return true
	}
	for _, j := range s.Joins {
		if j.Alias == alias {
			return true
		}
	}
	return false
}
