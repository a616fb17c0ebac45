package subcriteria

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
	"github.com/ruilorenzetti/hibernate-shards/internal/queryir"
)

// Variant selects which create operation a Recipe invokes.
// The zero value is not a valid variant.
type Variant int

const (
	VariantAssociation Variant = iota + 1
	VariantAssociationJoinType
	VariantAssociationAlias
	VariantAssociationAliasJoinType
	VariantAssociationAliasJoinTypeFilter
)

var variantNames = map[Variant]string{
	VariantAssociation:                    "association",
	VariantAssociationJoinType:            "association_join_type",
	VariantAssociationAlias:               "association_alias",
	VariantAssociationAliasJoinType:       "association_alias_join_type",
	VariantAssociationAliasJoinTypeFilter: "association_alias_join_type_filter",
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// Valid reports whether v is one of the five variants.
func (v Variant) Valid() bool {
	_, ok := variantNames[v]
	return ok
}

func (v Variant) declaresJoinType() bool {
	return v == VariantAssociationJoinType || v == VariantAssociationAliasJoinType || v == VariantAssociationAliasJoinTypeFilter
}

func (v Variant) declaresAlias() bool {
	return v == VariantAssociationAlias || v == VariantAssociationAliasJoinType || v == VariantAssociationAliasJoinTypeFilter
}

func (v Variant) declaresFilter() bool {
	return v == VariantAssociationAliasJoinTypeFilter
}

// ParseVariant accepts a name returned by Variant.String.
func ParseVariant(s string) (Variant, error) {
	for v, name := range variantNames {
		if name == s {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown recipe variant %q", s)
}

// InferVariant picks the variant declaring exactly the given fields.
// A filter without an alias and join type has no matching call shape.
func InferVariant(hasJoinType, hasAlias, hasFilter bool) (Variant, error) {
	switch {
	case hasFilter && hasAlias && hasJoinType:
		return VariantAssociationAliasJoinTypeFilter, nil
	case hasFilter:
		return 0, fmt.Errorf("a join filter requires both alias and join type")
	case hasAlias && hasJoinType:
		return VariantAssociationAliasJoinType, nil
	case hasAlias:
		return VariantAssociationAlias, nil
	case hasJoinType:
		return VariantAssociationJoinType, nil
	default:
		return VariantAssociation, nil
	}
}

// Recipe is an immutable description of how to create one sub-criteria.
// Build one with Capture or a variant constructor.
type Recipe struct {
	variant     Variant
	association string

	joinType    ir.JoinType
	hasJoinType bool
	alias       string
	hasAlias    bool
	filter      queryir.Predicate
}

// Option supplies an optional recipe field.
type Option func(*Recipe)

// WithJoinType supplies the join type.
func WithJoinType(jt ir.JoinType) Option {
	return func(r *Recipe) {
		r.joinType = jt
		r.hasJoinType = true
	}
}

// WithAliasName supplies the alias.
func WithAliasName(alias string) Option {
	return func(r *Recipe) {
		r.alias = alias
		r.hasAlias = true
	}
}

// WithFilter supplies the extra join condition.
func WithFilter(p queryir.Predicate) Option {
	return func(r *Recipe) {
		r.filter = p
	}
}

// Capture builds a recipe for variant. Fields the variant does not declare
// may be supplied and are kept but never passed on. A missing declared field
// fails with *InvalidRecipeError. Join type codes are passed through as
// given; the engine that creates the sub-criteria decides which it accepts.
func Capture(variant Variant, association string, opts ...Option) (Recipe, error) {
	if !variant.Valid() {
		return Recipe{}, &UnsupportedRecipeVariantError{Variant: variant}
	}
	r := Recipe{variant: variant, association: association}
	for _, opt := range opts {
		opt(&r)
	}

	if association == "" {
		return Recipe{}, &InvalidRecipeError{Variant: variant, Field: "association", Message: "must not be empty"}
	}
	if variant.declaresJoinType() && !r.hasJoinType {
		return Recipe{}, &InvalidRecipeError{Variant: variant, Field: "join_type", Message: "is required"}
	}
	if variant.declaresAlias() && (!r.hasAlias || r.alias == "") {
		return Recipe{}, &InvalidRecipeError{Variant: variant, Field: "alias", Message: "is required"}
	}
	if variant.declaresFilter() && r.filter == nil {
		return Recipe{}, &InvalidRecipeError{Variant: variant, Field: "filter", Message: "is required"}
	}
	return r, nil
}

// Association captures the plain association variant.
func Association(association string) (Recipe, error) {
	return Capture(VariantAssociation, association)
}

// WithJoin captures the association and join type variant.
func WithJoin(association string, jt ir.JoinType) (Recipe, error) {
	return Capture(VariantAssociationJoinType, association, WithJoinType(jt))
}

// WithAlias captures the association and alias variant.
func WithAlias(association, alias string) (Recipe, error) {
	return Capture(VariantAssociationAlias, association, WithAliasName(alias))
}

// WithAliasAndJoin captures the association, alias and join type variant.
func WithAliasAndJoin(association, alias string, jt ir.JoinType) (Recipe, error) {
	return Capture(VariantAssociationAliasJoinType, association, WithAliasName(alias), WithJoinType(jt))
}

// WithAliasJoinAndFilter captures the variant with an extra join condition.
func WithAliasJoinAndFilter(association, alias string, jt ir.JoinType, with queryir.Predicate) (Recipe, error) {
	return Capture(VariantAssociationAliasJoinTypeFilter, association, WithAliasName(alias), WithJoinType(jt), WithFilter(with))
}

// Variant returns the call shape.
func (r Recipe) Variant() Variant { return r.variant }

// Association returns the association name.
func (r Recipe) Association() string { return r.association }

// JoinType returns the join type and whether the variant declares one.
func (r Recipe) JoinType() (ir.JoinType, bool) {
	return r.joinType, r.variant.declaresJoinType()
}

// Alias returns the alias and whether the variant declares one.
func (r Recipe) Alias() (string, bool) {
	return r.alias, r.variant.declaresAlias()
}

// Filter returns the join filter, or nil for variants without one.
func (r Recipe) Filter() queryir.Predicate {
	if !r.variant.declaresFilter() {
		return nil
	}
	return r.filter
}

// recipeJSON carries only the fields the variant declares.
type recipeJSON struct {
	Variant     string          `json:"variant"`
	Association string          `json:"association"`
	JoinType    *ir.JoinType    `json:"join_type,omitempty"`
	Alias       string          `json:"alias,omitempty"`
	Filter      json.RawMessage `json:"filter,omitempty"`
}

// MarshalJSON encodes the declared fields of r.
func (r Recipe) MarshalJSON() ([]byte, error) {
	if !r.variant.Valid() {
		return nil, &UnsupportedRecipeVariantError{Variant: r.variant}
	}
	w := recipeJSON{Variant: r.variant.String(), Association: r.association}
	if jt, ok := r.JoinType(); ok {
		w.JoinType = &jt
	}
	if alias, ok := r.Alias(); ok {
		w.Alias = alias
	}
	if f := r.Filter(); f != nil {
		b, err := queryir.MarshalPredicate(f)
		if err != nil {
			return nil, fmt.Errorf("recipe filter: %w", err)
		}
		w.Filter = b
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a recipe and re-checks it through Capture.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid recipe JSON")
	}
	doc := gjson.ParseBytes(data)

	variant, err := ParseVariant(doc.Get("variant").String())
	if err != nil {
		return err
	}
	var opts []Option
	if jt := doc.Get("join_type"); jt.Exists() {
		opts = append(opts, WithJoinType(ir.JoinType(jt.Int())))
	}
	if alias := doc.Get("alias"); alias.Exists() {
		opts = append(opts, WithAliasName(alias.String()))
	}
	if f := doc.Get("filter"); f.Exists() {
		p, err := queryir.UnmarshalPredicate([]byte(f.Raw))
		if err != nil {
			return fmt.Errorf("recipe filter: %w", err)
		}
		opts = append(opts, WithFilter(p))
	}

	decoded, err := Capture(variant, doc.Get("association").String(), opts...)
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

// Hash returns a content hash over the declared fields of r.
// Two recipes that dispatch identically hash identically.
func (r Recipe) Hash() (string, error) {
	b, err := r.MarshalJSON()
	if err != nil {
		return "", err
	}
	v, err := ir.UnmarshalValue(b)
	if err != nil {
		return "", fmt.Errorf("recipe hash: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return "", fmt.Errorf("recipe hash: expected object, got %T", v)
	}
	return ir.RecipeHash(obj)
}
