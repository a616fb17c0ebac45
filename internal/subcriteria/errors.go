package subcriteria

import (
	"errors"
	"fmt"
)

// InvalidRecipeError reports a recipe captured without a field its variant
// requires. It is only ever returned by Capture and the recipe constructors.
type InvalidRecipeError struct {
	Variant Variant
	Field   string
	Message string
}

func (e *InvalidRecipeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s recipe: %s", e.Variant, e.Message)
	}
	return fmt.Sprintf("invalid %s recipe: %s: %s", e.Variant, e.Field, e.Message)
}

// UnsupportedRecipeVariantError reports a variant tag outside the closed set.
// Recipes built by this package never carry one; seeing it means corruption.
type UnsupportedRecipeVariantError struct {
	Variant Variant
}

func (e *UnsupportedRecipeVariantError) Error() string {
	return fmt.Sprintf("unsupported recipe variant %s", e.Variant)
}

// EventApplicationError reports the event that rejected a criteria during
// replay. Events after Index were not applied.
type EventApplicationError struct {
	Index int
	Kind  string
	Shard string
	Err   error
}

func (e *EventApplicationError) Error() string {
	if e.Shard != "" {
		return fmt.Sprintf("apply event %d (%s) on shard %s: %v", e.Index, e.Kind, e.Shard, e.Err)
	}
	return fmt.Sprintf("apply event %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *EventApplicationError) Unwrap() error { return e.Err }

// SubqueryCreationError reports that the parent criteria refused to create
// the sub-criteria. No events were applied.
type SubqueryCreationError struct {
	Variant     Variant
	Association string
	Shard       string
	Err         error
}

func (e *SubqueryCreationError) Error() string {
	if e.Shard != "" {
		return fmt.Sprintf("create sub-criteria %q (%s) on shard %s: %v", e.Association, e.Variant, e.Shard, e.Err)
	}
	return fmt.Sprintf("create sub-criteria %q (%s): %v", e.Association, e.Variant, e.Err)
}

func (e *SubqueryCreationError) Unwrap() error { return e.Err }

// IsInvalidRecipe reports whether err wraps an *InvalidRecipeError.
func IsInvalidRecipe(err error) bool {
	var target *InvalidRecipeError
	return errors.As(err, &target)
}

// IsUnsupportedVariant reports whether err wraps an *UnsupportedRecipeVariantError.
func IsUnsupportedVariant(err error) bool {
	var target *UnsupportedRecipeVariantError
	return errors.As(err, &target)
}

// IsEventApplication reports whether err wraps an *EventApplicationError.
func IsEventApplication(err error) bool {
	var target *EventApplicationError
	return errors.As(err, &target)
}

// IsSubqueryCreation reports whether err wraps a *SubqueryCreationError.
func IsSubqueryCreation(err error) bool {
	var target *SubqueryCreationError
	return errors.As(err, &target)
}
