package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecipeHashDeterminism(t *testing.T) {
	recipe := Object{
		"variant":     String("association_and_alias"),
		"association": String("orders"),
		"alias":       String("o"),
	}

	h1, err := RecipeHash(recipe)
	require.NoError(t, err)
	h2, err := RecipeHash(Object{
		"alias":       String("o"),
		"association": String("orders"),
		"variant":     String("association_and_alias"),
	})
	require.NoError(t, err)

	assert.Equal(t, h1, h2, "key order must not affect the hash")
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestHashDomainSeparation(t *testing.T) {
	obj := Object{"association": String("orders")}

	recipe, err := RecipeHash(obj)
	require.NoError(t, err)
	plan, err := PlanHash(obj)
	require.NoError(t, err)

	assert.NotEqual(t, recipe, plan, "same payload in different domains must differ")
}

func TestRecipeHashChangesWithInput(t *testing.T) {
	a, err := RecipeHash(Object{"association": String("orders"), "alias": String("o")})
	require.NoError(t, err)
	b, err := RecipeHash(Object{"association": String("orders"), "alias": String("p")})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
