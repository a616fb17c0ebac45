package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows a future algorithm change.
const (
	DomainRecipe = "hshards/recipe/v1"
	DomainPlan   = "hshards/plan/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RecipeHash returns the content hash of an encoded sub-criteria recipe.
// Two recipes with the same variant and declared fields hash identically.
func RecipeHash(recipe Object) (string, error) {
	canonical, err := MarshalCanonical(recipe)
	if err != nil {
		return "", fmt.Errorf("RecipeHash: %w", err)
	}
	return hashWithDomain(DomainRecipe, canonical), nil
}

// PlanHash returns the content hash of an encoded logical criteria plan.
func PlanHash(plan Object) (string, error) {
	canonical, err := MarshalCanonical(plan)
	if err != nil {
		return "", fmt.Errorf("PlanHash: %w", err)
	}
	return hashWithDomain(DomainPlan, canonical), nil
}
