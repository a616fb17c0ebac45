package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruilorenzetti/hibernate-shards/internal/ir"
)

func TestQualifyBareFields(t *testing.T) {
	in := And{Predicates: []Predicate{
		Gt("total", ir.Int(100)),
		Eq("c.region", ir.String("eu")),
		Restriction("{alias}.total < ?", ir.Int(500)),
	}}

	got, err := Qualify(in, "o")
	require.NoError(t, err)

	assert.Equal(t, And{Predicates: []Predicate{
		Gt("o.total", ir.Int(100)),
		Eq("c.region", ir.String("eu")),
		Restriction("o.total < ?", ir.Int(500)),
	}}, got)

	// Input must be left untouched.
	assert.Equal(t, "total", in.Predicates[0].(Compare).Field)
}

func TestQualifyNil(t *testing.T) {
	got, err := Qualify(nil, "o")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFieldAliases(t *testing.T) {
	p := Or{Predicates: []Predicate{
		Eq("o.status", ir.String("open")),
		Not{Predicate: IsNull{Field: "c.email"}},
		Eq("bare", ir.Int(1)),
		Restriction("x.y = 1"),
	}}
	assert.Equal(t, []string{"o", "c"}, FieldAliases(p))
}

func TestSplitField(t *testing.T) {
	a, p := SplitField("o.total")
	assert.Equal(t, "o", a)
	assert.Equal(t, "total", p)

	a, p = SplitField("total")
	assert.Equal(t, "", a)
	assert.Equal(t, "total", p)

	assert.Equal(t, "o.total", QualifyProperty("total", "o"))
	assert.Equal(t, "c.total", QualifyProperty("c.total", "o"))
}
