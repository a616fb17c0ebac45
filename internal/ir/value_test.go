package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalValue(t *testing.T) {
	v, err := UnmarshalValue([]byte(`{"n":100,"s":"x","b":false,"l":[1,2],"z":null}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, Int(100), obj["n"])
	assert.Equal(t, String("x"), obj["s"])
	assert.Equal(t, Bool(false), obj["b"])
	assert.Equal(t, List{Int(1), Int(2)}, obj["l"])
	assert.Equal(t, Null{}, obj["z"])
}

func TestUnmarshalValueRejectsFloats(t *testing.T) {
	_, err := UnmarshalValue([]byte(`1.5`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats")
}

func TestFromAnyIntegralFloat(t *testing.T) {
	// YAML and JSON decoders without UseNumber yield float64 for integers.
	v, err := FromAny(float64(100))
	require.NoError(t, err)
	assert.Equal(t, Int(100), v)

	_, err = FromAny(100.5)
	require.Error(t, err)
}

func TestObjectMarshalJSONSorted(t *testing.T) {
	out, err := json.Marshal(Object{"b": Int(1), "a": String("x")})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1}`, string(out))
}

func TestToAnyRoundTrip(t *testing.T) {
	assert.Equal(t, "x", ToAny(String("x")))
	assert.Equal(t, int64(7), ToAny(Int(7)))
	assert.Equal(t, true, ToAny(Bool(true)))
	assert.Nil(t, ToAny(Null{}))
	assert.Equal(t, []any{int64(1), "a"}, ToAny(List{Int(1), String("a")}))
}

func TestSortedKeysUTF16(t *testing.T) {
	// U+FF61 sorts before U+1F600 in UTF-8 but after it in UTF-16.
	obj := Object{"\U0001F600": Int(1), "\uFF61": Int(2)}
	assert.Equal(t, []string{"\U0001F600", "\uFF61"}, obj.SortedKeys())
}

func TestJoinTypeParseAndSQL(t *testing.T) {
	tests := []struct {
		in   string
		want JoinType
		sql  string
	}{
		{"inner", InnerJoin, "INNER JOIN"},
		{"LEFT", LeftOuterJoin, "LEFT JOIN"},
		{"left_outer_join", LeftOuterJoin, "LEFT JOIN"},
		{"right", RightOuterJoin, "RIGHT JOIN"},
		{"full", FullJoin, "FULL JOIN"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			jt, err := ParseJoinType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, jt)
			sql, err := jt.SQL()
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
		})
	}

	_, err := ParseJoinType("cross")
	require.Error(t, err)

	_, err = JoinType(3).SQL()
	require.Error(t, err)
	assert.False(t, JoinType(3).Valid())
	assert.Equal(t, "JoinType(3)", JoinType(3).String())
}
