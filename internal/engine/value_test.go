package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_Equal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{name: "Should equate nulls", a: Null(), b: Null(), want: true},
		{name: "Should equate equal numbers", a: Number(2.5), b: Number(2.5), want: true},
		{name: "Should not equate number and its string form", a: Number(5), b: String("5"), want: false},
		{name: "Should not equate bool and number", a: Bool(true), b: Number(1), want: false},
		{name: "Should equate arrays element-wise", a: Array(Number(1), String("x")), b: Array(Number(1), String("x")), want: true},
		{name: "Should order-sensitively compare arrays", a: Array(Number(1), Number(2)), b: Array(Number(2), Number(1)), want: false},
		{
			name: "Should equate objects key-wise",
			a:    Object(map[string]Value{"a": Number(1), "b": String("x")}),
			b:    Object(map[string]Value{"b": String("x"), "a": Number(1)}),
			want: true,
		},
		{
			name: "Should not equate objects with extra keys",
			a:    Object(map[string]Value{"a": Number(1)}),
			b:    Object(map[string]Value{"a": Number(1), "b": Number(2)}),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a), "equality must be symmetric")
		})
	}
}

func TestValue_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	raw := `{"user_id":"u-1","age":25,"premium":true,"tags":["a","b"],"meta":{"depth":2},"missing":null}`

	var v Value
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	assert.Equal(t, KindObject, v.Kind())

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestParseAttributes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, attrs Attributes)
	}{
		{
			name: "Should parse a typed attribute object",
			raw:  `{"country":"TR","age":25,"beta":true}`,
			check: func(t *testing.T, attrs Attributes) {
				assert.True(t, attrs["country"].Equal(String("TR")))
				assert.True(t, attrs["age"].Equal(Number(25)))
				assert.True(t, attrs["beta"].Equal(Bool(true)))
			},
		},
		{
			name: "Should treat an empty payload as no attributes",
			raw:  ``,
			check: func(t *testing.T, attrs Attributes) {
				assert.Empty(t, attrs)
			},
		},
		{
			name:    "Should reject a JSON array",
			raw:     `[1,2]`,
			wantErr: true,
		},
		{
			name:    "Should reject a bare scalar",
			raw:     `42`,
			wantErr: true,
		},
		{
			name:    "Should reject invalid JSON",
			raw:     `{"country":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			attrs, err := ParseAttributes(json.RawMessage(tt.raw))

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, attrs)
		})
	}
}

func TestValue_Canonical_IsDeterministic(t *testing.T) {
	t.Parallel()

	// Canonical strings back the anonymous bucketing identity, so object key
	// order must never leak into them.
	a := Object(map[string]Value{"x": Number(1), "y": Array(String("p"), String("q"))})
	b := Object(map[string]Value{"y": Array(String("p"), String("q")), "x": Number(1)})

	assert.Equal(t, a.canonical(), b.canonical())
	assert.Equal(t, "{x=1,y=[p,q]}", a.canonical())
}
