package compliance

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsKeyOrder(t *testing.T) {
	v, err := Decode([]byte(`{"zeta":1,"alpha":{"b":true,"a":null},"mid":[1,"x"]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())

	inner, _ := obj.Get("alpha")
	assert.Equal(t, []string{"b", "a"}, inner.(Object).Keys())

	mid, _ := obj.Get("mid")
	assert.Equal(t, []any{1.0, "x"}, mid)
}

func TestDecodeDuplicateKeys(t *testing.T) {
	v, err := Decode([]byte(`{"a":1,"b":2,"a":3}`))
	require.NoError(t, err)

	obj := v.(Object)
	assert.Equal(t, []string{"a", "b"}, obj.Keys())
	a, _ := obj.Get("a")
	assert.Equal(t, 3.0, a)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ``},
		{name: "truncated", input: `{"a":`},
		{name: "trailing value", input: `{"a":1} {"b":2}`},
		{name: "not json", input: `hello`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestObjectMarshalJSONKeepsOrder(t *testing.T) {
	obj := NewObject("z", 1.0, "a", NewObject("y", "b", "x", []any{true}))

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":{"y":"b","x":[true]}}`, string(data))
}

func TestObjectToMap(t *testing.T) {
	obj := NewObject("consumo", 120.5, "zonas", []any{NewObject("nombre", "norte")})

	assert.Equal(t, map[string]any{
		"consumo": 120.5,
		"zonas":   []any{map[string]any{"nombre": "norte"}},
	}, obj.ToMap())
}
