package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.Equal(t, []string{"a"}, schema["required"])
}

func TestCreateSchema_EmptyStruct(t *testing.T) {
	schema := CreateSchema(struct{}{})
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "required")
}

func TestValidateParameters_RequiredShapes(t *testing.T) {
	for name, req := range map[string]any{
		"strings":    []string{"x"},
		"interfaces": []any{"x"},
	} {
		schema := map[string]any{
			"type":       "object",
			"properties": map[string]any{"x": map[string]any{"type": "string"}},
			"required":   req,
		}
		assert.NoError(t, ValidateParameters(map[string]any{"x": "ok", "extra": 1}, schema), name)

		err := ValidateParameters(map[string]any{}, schema)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr, name)
		assert.Equal(t, "x", vErr.Field)

		err = ValidateParameters(map[string]any{"x": nil}, schema)
		assert.Error(t, err, name)
	}
}

func TestValidateParameters_WrongType(t *testing.T) {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
	}
	err := ValidateParameters(map[string]any{"x": "not-int"}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")

	assert.NoError(t, ValidateParameters(map[string]any{"x": 3.0}, schema))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain", out)

	out, err = RenderTemplate("table {{.table}} <{{default \"none\" .missing}}>", map[string]any{"table": "todos"})
	require.NoError(t, err)
	assert.Equal(t, "table todos <none>", out)

	_, err = RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestCreateSchema_Types(t *testing.T) {
	type args struct {
		Name    string            `json:"name"`
		Count   int64             `json:"count"`
		Ratio   float64           `json:"ratio"`
		Done    bool              `json:"done"`
		Tags    []string          `json:"tags"`
		Meta    map[string]string `json:"meta"`
		Limit   *uint             `json:"limit"`
		Skipped string            `json:"-"`
		Plain   string
	}
	props := CreateSchema(&args{})["properties"].(map[string]any)

	want := map[string]string{
		"name": "string", "count": "integer", "ratio": "number", "done": "boolean",
		"tags": "array", "meta": "object", "limit": "integer", "Plain": "string",
	}
	require.Len(t, props, len(want))
	for name, typ := range want {
		assert.Equal(t, typ, props[name].(map[string]any)["type"], name)
	}
}

func TestValidateParameters_JSONNumbers(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"n": map[string]any{"type": "number"},
			"i": map[string]any{"type": "integer"},
		},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"n": 1.5, "i": 2}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"i": 2.5}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"n": "1"}, schema))
}
