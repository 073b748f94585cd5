package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "age": {"type": "integer"}
  },
  "required": ["name", "age"]
}`

func TestParseDirectJSON(t *testing.T) {
	result, err := Parse(`{"name":"Alice","age":30}`, []byte(personSchema), Options{Strict: true})
	require.NoError(t, err)
	m := result.Value.(map[string]any)
	assert.Equal(t, "Alice", m["name"])
}

func TestParseFencedCodeBlock(t *testing.T) {
	content := "Here you go:\n```json\n{\"name\":\"Bob\",\"age\":25}\n```\nThanks."
	result, err := Parse(content, []byte(personSchema), Options{Strict: true})
	require.NoError(t, err)
	m := result.Value.(map[string]any)
	assert.Equal(t, "Bob", m["name"])
}

func TestParseFirstBalancedLiteral(t *testing.T) {
	content := `The answer is {"name":"Cleo","age":40} as computed.`
	result, err := Parse(content, []byte(personSchema), Options{Strict: true})
	require.NoError(t, err)
	m := result.Value.(map[string]any)
	assert.Equal(t, "Cleo", m["name"])
}

func TestParseBalancedLiteralIgnoresBracesInStrings(t *testing.T) {
	content := `{"name":"a{b}c","age":1}`
	result, err := Parse(content, []byte(personSchema), Options{Strict: true})
	require.NoError(t, err)
	m := result.Value.(map[string]any)
	assert.Equal(t, "a{b}c", m["name"])
}

func TestParseStrictModeFailsOnSchemaViolation(t *testing.T) {
	_, err := Parse(`{"name":"Alice"}`, []byte(personSchema), Options{Strict: true})
	require.Error(t, err)
	var schemaErr *Error
	require.ErrorAs(t, err, &schemaErr)
}

func TestParseNonStrictModeReturnsPartialWithWarning(t *testing.T) {
	result, err := Parse(`{"name":"Alice"}`, []byte(personSchema), Options{Strict: false})
	require.NoError(t, err)
	require.NotNil(t, result.Warning)
	m := result.Value.(map[string]any)
	assert.Equal(t, "Alice", m["name"])
}

func TestParseFailsWhenNoJSONFound(t *testing.T) {
	_, err := Parse("no json here at all", []byte(personSchema), Options{Strict: true})
	require.Error(t, err)
}

func TestParseWithoutSchemaSkipsValidation(t *testing.T) {
	result, err := Parse(`{"anything":1}`, nil, Options{Strict: true})
	require.NoError(t, err)
	assert.NotNil(t, result.Value)
}
