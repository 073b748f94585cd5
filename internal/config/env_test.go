package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnvVarsBraced(t *testing.T) {
	t.Setenv("CONDUIT_TEST_VAR", "hello")
	assert.Equal(t, "hello world", ExpandEnvVars("${CONDUIT_TEST_VAR} world"))
}

func TestExpandEnvVarsSimple(t *testing.T) {
	t.Setenv("CONDUIT_TEST_VAR", "hello")
	assert.Equal(t, "hello world", ExpandEnvVars("$CONDUIT_TEST_VAR world"))
}

func TestExpandEnvVarsWithDefaultFallsBackWhenUnset(t *testing.T) {
	assert.Equal(t, "fallback", ExpandEnvVars("${CONDUIT_TEST_UNSET:-fallback}"))
}

func TestExpandEnvVarsWithDefaultPrefersSetValue(t *testing.T) {
	t.Setenv("CONDUIT_TEST_VAR", "set")
	assert.Equal(t, "set", ExpandEnvVars("${CONDUIT_TEST_VAR:-fallback}"))
}

func TestExpandEnvVarsUnsetBracedExpandsEmpty(t *testing.T) {
	assert.Equal(t, "", ExpandEnvVars("${CONDUIT_TEST_TRULY_UNSET}"))
}

func TestExpandEnvVarsNoDollarSignReturnsUnchanged(t *testing.T) {
	assert.Equal(t, "plain string", ExpandEnvVars("plain string"))
}

func TestExpandEnvVarsDeepWalksNestedStructures(t *testing.T) {
	t.Setenv("CONDUIT_TEST_VAR", "injected")
	in := map[string]any{
		"top": "${CONDUIT_TEST_VAR}",
		"nested": map[string]any{
			"list": []any{"$CONDUIT_TEST_VAR", "literal"},
		},
		"number": 42,
	}

	out := ExpandEnvVarsDeep(in).(map[string]any)
	assert.Equal(t, "injected", out["top"])
	nested := out["nested"].(map[string]any)
	list := nested["list"].([]any)
	assert.Equal(t, "injected", list[0])
	assert.Equal(t, "literal", list[1])
	assert.Equal(t, 42, out["number"])
}
