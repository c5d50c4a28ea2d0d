package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	names := Extract("Echo {{x}} and {{y}} and {{x}} again")
	assert.ElementsMatch(t, []string{"x", "y"}, names)
}

func TestExtractNoVariables(t *testing.T) {
	assert.Empty(t, Extract("no placeholders here"))
}

func TestValidate(t *testing.T) {
	ok, missing := Validate([]string{"x", "y"}, map[string]any{"x": "A"})
	assert.False(t, ok)
	assert.Equal(t, []string{"y"}, missing)
}

func TestValidateExtraKeysAllowed(t *testing.T) {
	ok, missing := Validate([]string{"x"}, map[string]any{"x": "A", "z": "B"})
	assert.True(t, ok)
	assert.Empty(t, missing)
}

func TestCompile(t *testing.T) {
	out := Compile("Echo {{x}}.", map[string]any{"x": "A"})
	assert.Equal(t, "Echo A.", out)
}

func TestCompileNoReexpansion(t *testing.T) {
	out := Compile("{{x}}", map[string]any{"x": "{{y}}"})
	assert.Equal(t, "{{y}}", out)
}

func TestCompileNonScalarRendersJSON(t *testing.T) {
	out := Compile("{{x}}", map[string]any{"x": []any{"a", "b"}})
	assert.Equal(t, `["a","b"]`, out)
}

func TestCompileMessages(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are {{role}}."},
		{Role: "user", Content: "Echo {{x}}."},
	}

	compiled := CompileMessages(messages, map[string]any{"role": "terse", "x": "A"})

	require.Len(t, compiled, 2)
	assert.Equal(t, "system", compiled[0].Role)
	assert.Equal(t, "You are terse.", compiled[0].Content)
	assert.Equal(t, "Echo A.", compiled[1].Content)
}

func TestDryRunTextValid(t *testing.T) {
	result := DryRun(TypeText, "Echo {{x}}.", nil, map[string]any{"x": "A"})

	assert.True(t, result.IsValid)
	require.NotNil(t, result.CompiledText)
	assert.Equal(t, "Echo A.", *result.CompiledText)
	assert.Equal(t, []string{"x"}, result.RequiredVariables)
	assert.Empty(t, result.MissingVariables)
}

func TestDryRunTextMissingVariable(t *testing.T) {
	result := DryRun(TypeText, "Echo {{x}}.", nil, map[string]any{"y": "oops"})

	assert.False(t, result.IsValid)
	assert.Nil(t, result.CompiledText)
	assert.Equal(t, []string{"x"}, result.MissingVariables)
}

func TestDryRunChatValid(t *testing.T) {
	messages := []Message{{Role: "user", Content: "Echo {{x}}."}}
	result := DryRun(TypeChat, "", messages, map[string]any{"x": "A"})

	assert.True(t, result.IsValid)
	require.Len(t, result.CompiledMessages, 1)
	assert.Equal(t, "Echo A.", result.CompiledMessages[0].Content)
}

func TestTemplateRoundTrip(t *testing.T) {
	tpl := "Hello {{name}}, you are {{age}}."
	vars := map[string]any{"name": "Ada", "age": 30.0, "extra": "unused"}

	compiled := Compile(tpl, vars)

	for _, name := range Extract(tpl) {
		assert.NotContains(t, compiled, "{{"+name+"}}")
	}
}
