package invoker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeProvider struct {
	response Response
}

func (f fakeProvider) invoke(ctx context.Context, req Request) Response {
	return f.response
}

func TestInvokeDispatchesByModelPrefix(t *testing.T) {
	inv := &Invoker{providers: map[string]provider{
		ProviderAnthropic: fakeProvider{response: Response{Output: "hi", Provider: ProviderAnthropic}},
	}}

	resp := inv.Invoke(context.Background(), Request{Model: "claude-3-5-sonnet"})

	assert.Equal(t, "hi", resp.Output)
	assert.Equal(t, ProviderAnthropic, resp.Provider)
	assert.Nil(t, resp.Error)
}

func TestInvokeMissingCredentialsReturnsError(t *testing.T) {
	inv := &Invoker{
		providers: map[string]provider{},
		errors:    map[string]error{ProviderOpenAI: assert.AnError},
	}

	resp := inv.Invoke(context.Background(), Request{Model: "gpt-4o"})

	assert.Empty(t, resp.Output)
	require := assert.New(t)
	require.NotNil(resp.Error)
}

func TestInferProviderPrefixAndDefault(t *testing.T) {
	assert.Equal(t, ProviderOpenAI, inferProvider("gpt-4o"))
	assert.Equal(t, ProviderAnthropic, inferProvider("claude-3-opus"))
	assert.Equal(t, ProviderGoogle, inferProvider("gemini-1.5-pro"))
	assert.Equal(t, ProviderOpenAI, inferProvider("some-unknown-model"))
	assert.Equal(t, ProviderAnthropic, inferProvider("anthropic/claude-3-haiku"))
}

func TestStripProviderPrefix(t *testing.T) {
	assert.Equal(t, "claude-3-opus", stripProviderPrefix("anthropic/claude-3-opus"))
	assert.Equal(t, "gpt-4o", stripProviderPrefix("gpt-4o"))
}

func TestParameterPolicyReasoningOmitsBoth(t *testing.T) {
	includeTemp, includeTopP := ParameterPolicy(Request{ReasoningEffort: "high"}, ProviderOpenAI)
	assert.False(t, includeTemp)
	assert.False(t, includeTopP)
}

func TestParameterPolicyAnthropicNeverIncludesTopP(t *testing.T) {
	includeTemp, includeTopP := ParameterPolicy(Request{TopP: 0.5}, ProviderAnthropic)
	assert.True(t, includeTemp)
	assert.False(t, includeTopP)
}

func TestParameterPolicyDefaultTopPOmitted(t *testing.T) {
	_, includeTopP := ParameterPolicy(Request{TopP: 1.0}, ProviderOpenAI)
	assert.False(t, includeTopP)
}

func TestWrapReasoning(t *testing.T) {
	assert.Equal(t, "answer", WrapReasoning("", "answer"))
	assert.Contains(t, WrapReasoning("because", "answer"), "<thinking>")
}
