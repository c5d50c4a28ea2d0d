// Package invoker adapts PromptForge's model configuration into calls against
// the OpenAI, Anthropic, and Google Gemini provider SDKs, normalizing their
// responses into a single Response shape and never propagating provider
// faults as Go errors — callers inspect Response.Error instead.
package invoker

import "time"

// Provider identifiers inferred from a model name.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Message is one chat turn sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Request describes a single model invocation.
type Request struct {
	Messages        []Message
	Model           string
	Temperature     float64
	MaxTokens       int
	TopP            float64
	ReasoningEffort string // "", "low", "medium", "high"
}

// TokenUsage reports token counts for a single invocation.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Response is the normalized result of a model invocation. Error is non-nil
// exactly when the provider call failed; Output/Tokens/CostUSD are zero in
// that case. LatencyMs is measured regardless of success.
type Response struct {
	Output    string     `json:"output"`
	Model     string     `json:"model"`
	Provider  string     `json:"provider"`
	LatencyMs int64      `json:"latency_ms"`
	Tokens    TokenUsage `json:"tokens"`
	CostUSD   *float64   `json:"cost_usd,omitempty"`
	Error     *string    `json:"error,omitempty"`
}

// inferProvider determines the provider for a model name using prefix
// conventions first, then a static table of well-known model names, defaulting
// to OpenAI.
func inferProvider(model string) string {
	switch {
	case hasPrefix(model, "openai/"):
		return ProviderOpenAI
	case hasPrefix(model, "anthropic/"):
		return ProviderAnthropic
	case hasPrefix(model, "gemini/"):
		return ProviderGoogle
	}

	switch {
	case hasPrefix(model, "gpt-"), hasPrefix(model, "o1-"), hasPrefix(model, "o3-"):
		return ProviderOpenAI
	case hasPrefix(model, "claude-"):
		return ProviderAnthropic
	case hasPrefix(model, "gemini-"):
		return ProviderGoogle
	}

	return ProviderOpenAI
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// stripProviderPrefix removes a leading "openai/", "anthropic/", or "gemini/"
// segment so the remainder is the bare model name the provider SDK expects.
func stripProviderPrefix(model string) string {
	for _, prefix := range []string{"openai/", "anthropic/", "gemini/"} {
		if hasPrefix(model, prefix) {
			return model[len(prefix):]
		}
	}

	return model
}

func since(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// ParameterPolicy decides whether temperature and top_p should be sent to the
// provider for this request. Reasoning-effort requests omit both (reasoning
// models reject them); otherwise temperature is always included and top_p is
// included only for non-Anthropic providers with a non-default value.
func ParameterPolicy(req Request, provider string) (includeTemperature, includeTopP bool) {
	if req.ReasoningEffort != "" {
		return false, false
	}

	includeTopP = provider != ProviderAnthropic && req.TopP != 1.0

	return true, includeTopP
}

// WrapReasoning prefixes output with a <thinking> block when the provider
// surfaced separate reasoning content alongside the final answer.
func WrapReasoning(reasoning, content string) string {
	if reasoning == "" {
		return content
	}

	return "<thinking>\n" + reasoning + "\n</thinking>\n\n" + content
}
