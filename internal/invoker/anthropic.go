package invoker

import (
	"context"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 2048

// anthropicProvider wraps the official Anthropic Go SDK for plain message completions.
type anthropicProvider struct {
	client anthropic.Client
}

func newAnthropicProvider(apiKey string) *anthropicProvider {
	return &anthropicProvider{
		client: anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
	}
}

func (p *anthropicProvider) invoke(ctx context.Context, req Request) Response {
	start := time.Now()

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		MaxTokens: maxTokens,
		Model:     anthropic.Model(stripProviderPrefix(req.Model)),
		Messages:  buildAnthropicMessages(req.Messages),
	}

	if system := systemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	includeTemperature, includeTopP := ParameterPolicy(req, ProviderAnthropic)
	if includeTemperature {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if includeTopP {
		params.TopP = anthropic.Float(req.TopP)
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		msg := err.Error()
		return Response{Model: req.Model, Provider: ProviderAnthropic, LatencyMs: since(start), Error: &msg}
	}

	output := ""
	for _, block := range message.Content {
		if text := block.Text; text != "" {
			output += text
		}
	}

	return Response{
		Output:    output,
		Model:     req.Model,
		Provider:  ProviderAnthropic,
		LatencyMs: since(start),
		Tokens: TokenUsage{
			Prompt:     int(message.Usage.InputTokens),
			Completion: int(message.Usage.OutputTokens),
			Total:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}
}

func buildAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case "system":
			continue // Anthropic takes system prompts out-of-band via params.System
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	return out
}

func systemPrompt(messages []Message) string {
	for _, m := range messages {
		if m.Role == "system" {
			return m.Content
		}
	}

	return ""
}
