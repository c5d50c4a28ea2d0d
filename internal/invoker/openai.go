package invoker

import (
	"context"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// openAIProvider wraps the official OpenAI Go SDK for plain chat completions.
type openAIProvider struct {
	client openai.Client
}

func newOpenAIProvider(apiKey string) *openAIProvider {
	return &openAIProvider{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0), // PromptForge owns retry policy via the fan-out executor
		),
	}
}

func (p *openAIProvider) invoke(ctx context.Context, req Request) Response {
	start := time.Now()

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(stripProviderPrefix(req.Model)),
		Messages: buildOpenAIMessages(req.Messages),
		N:        param.NewOpt(int64(1)),
	}

	includeTemperature, includeTopP := ParameterPolicy(req, ProviderOpenAI)
	if includeTemperature {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if includeTopP {
		params.TopP = param.NewOpt(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.ReasoningEffort != "" {
		params.ReasoningEffort = openai.ReasoningEffort(req.ReasoningEffort)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		msg := err.Error()
		return Response{Model: req.Model, Provider: ProviderOpenAI, LatencyMs: since(start), Error: &msg}
	}

	if len(completion.Choices) == 0 {
		msg := "openai: no choices returned"
		return Response{Model: req.Model, Provider: ProviderOpenAI, LatencyMs: since(start), Error: &msg}
	}

	return Response{
		Output:    completion.Choices[0].Message.Content,
		Model:     req.Model,
		Provider:  ProviderOpenAI,
		LatencyMs: since(start),
		Tokens: TokenUsage{
			Prompt:     int(completion.Usage.PromptTokens),
			Completion: int(completion.Usage.CompletionTokens),
			Total:      int(completion.Usage.TotalTokens),
		},
	}
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}

	return out
}
