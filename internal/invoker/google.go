package invoker

import (
	"context"
	"time"

	"google.golang.org/genai"
)

// googleProvider wraps the official Google GenAI Go SDK for plain content generation.
type googleProvider struct {
	client *genai.Client
}

func newGoogleProvider(ctx context.Context, apiKey string) (*googleProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &googleProvider{client: client}, nil
}

func (p *googleProvider) invoke(ctx context.Context, req Request) Response {
	start := time.Now()

	config := &genai.GenerateContentConfig{CandidateCount: 1}

	includeTemperature, includeTopP := ParameterPolicy(req, ProviderGoogle)
	if includeTemperature {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	if includeTopP {
		topP := float32(req.TopP)
		config.TopP = &topP
	}
	if system := systemPrompt(req.Messages); system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	contents := buildGoogleContents(req.Messages)

	result, err := p.client.Models.GenerateContent(ctx, stripProviderPrefix(req.Model), contents, config)
	if err != nil {
		msg := err.Error()
		return Response{Model: req.Model, Provider: ProviderGoogle, LatencyMs: since(start), Error: &msg}
	}

	usage := TokenUsage{}
	if result.UsageMetadata != nil {
		usage = TokenUsage{
			Prompt:     int(result.UsageMetadata.PromptTokenCount),
			Completion: int(result.UsageMetadata.CandidatesTokenCount),
			Total:      int(result.UsageMetadata.TotalTokenCount),
		}
	}

	return Response{
		Output:    result.Text(),
		Model:     req.Model,
		Provider:  ProviderGoogle,
		LatencyMs: since(start),
		Tokens:    usage,
	}
}

func buildGoogleContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case "system":
			continue // carried out-of-band via GenerateContentConfig.SystemInstruction
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	return contents
}
