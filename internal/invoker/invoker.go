package invoker

import (
	"context"
	"fmt"
)

// Credentials holds the provider API keys the Invoker dispatches with. A
// missing key means calls for that provider fail fast with a Response.Error
// rather than an empty-auth request reaching the provider.
type Credentials struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GoogleAPIKey    string
}

// Invoker dispatches a Request to the provider inferred from its model name
// and normalizes the result into a Response. It never returns a Go error;
// all failures - missing credentials, provider faults, context cancellation -
// surface through Response.Error so callers can treat every invocation
// uniformly for retry purposes.
type Invoker struct {
	providers map[string]provider
	errors    map[string]error
}

// New builds an Invoker, eagerly constructing the providers whose credentials
// are present. Providers with missing credentials are recorded and reported
// per-request rather than at construction time.
func New(ctx context.Context, creds Credentials) *Invoker {
	inv := &Invoker{
		providers: make(map[string]provider),
		errors:    make(map[string]error),
	}

	if creds.OpenAIAPIKey != "" {
		inv.providers[ProviderOpenAI] = newOpenAIProvider(creds.OpenAIAPIKey)
	} else {
		inv.errors[ProviderOpenAI] = fmt.Errorf("invoker: no API key configured for provider %q", ProviderOpenAI)
	}

	if creds.AnthropicAPIKey != "" {
		inv.providers[ProviderAnthropic] = newAnthropicProvider(creds.AnthropicAPIKey)
	} else {
		inv.errors[ProviderAnthropic] = fmt.Errorf("invoker: no API key configured for provider %q", ProviderAnthropic)
	}

	if creds.GoogleAPIKey != "" {
		google, err := newGoogleProvider(ctx, creds.GoogleAPIKey)
		if err != nil {
			inv.errors[ProviderGoogle] = fmt.Errorf("invoker: provider %q client init failed: %w", ProviderGoogle, err)
		} else {
			inv.providers[ProviderGoogle] = google
		}
	} else {
		inv.errors[ProviderGoogle] = fmt.Errorf("invoker: no API key configured for provider %q", ProviderGoogle)
	}

	return inv
}

// Invoke resolves the provider for req.Model and runs the request against it.
func (inv *Invoker) Invoke(ctx context.Context, req Request) Response {
	name := inferProvider(req.Model)

	p, ok := inv.providers[name]
	if !ok {
		msg := inv.errors[name].Error()
		return Response{Model: req.Model, Provider: name, Error: &msg}
	}

	return p.invoke(ctx, req)
}
