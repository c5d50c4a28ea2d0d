package invoker

import "context"

// provider executes a single model invocation against one backend SDK.
// Implementations never return a Go error for provider faults — those are
// captured into Response.Error so the fan-out executor can retry uniformly.
type provider interface {
	invoke(ctx context.Context, req Request) Response
}
