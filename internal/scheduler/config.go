// Package scheduler implements the Run Scheduler and Fan-out Executor:
// a SKIP LOCKED dequeue loop that claims one pending eval run at a time and
// drains it with a semaphore-bounded fan-out over dataset items x models.
package scheduler

import (
	"time"

	"github.com/promptforge/promptforge/internal/config"
)

// Default values mirror the production defaults named in the eval run schema:
// poll_interval 5s, eval_concurrency_limit 10, eval_max_retries 3, eval_timeout_seconds 120.
const (
	defaultPollInterval      = 5 * time.Second
	defaultConcurrencyLimit  = 10
	defaultMaxRetries        = 3
	defaultInvokeTimeout     = 120 * time.Second
	defaultRetryBaseInterval = 2 * time.Second
)

// Config tunes the scheduler's poll loop and per-call invocation timeout.
// Per-run concurrency and retry limits live on the EvalRun row itself and
// take precedence over these process-wide defaults.
type Config struct {
	PollInterval  time.Duration
	InvokeTimeout time.Duration
}

// ConfigFromEnv loads scheduler tuning from the environment, falling back to
// the documented defaults.
func ConfigFromEnv() Config {
	return Config{
		PollInterval:  config.GetEnvDuration("EVAL_POLL_INTERVAL", defaultPollInterval),
		InvokeTimeout: config.GetEnvDuration("EVAL_TIMEOUT", defaultInvokeTimeout),
	}
}
