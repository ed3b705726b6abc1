package scheduler

import "time"

// Polling interval bounds and retry budgets for the activity state
// machine.
const (
	MinInterval      = 4 * time.Second
	MaxInterval      = 60 * time.Second
	ReadingInterval  = 300 * time.Second
	MaximumDuration  = 27900 * time.Second // 7h45m
	Backoff          = 1.8
	ErrorBackoff     = 3.0
	decodingMaxRetry = 5
	genericMaxRetry  = 3
)

// Config holds the tunables for resource control across the tick loop
// and widget ticker.
type Config struct {
	// MaxConcurrency bounds the number of ActivityProcessor goroutines
	// running at once across all ticks.
	MaxConcurrency int

	// CircuitBreakerThreshold is the number of consecutive DueBefore
	// failures that opens the tick-loop circuit breaker.
	CircuitBreakerThreshold int

	// WidgetTickInterval is the cadence of the widget fan-out ticker.
	// Floored at 5 minutes.
	WidgetTickInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:          64,
		CircuitBreakerThreshold: 5,
		WidgetTickInterval:      5 * time.Minute,
	}
}

// Decision is a structured log entry for one processor outcome.
type Decision struct {
	Component string `json:"component"`
	ID        string `json:"id"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	DelayMS   int64  `json:"delay_ms,omitempty"`
}
