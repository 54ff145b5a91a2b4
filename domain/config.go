package domain

import (
	"log/slog"
	"time"
)

// Observer is notified once per guarded write with the number of visibility
// checks it took and the outcome.
type Observer interface {
	ObserveConfirmation(op string, attempts int, err error)
}

// Config holds configuration for the Store.
type Config struct {
	// Region is the backend locality the store was built for (e.g., "us-west-1").
	// It is informational; the backend client carries the actual endpoint.
	// Default: "" (backend default region)
	Region string

	// PollInterval is the fixed wait between visibility checks after a write.
	// Default: 250ms
	PollInterval time.Duration

	// PollAttempts is the number of visibility checks before an item or
	// property write fails with ErrConsistencyTimeout.
	// Default: 40
	// Max: 1000
	PollAttempts int

	// DomainPollAttempts is the same bound for Create and Destroy. DynamoDB
	// tables usually take several seconds to become ACTIVE or to finish
	// DELETING, so this budget is larger (60s at the default interval).
	// Default: 240
	// Max: 1000
	DomainPollAttempts int

	// Logger receives debug logs for writes and warnings for load failures.
	// Default: slog.Default()
	Logger *slog.Logger

	// Observer optionally receives write confirmation outcomes (e.g., metrics).
	Observer Observer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 250 * time.Millisecond,
		PollAttempts:       40,
		DomainPollAttempts: 240,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.PollAttempts < 1 {
		c.PollAttempts = 40
	}
	if c.PollAttempts > 1000 {
		c.PollAttempts = 1000
	}
	if c.DomainPollAttempts < 1 {
		c.DomainPollAttempts = 240
	}
	if c.DomainPollAttempts > 1000 {
		c.DomainPollAttempts = 1000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
