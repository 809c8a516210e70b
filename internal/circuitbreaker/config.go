package circuitbreaker

import (
	"fmt"
	"time"
)

// Config controls breaker behavior.
type Config struct {
	// WindowSize is the number of most recent call outcomes considered.
	WindowSize int

	// FailureRateThreshold opens the circuit when the failure rate over
	// a full window reaches this fraction.
	FailureRateThreshold float64

	// WaitDuration is how long an open circuit stays open before
	// admitting trial calls.
	WaitDuration time.Duration

	// HalfOpenMaxCalls bounds concurrent trial calls in half-open state.
	HalfOpenMaxCalls int
}

// DefaultConfig returns the stock breaker configuration.
func DefaultConfig() Config {
	return Config{
		WindowSize:           10,
		FailureRateThreshold: 0.5,
		WaitDuration:         10 * time.Second,
		HalfOpenMaxCalls:     3,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive")
	}
	if c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 1 {
		return fmt.Errorf("failure rate threshold must be in (0, 1]")
	}
	if c.WaitDuration <= 0 {
		return fmt.Errorf("wait duration must be positive")
	}
	if c.HalfOpenMaxCalls <= 0 {
		return fmt.Errorf("half-open max calls must be positive")
	}
	return nil
}
