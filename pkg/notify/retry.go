package notify

import (
	"errors"
	"math"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryPolicy implements exponential backoff retry logic
type RetryPolicy struct {
	config RetryConfig
}

// NewRetryPolicy creates a new retry policy, filling unset fields with defaults
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	defaults := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.BackoffMultiplier <= 1.0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}

	return &RetryPolicy{config: config}
}

// MaxAttempts returns the total number of attempts, the first one included
func (p *RetryPolicy) MaxAttempts() int {
	return p.config.MaxAttempts
}

// ShouldRetry determines if another attempt should follow attempt number attempts
func (p *RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil {
		return false
	}
	var permanent *permanentError
	if errors.As(err, &permanent) {
		return false
	}
	return attempts < p.config.MaxAttempts
}

// NextRetryDelay calculates the delay before the next retry
func (p *RetryPolicy) NextRetryDelay(attempts int) time.Duration {
	if attempts <= 0 {
		return p.config.InitialDelay
	}

	// delay = initialDelay * multiplier^(attempts-1)
	delay := float64(p.config.InitialDelay) * math.Pow(p.config.BackoffMultiplier, float64(attempts-1))
	if delay > float64(p.config.MaxDelay) {
		return p.config.MaxDelay
	}

	return time.Duration(delay)
}

// permanentError marks a failure retrying cannot fix
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
