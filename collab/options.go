package collab

import "time"

// Options configures the updater's persist retry behavior.
type Options struct {
	// MaxRetries is the number of additional persist attempts after a
	// revision conflict before the cycle fails with a ConvergenceError.
	MaxRetries int

	// RetryDelay is the initial delay before re-running the compare and
	// persist steps after a conflict. The delay doubles per attempt.
	RetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff.
	MaxRetryDelay time.Duration

	// RetryJitter is a random factor between 0.0 and 1.0 applied to each
	// delay to avoid retry stampedes.
	RetryJitter float64
}

// Option configures an Updater.
type Option func(*Options)

// DefaultOptions returns the default retry configuration.
func DefaultOptions() *Options {
	return &Options{
		MaxRetries:    5,
		RetryDelay:    50 * time.Millisecond,
		MaxRetryDelay: 2 * time.Second,
		RetryJitter:   0.1,
	}
}

// WithMaxRetries sets the persist retry bound.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithRetryDelay sets the initial persist retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.RetryDelay = d
	}
}

// WithMaxRetryDelay caps the persist retry backoff.
func WithMaxRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		o.MaxRetryDelay = d
	}
}

// WithRetryJitter sets the retry jitter factor.
func WithRetryJitter(f float64) Option {
	return func(o *Options) {
		o.RetryJitter = f
	}
}
