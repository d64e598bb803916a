package trawl

import (
	"log/slog"
	"time"
)

const (
	// DefaultTimeout bounds each unit when WithTimeout is not given
	DefaultTimeout = 60 * time.Second

	// DefaultMaxConcurrency caps in-flight units when WithMaxConcurrency is not given
	DefaultMaxConcurrency = 5
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithTimeout sets the time budget applied to each target individually.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = timeout
	}
}

// WithMaxConcurrency caps how many targets may be in flight at once.
// A value of 0 removes the cap: every target gets its own goroutine right
// away. A value of 1 fetches the batch sequentially.
func WithMaxConcurrency(maxConcurrency int) Option {
	return func(f *Fetcher) {
		f.maxConcurrency = maxConcurrency
	}
}

// WithClient replaces the HTTP client used to execute requests. The client
// must be safe for concurrent use.
func WithClient(client Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(userAgent string) Option {
	return func(f *Fetcher) {
		f.userAgent = userAgent
	}
}

// WithMaxBodyBytes caps how many raw body bytes are read per response.
// Bodies larger than the cap are truncated before decoding, which fails the
// unit when the truncated body no longer decodes. 0 means no cap.
func WithMaxBodyBytes(maxBodyBytes int64) Option {
	return func(f *Fetcher) {
		f.maxBodyBytes = maxBodyBytes
	}
}

// WithLogger sets the logger used to trace batch and unit progress.
// Logs are discarded when not set.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithoutStatusCheck treats any HTTP status as a success. By default a
// response with a status outside the 2xx range fails its unit with a
// StatusError.
func WithoutStatusCheck() Option {
	return func(f *Fetcher) {
		f.skipStatusCheck = true
	}
}

// WithoutPanicRecovery disables panic interception inside unit goroutines.
// When this option is enabled, panics inside a custom Client will propagate
// just like regular goroutines.
func WithoutPanicRecovery() Option {
	return func(f *Fetcher) {
		f.panicRecovery = false
	}
}
