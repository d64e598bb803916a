package trawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"trawl/internal/semaphore"
)

// ErrPanic wraps panics recovered from a unit, typically raised by a custom
// Client implementation.
var ErrPanic = errors.New("fetch panicked")

// Fetcher fetches batches of targets concurrently. Units run independently:
// a failing, slow or timed out target never affects its siblings, and a batch
// as a whole cannot fail. The zero value is not usable; create instances with
// New. A Fetcher is safe for concurrent use and its concurrency cap is shared
// across overlapping batches.
type Fetcher struct {
	timeout         time.Duration
	maxConcurrency  int
	client          Client
	userAgent       string
	maxBodyBytes    int64
	logger          *slog.Logger
	skipStatusCheck bool
	panicRecovery   bool

	sem           *semaphore.Semaphore
	inFlightCount atomic.Int64

	submittedCount atomic.Uint64
	succeededCount atomic.Uint64
	failedCount    atomic.Uint64
}

// New creates a Fetcher with the given options applied over the defaults:
// 60s timeout, at most 5 units in flight, plain http.Client, discarded logs.
func New(options ...Option) *Fetcher {
	fetcher := &Fetcher{
		timeout:        DefaultTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		client:         &http.Client{},
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		panicRecovery:  true,
	}

	for _, option := range options {
		option(fetcher)
	}

	if fetcher.maxConcurrency < 0 {
		panic(errors.New("maxConcurrency must be greater or equal to 0"))
	}
	if fetcher.timeout <= 0 {
		panic(errors.New("timeout must be greater than 0"))
	}
	if fetcher.client == nil {
		panic(errors.New("client must not be nil"))
	}
	if fetcher.maxBodyBytes < 0 {
		panic(errors.New("maxBodyBytes must be greater or equal to 0"))
	}

	if fetcher.maxConcurrency > 0 {
		fetcher.sem = semaphore.New(fetcher.maxConcurrency)
	}

	return fetcher
}

// Fetch fetches every target concurrently and streams one Outcome per target
// on the returned channel, in completion order. The channel is buffered to
// len(targets) and closed once every target has reported: units never block
// on delivery, so the channel may be drained at any pace or abandoned.
//
// When the concurrency cap is reached, remaining targets wait for a free
// slot. Canceling ctx does not abort the batch contract: units that have not
// finished still report, with the context error as their failure.
func (f *Fetcher) Fetch(ctx context.Context, targets []string) <-chan Outcome {
	if ctx == nil {
		ctx = context.Background()
	}

	batchID := ulid.Make().String()
	started := time.Now()
	outcomes := make(chan Outcome, len(targets))

	f.submittedCount.Add(uint64(len(targets)))

	f.logger.InfoContext(ctx, "Batch started",
		"batch_id", batchID,
		"targets", len(targets),
		"max_concurrency", f.maxConcurrency,
		"timeout", f.timeout)

	waitGroup := sync.WaitGroup{}
	waitGroup.Add(len(targets))

	// Dispatch units, acquiring a slot per unit when bounded
	go func() {
		for _, target := range targets {
			executionID := ulid.Make().String()

			if f.sem != nil {
				if err := f.sem.Acquire(ctx); err != nil {
					// Canceled while waiting for a slot. The target still
					// gets its outcome.
					outcomes <- f.record(Outcome{
						Target:      target,
						ExecutionID: executionID,
						Err:         err,
					})
					waitGroup.Done()
					continue
				}
			}

			go func(target, executionID string) {
				defer waitGroup.Done()
				if f.sem != nil {
					defer f.sem.Release()
				}

				f.inFlightCount.Add(1)
				defer f.inFlightCount.Add(-1)

				outcomes <- f.record(f.fetchUnit(ctx, target, executionID))
			}(target, executionID)
		}
	}()

	// Close the stream once every target has reported
	go func() {
		waitGroup.Wait()

		f.logger.InfoContext(ctx, "Batch finished",
			"batch_id", batchID,
			"targets", len(targets),
			"elapsed", time.Since(started))

		close(outcomes)
	}()

	return outcomes
}

// Collect fetches every target and returns the outcomes in completion order.
func (f *Fetcher) Collect(ctx context.Context, targets []string) []Outcome {
	outcomes := make([]Outcome, 0, len(targets))
	for outcome := range f.Fetch(ctx, targets) {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// fetchUnit runs a single target under its own deadline and always returns
// an Outcome.
func (f *Fetcher) fetchUnit(ctx context.Context, target, executionID string) Outcome {
	unitCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.logger.DebugContext(ctx, "Unit started",
		"execution_id", executionID,
		"target", target)

	started := time.Now()
	status, size, err := f.invoke(unitCtx, target)

	outcome := Outcome{
		Target:      target,
		ExecutionID: executionID,
		Status:      status,
		Bytes:       size,
		Duration:    time.Since(started),
		Err:         err,
	}

	if err != nil {
		f.logger.DebugContext(ctx, "Unit failed",
			"execution_id", executionID,
			"target", target,
			"kind", outcome.Kind().String(),
			"elapsed", outcome.Duration,
			"error", err)
	} else {
		f.logger.DebugContext(ctx, "Unit finished",
			"execution_id", executionID,
			"target", target,
			"status", status,
			"bytes", size,
			"elapsed", outcome.Duration)
	}

	return outcome
}

// invoke executes the request, intercepting panics unless recovery was
// disabled.
func (f *Fetcher) invoke(ctx context.Context, target string) (status int, size int64, err error) {
	if f.panicRecovery {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("%w: %v", ErrPanic, p)
			}
		}()
	}

	return f.do(ctx, target)
}

func (f *Fetcher) record(outcome Outcome) Outcome {
	if outcome.Err != nil {
		f.failedCount.Add(1)
	} else {
		f.succeededCount.Add(1)
	}
	return outcome
}

// MaxConcurrency returns the configured concurrency cap, 0 meaning no cap.
func (f *Fetcher) MaxConcurrency() int {
	return f.maxConcurrency
}

// Timeout returns the per-target timeout.
func (f *Fetcher) Timeout() time.Duration {
	return f.timeout
}

// InFlight returns the number of units currently running.
func (f *Fetcher) InFlight() int64 {
	return f.inFlightCount.Load()
}

// Submitted returns the total number of targets submitted since the Fetcher
// was created.
func (f *Fetcher) Submitted() uint64 {
	return f.submittedCount.Load()
}

// Succeeded returns the number of units that completed successfully.
func (f *Fetcher) Succeeded() uint64 {
	return f.succeededCount.Load()
}

// Failed returns the number of units that completed with a failure.
func (f *Fetcher) Failed() uint64 {
	return f.failedCount.Load()
}

// Completed returns the number of units that completed, successfully or not.
func (f *Fetcher) Completed() uint64 {
	return f.succeededCount.Load() + f.failedCount.Load()
}
