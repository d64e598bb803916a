package trawl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReportsDecodedByteCount(t *testing.T) {

	mux := http.NewServeMux()
	mux.HandleFunc("/small", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 4096))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := New()

	outcomes := fetcher.Collect(context.Background(), []string{
		server.URL + "/small",
		server.URL + "/large",
	})

	require.Len(t, outcomes, 2)

	bytesByTarget := make(map[string]int64)
	for _, outcome := range outcomes {
		assert.False(t, outcome.Failed())
		assert.Equal(t, http.StatusOK, outcome.Status)
		assert.NotEmpty(t, outcome.ExecutionID)
		bytesByTarget[outcome.Target] = outcome.Bytes
	}

	assert.Equal(t, int64(11), bytesByTarget[server.URL+"/small"])
	assert.Equal(t, int64(4096), bytesByTarget[server.URL+"/large"])
}

func TestFetchEmitsOneOutcomePerTarget(t *testing.T) {

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	// A freshly closed server gives a port that refuses connections
	refused := httptest.NewServer(http.NotFoundHandler())
	refusedURL := refused.URL
	refused.Close()

	// Duplicate targets are distinct units and each gets its own outcome
	targets := []string{
		server.URL + "/ok",
		server.URL + "/missing",
		refusedURL,
		server.URL + "/ok",
		server.URL + "/ok",
	}

	outcomes := New().Collect(context.Background(), targets)

	require.Len(t, outcomes, len(targets))

	countByTarget := make(map[string]int)
	for _, outcome := range outcomes {
		countByTarget[outcome.Target]++
	}

	assert.Equal(t, 3, countByTarget[server.URL+"/ok"])
	assert.Equal(t, 1, countByTarget[server.URL+"/missing"])
	assert.Equal(t, 1, countByTarget[refusedURL])
}

func TestFetchEmitsOutcomesInCompletionOrder(t *testing.T) {

	mux := http.NewServeMux()
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fast"))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte("slow"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := New(WithMaxConcurrency(0))

	// The slow target is submitted first but must finish last
	outcomes := fetcher.Collect(context.Background(), []string{
		server.URL + "/slow",
		server.URL + "/fast",
		server.URL + "/fast",
	})

	require.Len(t, outcomes, 3)
	assert.Equal(t, server.URL+"/fast", outcomes[0].Target)
	assert.Equal(t, server.URL+"/fast", outcomes[1].Target)
	assert.Equal(t, server.URL+"/slow", outcomes[2].Target)
}

func TestFetchTimeoutFailsOnlySlowTarget(t *testing.T) {

	mux := http.NewServeMux()
	mux.HandleFunc("/fast", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fast"))
	})
	mux.HandleFunc("/hang", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := New(WithTimeout(100 * time.Millisecond))

	outcomes := fetcher.Collect(context.Background(), []string{
		server.URL + "/hang",
		server.URL + "/fast",
	})

	require.Len(t, outcomes, 2)

	// The fast target completes first and is unaffected by its hanging sibling
	assert.Equal(t, server.URL+"/fast", outcomes[0].Target)
	assert.False(t, outcomes[0].Failed())
	assert.Equal(t, int64(4), outcomes[0].Bytes)

	assert.Equal(t, server.URL+"/hang", outcomes[1].Target)
	assert.True(t, outcomes[1].Failed())
	assert.Equal(t, FailureTimeout, outcomes[1].Kind())
	assert.True(t, errors.Is(outcomes[1].Err, context.DeadlineExceeded))
}

func TestFetchBoundedConcurrency(t *testing.T) {

	var inFlight, highWater atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/work", func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			peak := highWater.Load()
			if current <= peak || highWater.CompareAndSwap(peak, current) {
				break
			}
		}

		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("done"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := New(WithMaxConcurrency(2))

	targets := make([]string, 6)
	for i := range targets {
		targets[i] = server.URL + "/work"
	}

	outcomes := fetcher.Collect(context.Background(), targets)

	require.Len(t, outcomes, 6)
	for _, outcome := range outcomes {
		assert.False(t, outcome.Failed())
	}

	assert.Equal(t, int64(2), highWater.Load())
	assert.Equal(t, int64(0), fetcher.InFlight())
}

func TestFetchUnboundedRunsAllTargetsAtOnce(t *testing.T) {

	const targetCount = 20

	var arrived atomic.Int32
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/barrier", func(w http.ResponseWriter, r *http.Request) {
		if arrived.Add(1) == targetCount {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := New(WithMaxConcurrency(0))

	targets := make([]string, targetCount)
	for i := range targets {
		targets[i] = server.URL + "/barrier"
	}

	started := time.Now()
	outcomes := fetcher.Collect(context.Background(), targets)
	elapsed := time.Since(started)

	// The barrier only opens when every unit is in flight simultaneously
	require.Len(t, outcomes, targetCount)
	for _, outcome := range outcomes {
		assert.False(t, outcome.Failed())
	}
	assert.Less(t, elapsed, time.Second)
}

func TestFetchSequentialWhenMaxConcurrencyIsOne(t *testing.T) {

	var inFlight, highWater atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		current := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			peak := highWater.Load()
			if current <= peak || highWater.CompareAndSwap(peak, current) {
				break
			}
		}

		w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := New(WithMaxConcurrency(1))

	targets := []string{
		server.URL + "/one",
		server.URL + "/two",
		server.URL + "/three",
	}

	outcomes := fetcher.Collect(context.Background(), targets)

	require.Len(t, outcomes, 3)

	// One unit at a time also means submission order is preserved
	assert.Equal(t, int64(1), highWater.Load())
	for i, outcome := range outcomes {
		assert.Equal(t, targets[i], outcome.Target)
		assert.False(t, outcome.Failed())
	}
}

func TestFetchWithCanceledContext(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	targets := []string{
		server.URL,
		server.URL,
		server.URL,
	}

	outcomes := New().Collect(ctx, targets)

	// Cancellation never drops targets, it fails them
	require.Len(t, outcomes, len(targets))
	for _, outcome := range outcomes {
		assert.True(t, outcome.Failed())
		assert.True(t, errors.Is(outcome.Err, context.Canceled))
		assert.Equal(t, FailureNetwork, outcome.Kind())
	}
}

func TestFetchCancellationMidBatch(t *testing.T) {

	mux := http.NewServeMux()
	mux.HandleFunc("/hang", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(5 * time.Second):
		case <-r.Context().Done():
		}
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())

	fetcher := New(WithMaxConcurrency(2))

	targets := make([]string, 5)
	for i := range targets {
		targets[i] = server.URL + "/hang"
	}

	outcomeChan := fetcher.Fetch(ctx, targets)

	time.Sleep(100 * time.Millisecond)
	cancel()

	started := time.Now()
	outcomes := make([]Outcome, 0, len(targets))
	for outcome := range outcomeChan {
		outcomes = append(outcomes, outcome)
	}

	require.Len(t, outcomes, len(targets))
	for _, outcome := range outcomes {
		assert.True(t, outcome.Failed())
		assert.True(t, errors.Is(outcome.Err, context.Canceled))
	}
	assert.Less(t, time.Since(started), time.Second)
}

type panickyClient struct {
	client Client
	path   string
}

func (c panickyClient) Do(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, c.path) {
		panic("dummy panic")
	}
	return c.client.Do(req)
}

func TestFetchRecoversPanicsFromClient(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	fetcher := New(WithClient(panickyClient{client: &http.Client{}, path: "/boom"}))

	outcomes := fetcher.Collect(context.Background(), []string{
		server.URL + "/boom",
		server.URL + "/ok",
	})

	require.Len(t, outcomes, 2)

	byTarget := make(map[string]Outcome)
	for _, outcome := range outcomes {
		byTarget[outcome.Target] = outcome
	}

	boom := byTarget[server.URL+"/boom"]
	assert.True(t, errors.Is(boom.Err, ErrPanic))
	assert.True(t, strings.HasPrefix(boom.Err.Error(), "fetch panicked: dummy panic"))

	// The panicking sibling does not take the healthy unit down with it
	assert.False(t, byTarget[server.URL+"/ok"].Failed())
}

func TestFetchDeliveryDoesNotBlockUnits(t *testing.T) {

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	fetcher := New()

	targets := []string{server.URL, server.URL, server.URL}
	outcomeChan := fetcher.Fetch(context.Background(), targets)

	// Let every unit finish before reading a single outcome
	for fetcher.Completed() < uint64(len(targets)) {
		time.Sleep(1 * time.Millisecond)
	}

	received := 0
	for range outcomeChan {
		received++
	}
	assert.Equal(t, len(targets), received)
}

func TestFetchEmptyBatch(t *testing.T) {

	fetcher := New()

	outcomes := fetcher.Collect(context.Background(), nil)
	assert.Empty(t, outcomes)

	// The stream closes without emitting anything
	_, open := <-fetcher.Fetch(context.Background(), []string{})
	assert.False(t, open)
}

func TestFetcherMetrics(t *testing.T) {

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := New()

	assert.Equal(t, uint64(0), fetcher.Submitted())
	assert.Equal(t, uint64(0), fetcher.Completed())

	targets := []string{
		server.URL + "/ok",
		server.URL + "/ok",
		server.URL + "/missing",
	}

	fetcher.Collect(context.Background(), targets)

	assert.Equal(t, uint64(3), fetcher.Submitted())
	assert.Equal(t, uint64(2), fetcher.Succeeded())
	assert.Equal(t, uint64(1), fetcher.Failed())
	assert.Equal(t, uint64(3), fetcher.Completed())

	// Counters accumulate across batches
	fetcher.Collect(context.Background(), targets[:1])

	assert.Equal(t, uint64(4), fetcher.Submitted())
	assert.Equal(t, uint64(3), fetcher.Succeeded())
	assert.Equal(t, uint64(4), fetcher.Completed())
}

func TestFetchRepeatedBatchKeepsClassification(t *testing.T) {

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stable"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	targets := []string{server.URL + "/ok", server.URL + "/missing"}
	fetcher := New()

	first := kindsByTarget(fetcher.Collect(context.Background(), targets))
	second := kindsByTarget(fetcher.Collect(context.Background(), targets))

	// The same batch against the same endpoints classifies the same way
	assert.Equal(t, first, second)
	assert.Equal(t, FailureNone, first[server.URL+"/ok"])
	assert.Equal(t, FailureProtocol, first[server.URL+"/missing"])
}

func kindsByTarget(outcomes []Outcome) map[string]FailureKind {
	kinds := make(map[string]FailureKind, len(outcomes))
	for _, outcome := range outcomes {
		kinds[outcome.Target] = outcome.Kind()
	}
	return kinds
}
