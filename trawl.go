// Package trawl fetches batches of URLs concurrently and reports one outcome
// per target: the decoded payload size on success, or a classified error on
// failure. Outcomes stream out in completion order, slow or failing targets
// never hold back their siblings, and a batch always runs to completion.
package trawl

import "context"

// defaultFetcher is the Fetcher used by the package-level functions.
var defaultFetcher = New()

// Fetch fetches every target on the default Fetcher. See Fetcher.Fetch.
func Fetch(ctx context.Context, targets []string) <-chan Outcome {
	return defaultFetcher.Fetch(ctx, targets)
}

// Collect fetches every target on the default Fetcher and returns the
// outcomes in completion order. See Fetcher.Collect.
func Collect(ctx context.Context, targets []string) []Outcome {
	return defaultFetcher.Collect(ctx, targets)
}
