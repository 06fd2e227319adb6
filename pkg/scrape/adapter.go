package scrape

import "context"

// Adapter fetches one public-record source and parses it into candidates.
//
// Scrape returns an error only for transport-level failures (fetch error,
// HTTP status, timeout); those mark the whole source failed for the run.
// A single malformed item must never surface as an error; adapters log it,
// bump Batch.Skipped, and continue.
type Adapter interface {
	Name() string
	Scrape(ctx context.Context) (Batch, error)
}
