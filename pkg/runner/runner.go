// Package runner orchestrates one scraper run: every adapter executes
// independently, results are aggregated over a channel into an immutable
// summary, and failures in one source never touch another.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"civic-watch/pkg/normalize"
	"civic-watch/pkg/scrape"
	"civic-watch/pkg/store"
)

// SourceResult captures what one adapter's run produced.
type SourceResult struct {
	Source          string
	Items           int // candidates parsed from the fetch
	Inserted        int
	Updated         int
	Skipped         int // unparseable items, logged and counted, never fatal
	PersistFailures int // records the gateway rejected; batch continued
	Duration        time.Duration
	Err             error // transport-level failure; nil otherwise
}

// Warning classifies the soft signals a result can carry. Both mean zero
// records landed, but they need different human follow-up.
const (
	WarnEmptyListing  = "empty listing"        // fetch fine, source had nothing
	WarnNothingParsed = "no parseable items"   // fetch fine, every item skipped: likely site change
)

// Warning returns the zero-result warning for this source, or "" if none.
func (r SourceResult) Warning() string {
	if r.Err != nil || r.Items > 0 {
		return ""
	}
	if r.Skipped > 0 {
		return WarnNothingParsed
	}
	return WarnEmptyListing
}

// Summary is the immutable per-run aggregation returned by Run. It is the
// pipeline's observability contract: an external notification channel
// consumes it, the process exit status derives from it.
type Summary struct {
	StartedAt time.Time
	Duration  time.Duration
	Results   []SourceResult // sorted by source name
}

// Failed reports whether any source suffered a hard transport failure.
// Zero-result warnings are soft signals and do not fail the run.
func (s Summary) Failed() bool {
	for _, r := range s.Results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// TotalRecords sums the records successfully written across all sources.
func (s Summary) TotalRecords() int {
	n := 0
	for _, r := range s.Results {
		n += r.Inserted + r.Updated
	}
	return n
}

// Runner drives all adapters through the normalizer into the gateway.
type Runner struct {
	adapters   []scrape.Adapter
	normalizer *normalize.Normalizer
	gateway    store.Gateway // nil means dry run: parse and normalize only
	timeout    time.Duration
	log        *logrus.Entry
}

// New creates a runner. timeout bounds each adapter's whole run.
func New(adapters []scrape.Adapter, n *normalize.Normalizer, gw store.Gateway, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Runner{
		adapters:   adapters,
		normalizer: n,
		gateway:    gw,
		timeout:    timeout,
		log:        logrus.WithField("component", "runner"),
	}
}

// Run executes the selected adapters in parallel and aggregates their
// results. only == "" runs everything; otherwise only the named source runs.
// Each run starts from a clean slate: no cursor survives between runs, and
// the gateway's idempotent upsert absorbs the re-fetched window.
func (r *Runner) Run(ctx context.Context, only string) (Summary, error) {
	adapters, err := r.selectAdapters(only)
	if err != nil {
		return Summary{}, err
	}

	if v, ok := r.gateway.(interface{ VerifyConstraints(context.Context) error }); ok {
		if err := v.VerifyConstraints(ctx); err != nil {
			if errors.Is(err, store.ErrMissingConstraint) {
				return Summary{}, fmt.Errorf("store precondition failed: %w", err)
			}
			// Couldn't check (fresh database, limited role): warn and proceed.
			r.log.Warnf("could not verify uniqueness constraints: %v", err)
		}
	}

	start := time.Now()
	results := make(chan SourceResult, len(adapters))

	for _, adapter := range adapters {
		go func(a scrape.Adapter) {
			results <- r.runAdapter(ctx, a)
		}(adapter)
	}

	summary := Summary{StartedAt: start}
	for range adapters {
		summary.Results = append(summary.Results, <-results)
	}
	sort.Slice(summary.Results, func(i, j int) bool {
		return summary.Results[i].Source < summary.Results[j].Source
	})
	summary.Duration = time.Since(start)

	r.logSummary(summary)
	return summary, nil
}

func (r *Runner) selectAdapters(only string) ([]scrape.Adapter, error) {
	if only == "" {
		return r.adapters, nil
	}
	for _, a := range r.adapters {
		if a.Name() == only {
			return []scrape.Adapter{a}, nil
		}
	}
	names := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		names = append(names, a.Name())
	}
	return nil, fmt.Errorf("unknown source %q (available: %v)", only, names)
}

// runAdapter executes one adapter with its own timeout and writes its
// candidates through the gateway. A record the gateway rejects is counted
// and the batch continues.
func (r *Runner) runAdapter(ctx context.Context, a scrape.Adapter) SourceResult {
	result := SourceResult{Source: a.Name()}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	adapterCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	log := r.log.WithField("source", a.Name())
	log.Info("scraping")

	batch, err := a.Scrape(adapterCtx)
	if err != nil {
		result.Err = fmt.Errorf("%s: %w", a.Name(), err)
		log.Errorf("scrape failed: %v", err)
		return result
	}

	result.Skipped = batch.Skipped
	for _, cand := range batch.Candidates {
		rec, err := r.normalizer.Normalize(cand, a.Name())
		if err != nil {
			log.Warnf("skipping candidate: %v", err)
			result.Skipped++
			continue
		}
		result.Items++

		if r.gateway == nil {
			continue
		}

		outcome, err := r.upsert(adapterCtx, rec)
		if err != nil {
			log.Errorf("persist %s record: %v", rec.Table, err)
			result.PersistFailures++
			continue
		}
		if outcome == store.Inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if w := result.Warning(); w != "" {
		log.Warnf("zero records: %s", w)
	}
	return result
}

func (r *Runner) upsert(ctx context.Context, rec normalize.Record) (store.Outcome, error) {
	switch rec.Table {
	case normalize.TableMeetings:
		return r.gateway.UpsertMeeting(ctx, rec.Meeting)
	case normalize.TableCommentPeriods:
		return r.gateway.UpsertCommentPeriod(ctx, rec.CommentPeriod)
	default:
		return "", fmt.Errorf("unknown destination table %q", rec.Table)
	}
}

func (r *Runner) logSummary(s Summary) {
	for _, res := range s.Results {
		fields := logrus.Fields{
			"source":   res.Source,
			"items":    res.Items,
			"inserted": res.Inserted,
			"updated":  res.Updated,
			"skipped":  res.Skipped,
			"duration": res.Duration.Round(time.Millisecond).String(),
		}
		if res.PersistFailures > 0 {
			fields["persist_failures"] = res.PersistFailures
		}
		entry := r.log.WithFields(fields)
		switch {
		case res.Err != nil:
			entry.Errorf("source failed: %v", res.Err)
		case res.Warning() != "":
			entry.Warnf("source returned nothing (%s)", res.Warning())
		default:
			entry.Info("source complete")
		}
	}
	r.log.WithFields(logrus.Fields{
		"records":  s.TotalRecords(),
		"duration": s.Duration.Round(time.Millisecond).String(),
	}).Info("run complete")
}
