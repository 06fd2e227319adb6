// Package mpsc scrapes Michigan Public Service Commission meetings from
// michigan.gov/mpsc event pages.
//
// The commission meets on the 1st and 3rd Thursday of each month and
// publishes one event page per meeting at a predictable URL. The pages are
// rendered client-side, so the adapter fetches them through a headless
// browser and parses the embedded JSON-LD event block instead of scraping
// the rendered markup.
package mpsc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"civic-watch/pkg/browser"
	"civic-watch/pkg/config"
	"civic-watch/pkg/scrape"
)

const monthsAhead = 4

// RendererFactory opens a renderer for one adapter invocation. The adapter
// closes it on every exit path, including parse failures.
type RendererFactory func() (browser.Renderer, error)

// Adapter implements scrape.Adapter for MPSC commission meetings.
type Adapter struct {
	key         string
	cfg         config.SourceConfig
	newRenderer RendererFactory
	now         func() time.Time
	tz          *time.Location
	log         *logrus.Entry
}

// New creates the MPSC adapter. A nil factory launches a headless Chromium
// per invocation; tests pass a factory that serves fixture HTML.
func New(key string, cfg config.SourceConfig, factory RendererFactory) *Adapter {
	if factory == nil {
		factory = func() (browser.Renderer, error) {
			return browser.NewRodRenderer(cfg.Timeout)
		}
	}
	tz, _ := time.LoadLocation("America/Detroit")
	return &Adapter{
		key:         key,
		cfg:         cfg,
		newRenderer: factory,
		now:         time.Now,
		tz:          tz,
		log:         logrus.WithField("source", key),
	}
}

func (a *Adapter) Name() string { return a.key }

// Scrape checks each expected meeting date for a published event page and
// parses the embedded structured-data block. A date without a page is
// normal (the agency publishes a few weeks out); a page whose block cannot
// be parsed counts as skipped.
func (a *Adapter) Scrape(ctx context.Context) (scrape.Batch, error) {
	renderer, err := a.newRenderer()
	if err != nil {
		return scrape.Batch{}, fmt.Errorf("open renderer: %w", err)
	}
	defer func() {
		if c, ok := renderer.(interface{ Close() }); ok {
			c.Close()
		}
	}()

	var batch scrape.Batch
	for _, date := range a.expectedDates() {
		if ctx.Err() != nil {
			return batch, ctx.Err()
		}

		url := a.eventURL(date)
		html, err := renderer.Render(ctx, url)
		if err != nil {
			// Unpublished dates 404 into an error page; only log it.
			a.log.Debugf("no event page for %s: %v", date.Format("2006-01-02"), err)
			continue
		}

		cand, err := a.parseEventPage(html, date, url)
		if err != nil {
			a.log.Warnf("skipping %s: %v", date.Format("2006-01-02"), err)
			batch.Skipped++
			continue
		}
		if cand == nil {
			continue
		}
		batch.Candidates = append(batch.Candidates, *cand)
	}

	return batch, nil
}

// expectedDates generates the 1st and 3rd Thursdays for the next few months,
// future dates only.
func (a *Adapter) expectedDates() []time.Time {
	now := a.now().In(a.tz)
	var dates []time.Time

	for offset := 0; offset <= monthsAhead; offset++ {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, a.tz).AddDate(0, offset, 0)

		daysUntilThursday := (int(time.Thursday) - int(first.Weekday()) + 7) % 7
		firstThursday := first.AddDate(0, 0, daysUntilThursday)
		thirdThursday := firstThursday.AddDate(0, 0, 14)

		for _, d := range []time.Time{firstThursday, thirdThursday} {
			if d.After(now) {
				dates = append(dates, d)
			}
		}
	}
	return dates
}

// eventURL builds the predictable event page URL, e.g.
// .../events/2026/01/15/january-15-2026-commission-meeting
func (a *Adapter) eventURL(date time.Time) string {
	slug := fmt.Sprintf("%s-%d-%d-commission-meeting",
		strings.ToLower(date.Format("January")), date.Day(), date.Year())
	return fmt.Sprintf("%s/%d/%02d/%02d/%s",
		strings.TrimRight(a.cfg.URL, "/"), date.Year(), int(date.Month()), date.Day(), slug)
}

// ldEvent is the subset of the schema.org Event JSON-LD block the pages embed.
type ldEvent struct {
	Type        string `json:"@type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
	EventStatus string `json:"eventStatus"`
	Location    struct {
		Type string `json:"@type"`
		Name string `json:"name"`
	} `json:"location"`
}

// parseEventPage locates the JSON-LD event block and maps it to a candidate.
// Returns (nil, nil) when the page is not a meeting page (404 shell, no
// event block), and an error when a block exists but cannot be parsed.
func (a *Adapter) parseEventPage(html string, date time.Time, url string) (*scrape.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page HTML: %w", err)
	}

	title := strings.ToLower(doc.Find("title").First().Text())
	if strings.Contains(title, "not found") || strings.Contains(title, "error") {
		return nil, nil
	}

	event, found, err := findEventBlock(doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	start, err := a.eventStart(event, date)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(event.Name)
	if name == "" {
		name = fmt.Sprintf("%s %d, %d Commission Meeting", date.Format("January"), date.Day(), date.Year())
	}

	cancelled := strings.Contains(strings.ToLower(event.EventStatus), "cancelled")
	if cancelled {
		a.log.Infof("meeting on %s is cancelled", date.Format("2006-01-02"))
	}

	return &scrape.Candidate{
		Kind:        scrape.KindMeeting,
		VendorID:    date.Format("2006-01-02"),
		Title:       name,
		Description: strings.TrimSpace(event.Description),
		Start:       start,
		Cancelled:   cancelled,
		// Commission meetings are held at HQ with a Teams bridge.
		IsVirtual:            true,
		IsHybrid:             true,
		AcceptsPublicComment: true,
		DetailsURL:           url,
	}, nil
}

// findEventBlock scans the ld+json script tags for a schema.org Event.
// Blocks may hold a single object or an array of them.
func findEventBlock(doc *goquery.Document) (ldEvent, bool, error) {
	var (
		event    ldEvent
		found    bool
		parseErr error
	)

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return true
		}

		var single ldEvent
		if err := json.Unmarshal([]byte(raw), &single); err == nil && strings.EqualFold(single.Type, "Event") {
			event, found = single, true
			return false
		}

		var many []ldEvent
		if err := json.Unmarshal([]byte(raw), &many); err == nil {
			for _, e := range many {
				if strings.EqualFold(e.Type, "Event") {
					event, found = e, true
					return false
				}
			}
			return true
		}

		// The block exists but is not valid JSON, so the page changed.
		parseErr = fmt.Errorf("malformed structured-data block")
		return false
	})

	return event, found, parseErr
}

// eventStart parses the block's startDate, falling back to the expected
// 9:30 meeting time when the block omits it.
func (a *Adapter) eventStart(event ldEvent, date time.Time) (time.Time, error) {
	raw := strings.TrimSpace(event.StartDate)
	if raw == "" {
		return time.Date(date.Year(), date.Month(), date.Day(), 9, 30, 0, 0, a.tz), nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, a.tz); err == nil {
			if t.Hour() == 0 && t.Minute() == 0 {
				t = time.Date(t.Year(), t.Month(), t.Day(), 9, 30, 0, 0, a.tz)
			}
			return t.In(a.tz), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable startDate %q", raw)
}
