// Package egle scrapes the EGLE public calendar (a Trumba RSS feed embedded
// on michigan.gov/egle). The feed mixes public hearings and workgroup
// meetings with comment-period deadlines, so this is the one dual-destination
// source: each entry is classified and routed to meetings or comment_periods.
package egle

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"civic-watch/pkg/config"
	"civic-watch/pkg/httpclient"
	"civic-watch/pkg/scrape"
)

// Issue tag keywords matched against title+description. The agency-name
// boilerplate is stripped first so "Great Lakes" in the department name does
// not tag every entry.
var issueKeywords = map[string][]string{
	"air quality":    {"air_quality"},
	"air permit":     {"air_quality"},
	"emissions":      {"air_quality"},
	"drinking water": {"drinking_water"},
	"groundwater":    {"drinking_water", "water_quality"},
	"wetland":        {"water_quality"},
	"npdes":          {"water_quality"},
	"discharge":      {"water_quality"},
	"water":          {"water_quality"},
	"waste":          {"waste", "pollution"},
	"hazardous":      {"waste", "pollution"},
	"contamination":  {"pollution"},
	"remediation":    {"pollution"},
	"brownfield":     {"pollution"},
	"pfas":           {"pfas", "drinking_water"},
	"great lakes":    {"great_lakes", "water_quality"},
	"climate":        {"climate"},
	"energy":         {"energy"},
	"renewable":      {"energy", "climate"},
	"pipeline":       {"energy", "infrastructure"},
	"enforcement":    {"enforcement"},
	"permit":         {"permitting"},
	"dte":            {"dte_energy", "energy", "utilities"},
}

var meetingKeywords = []string{"hearing", "meeting", "webinar", "workshop", "conference"}

var (
	categoryDateRe = regexp.MustCompile(`(\d{4}/\d{2}/\d{2})`)
	eventIDRe      = regexp.MustCompile(`event/(\d+)`)
	timeRe         = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(?:[–-]\s*\d{1,2}(?::\d{2})?\s*)?([ap]m)`)
	emailRe        = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	virtualURLRe   = regexp.MustCompile(`(https?://[^\s"<>]*(?:zoom\.us|teams\.microsoft\.com)[^\s"<>]*)`)
	tagStripRe     = regexp.MustCompile(`<[^>]+>`)
	startDateRes   = []*regexp.Regexp{
		regexp.MustCompile(`(?i)from\s+(\w+ \d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(?i)opens?\s+(?:on\s+)?(\w+ \d{1,2},?\s+\d{4})`),
		regexp.MustCompile(`(?i)beginning\s+(\w+ \d{1,2},?\s+\d{4})`),
	}
)

// Adapter implements scrape.Adapter for the EGLE calendar feed.
type Adapter struct {
	key    string
	cfg    config.SourceConfig
	client *httpclient.Client
	parser *gofeed.Parser
	now    func() time.Time
	tz     *time.Location
	log    *logrus.Entry
}

// New creates the EGLE adapter from its source config.
func New(key string, cfg config.SourceConfig) *Adapter {
	tz, _ := time.LoadLocation("America/Detroit")
	return &Adapter{
		key:    key,
		cfg:    cfg,
		client: httpclient.New(httpclient.PlainClient, cfg.Timeout, cfg.RequestsPerSecond),
		parser: gofeed.NewParser(),
		now:    time.Now,
		tz:     tz,
		log:    logrus.WithField("source", key),
	}
}

func (a *Adapter) Name() string { return a.key }

// Scrape fetches the feed and parses every entry. Transport and feed-level
// parse failures are returned as errors; a single bad entry is skipped.
func (a *Adapter) Scrape(ctx context.Context) (scrape.Batch, error) {
	raw, err := a.fetchFeed(ctx)
	if err != nil {
		return scrape.Batch{}, err
	}

	feed, err := a.parser.ParseString(raw)
	if err != nil {
		return scrape.Batch{}, fmt.Errorf("parse calendar feed: %w", err)
	}

	var batch scrape.Batch
	for _, item := range feed.Items {
		cand, err := a.parseItem(item)
		if err != nil {
			a.log.Warnf("skipping entry %q: %v", truncate(item.Title, 60), err)
			batch.Skipped++
			continue
		}
		if cand == nil {
			// Past meeting or expired deadline; not an error, not a skip.
			continue
		}
		batch.Candidates = append(batch.Candidates, *cand)
	}

	return batch, nil
}

func (a *Adapter) fetchFeed(ctx context.Context) (string, error) {
	resp, err := a.client.Get(ctx, a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("fetch calendar feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch calendar feed: unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read calendar feed: %w", err)
	}
	return string(body), nil
}

// parseItem maps one feed entry to a candidate, or nil when the entry is in
// the past. The Trumba category field carries the event date; the guid
// carries the stable event ID.
func (a *Adapter) parseItem(item *gofeed.Item) (*scrape.Candidate, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil, fmt.Errorf("entry has no title")
	}

	eventDate, err := a.parseCategoryDate(item)
	if err != nil {
		return nil, err
	}

	descHTML := item.Description
	descText := htmlToText(descHTML)
	eventID := extractEventID(item.GUID)
	tags := extractIssueTags(title, descText)
	now := a.now()

	if classify(title, descText) == scrape.KindMeeting {
		start := a.meetingStart(eventDate, descText)
		if start.Before(now) {
			return nil, nil
		}
		virtualURL := extractVirtualURL(descHTML)
		if virtualURL == "" {
			virtualURL = trumbaWeblink(item)
		}
		return &scrape.Candidate{
			Kind:                 scrape.KindMeeting,
			VendorID:             vendorID("event", eventID),
			Title:                title,
			Description:          truncate(descText, 500),
			Start:                start,
			IsVirtual:            virtualURL != "",
			VirtualURL:           virtualURL,
			AcceptsPublicComment: true,
			DetailsURL:           item.Link,
			AgendaURL:            trumbaWeblink(item),
			Tags:                 tags,
		}, nil
	}

	// The feed date on a proceeding-style entry is the deadline.
	if eventDate.Before(now.AddDate(0, 0, -1)) {
		return nil, nil
	}
	return &scrape.Candidate{
		Kind:         scrape.KindCommentPeriod,
		VendorID:     vendorID("comment", eventID),
		Title:        title,
		Description:  truncate(descText, 500),
		EndDate:      eventDate,
		StartDate:    extractStartDate(descText),
		// Addresses are usually sentence-final in the notice text.
		CommentEmail: strings.TrimRight(emailRe.FindString(descText), "."),
		DetailsURL:   item.Link,
		Tags:         tags,
	}, nil
}

func (a *Adapter) parseCategoryDate(item *gofeed.Item) (time.Time, error) {
	for _, cat := range item.Categories {
		if m := categoryDateRe.FindString(cat); m != "" {
			d, err := time.ParseInLocation("2006/01/02", m, a.tz)
			if err != nil {
				return time.Time{}, fmt.Errorf("bad category date %q: %w", m, err)
			}
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("entry has no date category")
}

// meetingStart combines the event date with a start time pulled from the
// description, defaulting to 10:00 when none is stated.
func (a *Adapter) meetingStart(eventDate time.Time, desc string) time.Time {
	hour, minute := 10, 0
	if m := timeRe.FindStringSubmatch(desc); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if strings.EqualFold(m[3], "pm") && hour != 12 {
			hour += 12
		} else if strings.EqualFold(m[3], "am") && hour == 12 {
			hour = 0
		}
	}
	return time.Date(eventDate.Year(), eventDate.Month(), eventDate.Day(), hour, minute, 0, 0, a.tz)
}

// classify decides the destination for an entry. Hearings, meetings, and
// webinars route to meetings; deadline/comment notices to comment periods.
func classify(title, desc string) scrape.Kind {
	titleLower := strings.ToLower(title)
	for _, kw := range meetingKeywords {
		if strings.Contains(titleLower, kw) {
			return scrape.KindMeeting
		}
	}
	if strings.Contains(titleLower, "deadline") || strings.Contains(titleLower, "comment") {
		return scrape.KindCommentPeriod
	}
	if strings.Contains(strings.ToLower(desc), "public hearing") {
		return scrape.KindMeeting
	}
	return scrape.KindCommentPeriod
}

func extractIssueTags(title, desc string) []string {
	text := strings.ToLower(title + " " + desc)
	// Strip boilerplate that would false-match tag keywords.
	text = strings.ReplaceAll(text, "michigan department of environment, great lakes, and energy", "")
	text = strings.ReplaceAll(text, "renewable operating permit", "air_permit_rop")

	var tags []string
	for kw, kwTags := range issueKeywords {
		if strings.Contains(text, kw) {
			tags = append(tags, kwTags...)
		}
	}
	return tags
}

func extractEventID(guid string) string {
	if m := eventIDRe.FindStringSubmatch(guid); m != nil {
		return m[1]
	}
	return ""
}

// vendorID keeps the historical source_id shape (egle-event-N / egle-comment-N).
// An entry without a guid event ID gets no vendor ID and falls back to the
// normalizer's stable hash.
func vendorID(kind, eventID string) string {
	if eventID == "" {
		return ""
	}
	return kind + "-" + eventID
}

func extractStartDate(desc string) time.Time {
	for _, re := range startDateRes {
		m := re.FindStringSubmatch(desc)
		if m == nil {
			continue
		}
		raw := strings.ReplaceAll(m[1], ",", "")
		for _, layout := range []string{"January 2 2006", "Jan 2 2006"} {
			if d, err := time.Parse(layout, raw); err == nil {
				return d
			}
		}
	}
	return time.Time{}
}

func extractVirtualURL(descHTML string) string {
	return virtualURLRe.FindString(descHTML)
}

// trumbaWeblink pulls the trumba:weblink extension, which points at the
// registration or agenda page when one exists.
func trumbaWeblink(item *gofeed.Item) string {
	ext, ok := item.Extensions["trumba"]
	if !ok {
		return ""
	}
	links, ok := ext["weblink"]
	if !ok || len(links) == 0 {
		return ""
	}
	return strings.TrimSpace(links[0].Value)
}

func htmlToText(s string) string {
	text := html.UnescapeString(tagStripRe.ReplaceAllString(s, " "))
	return strings.Join(strings.Fields(text), " ")
}

// truncate cuts s to at most n bytes without splitting a rune; notice text
// routinely carries smart quotes and other multi-byte punctuation.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
