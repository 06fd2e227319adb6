// Package legistar scrapes Legistar-hosted meeting calendars. GLWA and
// Detroit City Council publish through the same vendor, so both sources are
// instances of this one adapter with different configs.
//
// The calendar is a Telerik RadGrid table (tr.rgRow / tr.rgAltRow) whose
// cells hold, in order: name, date, a calendar icon, time, location, a
// "Meeting details" link, ePacket, agenda, and document links. Fields the
// grid does not carry (virtual-meeting info, public-comment instructions)
// are resolved from each meeting's detail page when one is published.
package legistar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"github.com/sirupsen/logrus"

	"civic-watch/pkg/config"
	"civic-watch/pkg/httpclient"
	"civic-watch/pkg/scrape"
)

// Grid cell positions in the RadGrid row.
const (
	cellName    = 0
	cellDate    = 1
	cellTime    = 3
	cellLoc     = 4
	cellDetails = 5
	cellAgenda  = 7
	minCells    = 6
)

var (
	timeRe      = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*([AP]M)`)
	meetingIDRe = regexp.MustCompile(`(?i)MeetingDetail\.aspx\?ID=(\d+)`)
	virtualRe   = regexp.MustCompile(`(https?://[^\s"<>]*(?:zoom\.us|teams\.microsoft\.com)[^\s"<>]+)`)
	phoneRe     = regexp.MustCompile(`(?i)(?:Toll-Free|US Toll-Free|\+1)[:\s]*(\d{3}[-.\s]?\d{3}[-.\s]?\d{4})`)
	confIDRe    = regexp.MustCompile(`(?i)(?:Meeting|Conference)\s*ID[:\s]*(\d[\d\s#]{5,})`)
)

// DetroitTitleTags maps committee keywords to issue tags for Detroit rows.
// GLWA rows carry no per-item tags; the static water tags cover them.
var DetroitTitleTags = map[string][]string{
	"budget":              {"budget"},
	"public health":       {"public_health"},
	"planning":            {"development", "housing"},
	"public safety":       {"public_safety"},
	"neighborhood":        {"community"},
	"internal operations": {"local_government"},
}

// Adapter implements scrape.Adapter for one Legistar calendar.
type Adapter struct {
	key       string
	cfg       config.SourceConfig
	client    *httpclient.Client
	baseHost  string
	titleTags map[string][]string
	now       func() time.Time
	tz        *time.Location
	log       *logrus.Entry
}

// New creates a Legistar adapter. titleTags may be nil.
func New(key string, cfg config.SourceConfig, titleTags map[string][]string) *Adapter {
	tz, _ := time.LoadLocation("America/Detroit")
	base := cfg.URL
	if i := strings.Index(base, "/Calendar"); i > 0 {
		base = base[:i]
	}
	return &Adapter{
		key:       key,
		cfg:       cfg,
		client:    httpclient.New(httpclient.BrowserClient, cfg.Timeout, cfg.RequestsPerSecond),
		baseHost:  strings.TrimRight(base, "/"),
		titleTags: titleTags,
		now:       time.Now,
		tz:        tz,
		log:       logrus.WithField("source", key),
	}
}

func (a *Adapter) Name() string { return a.key }

// Scrape fetches the calendar grid, parses each row, and resolves published
// detail pages for the fields the listing omits. A malformed row is skipped;
// a detail-page failure degrades that row to listing-only fields.
func (a *Adapter) Scrape(ctx context.Context) (scrape.Batch, error) {
	html, err := a.fetchPage(ctx, a.cfg.URL)
	if err != nil {
		return scrape.Batch{}, fmt.Errorf("fetch calendar grid: %w", err)
	}

	batch, err := a.parseGrid(html)
	if err != nil {
		return scrape.Batch{}, err
	}

	for i := range batch.Candidates {
		a.resolveDetail(ctx, &batch.Candidates[i])
	}

	return batch, nil
}

func (a *Adapter) fetchPage(ctx context.Context, url string) (string, error) {
	resp, err := a.client.Get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	return string(body), nil
}

// parseGrid turns the RadGrid rows into candidates, future meetings only.
func (a *Adapter) parseGrid(html string) (scrape.Batch, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return scrape.Batch{}, fmt.Errorf("parse calendar HTML: %w", err)
	}

	var batch scrape.Batch
	now := a.now().In(a.tz)

	doc.Find("tr.rgRow, tr.rgAltRow").Each(func(_ int, row *goquery.Selection) {
		cand, err := a.parseRow(row)
		if err != nil {
			a.log.Warnf("skipping row: %v", err)
			batch.Skipped++
			return
		}
		if cand == nil || cand.Start.Before(now) {
			return
		}
		batch.Candidates = append(batch.Candidates, *cand)
	})

	return batch, nil
}

// parseRow maps one grid row to a candidate. Returns (nil, nil) for rows
// that are not meetings (empty name cells in grouping rows).
func (a *Adapter) parseRow(row *goquery.Selection) (*scrape.Candidate, error) {
	cells := row.Find("td")
	if cells.Length() < minCells {
		return nil, nil
	}

	title := strings.TrimSpace(cells.Eq(cellName).Text())
	if title == "" {
		return nil, nil
	}

	dateText := strings.TrimSpace(cells.Eq(cellDate).Text())
	date, err := dateparse.ParseIn(dateText, a.tz)
	if err != nil {
		return nil, fmt.Errorf("row %q: bad date %q: %w", title, dateText, err)
	}

	hour, minute := 10, 0
	if m := timeRe.FindStringSubmatch(cells.Eq(cellTime).Text()); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if strings.EqualFold(m[3], "PM") && hour != 12 {
			hour += 12
		} else if strings.EqualFold(m[3], "AM") && hour == 12 {
			hour = 0
		}
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, a.tz)

	location := strings.TrimSpace(cells.Eq(cellLoc).Text())
	detailsURL := a.absoluteLink(cells.Eq(cellDetails))

	var agendaURL string
	if cells.Length() > cellAgenda {
		agendaCell := cells.Eq(cellAgenda)
		if !strings.Contains(agendaCell.Text(), "Not available") {
			agendaURL = a.absoluteLink(agendaCell)
		}
	}

	isZoom := strings.Contains(strings.ToLower(location), "zoom")
	inPerson := strings.Contains(strings.ToLower(location), "board") ||
		strings.Contains(strings.ToLower(location), "building") ||
		strings.Contains(strings.ToLower(location), "center")

	cand := &scrape.Candidate{
		Kind:     scrape.KindMeeting,
		VendorID: meetingID(detailsURL),
		Title:    title,
		Start:    start,
		// Far-future meetings get their detail page later; the listing
		// location is the best we have until then.
		LocationName:         location,
		IsVirtual:            isZoom,
		IsHybrid:             isZoom && inPerson,
		AcceptsPublicComment: true,
		DetailsURL:           detailsURL,
		AgendaURL:            agendaURL,
		Tags:                 a.tagsForTitle(title),
	}
	return cand, nil
}

// resolveDetail fetches the meeting detail page for fields the grid omits.
// Legistar only publishes detail pages close to the meeting date, so a
// missing or failing page is not an error.
func (a *Adapter) resolveDetail(ctx context.Context, cand *scrape.Candidate) {
	if cand.DetailsURL == "" {
		return
	}

	html, err := a.fetchPage(ctx, cand.DetailsURL)
	if err != nil {
		a.log.Debugf("detail page for %q unavailable: %v", cand.Title, err)
		return
	}

	if u := virtualRe.FindString(html); u != "" {
		cand.VirtualURL = u
		cand.IsVirtual = true
		cand.IsHybrid = true
	}

	// Readability strips the page down to its text content; the dial-in and
	// comment instructions live in free-form paragraphs.
	article, err := readability.FromReader(strings.NewReader(html), nil)
	if err != nil {
		return
	}
	text := article.TextContent

	if m := phoneRe.FindStringSubmatch(text); m != nil {
		cand.Description = appendLine(cand.Description, "Dial-in: "+strings.TrimSpace(m[1]))
	}
	if m := confIDRe.FindStringSubmatch(text); m != nil {
		cand.Description = appendLine(cand.Description, "Conference ID: "+strings.TrimSpace(m[1]))
	}
	if strings.Contains(strings.ToLower(text), "public comment") {
		cand.AcceptsPublicComment = true
		cand.PublicCommentURL = cand.DetailsURL
	}
}

func (a *Adapter) absoluteLink(cell *goquery.Selection) string {
	href, ok := cell.Find("a").First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	return a.baseHost + "/" + strings.TrimLeft(href, "/")
}

func (a *Adapter) tagsForTitle(title string) []string {
	if a.titleTags == nil {
		return nil
	}
	titleLower := strings.ToLower(title)
	var tags []string
	for kw, kwTags := range a.titleTags {
		if strings.Contains(titleLower, kw) {
			tags = append(tags, kwTags...)
		}
	}
	return tags
}

// meetingID extracts the vendor-assigned meeting ID from a detail link.
// Unpublished links yield none; the normalizer hashes those rows instead.
func meetingID(detailsURL string) string {
	if m := meetingIDRe.FindStringSubmatch(detailsURL); m != nil {
		return m[1]
	}
	return ""
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	return s + "\n" + line
}
