package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"civic-watch/pkg/config"
	"civic-watch/pkg/domain"
	"civic-watch/pkg/scrape"
)

// Table names the destination a normalized record routes to.
type Table string

const (
	TableMeetings       Table = "meetings"
	TableCommentPeriods Table = "comment_periods"
)

// Record is the output of normalization: exactly one of Meeting or
// CommentPeriod is set, matching Table.
type Record struct {
	Table         Table
	Meeting       *domain.Meeting
	CommentPeriod *domain.CommentPeriod
}

// Normalizer maps adapter candidates into the canonical schema. It owns the
// three decisions every source shares: the source_id derivation, the static
// per-source tag/agency defaults, and the destination-table routing.
type Normalizer struct {
	sources map[string]config.SourceConfig
	tz      *time.Location
}

// New creates a normalizer over the given source registry. All timestamps
// are normalized to Michigan local time.
func New(sources map[string]config.SourceConfig) (*Normalizer, error) {
	tz, err := time.LoadLocation("America/Detroit")
	if err != nil {
		return nil, fmt.Errorf("load Michigan timezone: %w", err)
	}
	return &Normalizer{sources: sources, tz: tz}, nil
}

// Normalize maps one candidate to its canonical record. It returns an error
// for candidates missing required fields (no title, no start time for a
// meeting, no deadline for a comment period); callers count those as skipped
// items and continue.
func (n *Normalizer) Normalize(c scrape.Candidate, sourceKey string) (Record, error) {
	sc, ok := n.sources[sourceKey]
	if !ok {
		return Record{}, fmt.Errorf("unknown source %q", sourceKey)
	}
	if c.Title == "" {
		return Record{}, fmt.Errorf("%s: candidate has no title", sourceKey)
	}

	switch c.Kind {
	case scrape.KindMeeting:
		return n.normalizeMeeting(c, sourceKey, sc)
	case scrape.KindCommentPeriod:
		return n.normalizeCommentPeriod(c, sourceKey, sc)
	default:
		return Record{}, fmt.Errorf("%s: unknown candidate kind %d", sourceKey, c.Kind)
	}
}

func (n *Normalizer) normalizeMeeting(c scrape.Candidate, sourceKey string, sc config.SourceConfig) (Record, error) {
	if c.Start.IsZero() {
		return Record{}, fmt.Errorf("%s: meeting %q has no start time", sourceKey, c.Title)
	}

	start := c.Start.In(n.tz)
	m := &domain.Meeting{
		Source:               sourceKey,
		SourceID:             n.sourceID(c, sourceKey, start.Format(time.RFC3339), sc.Agency),
		Agency:               sc.Agency,
		AgencyFullName:       sc.AgencyFullName,
		Title:                c.Title,
		Description:          c.Description,
		Start:                start,
		Timezone:             n.tz.String(),
		LocationName:         fallback(c.LocationName, sc.LocationName),
		LocationAddress:      fallback(c.LocationAddress, sc.LocationAddress),
		LocationCity:         fallback(c.LocationCity, sc.LocationCity),
		Latitude:             c.Latitude,
		Longitude:            c.Longitude,
		IsVirtual:            c.IsVirtual,
		IsHybrid:             c.IsHybrid,
		VirtualURL:           c.VirtualURL,
		AcceptsPublicComment: c.AcceptsPublicComment,
		PublicCommentURL:     c.PublicCommentURL,
		DetailsURL:           c.DetailsURL,
		AgendaURL:            c.AgendaURL,
		IssueTags:            mergeTags(sc.IssueTags, c.Tags),
		Status:               meetingStatus(c),
	}

	if m.Latitude == nil && sc.Latitude != 0 {
		lat, lng := sc.Latitude, sc.Longitude
		m.Latitude, m.Longitude = &lat, &lng
	}

	return Record{Table: TableMeetings, Meeting: m}, nil
}

func (n *Normalizer) normalizeCommentPeriod(c scrape.Candidate, sourceKey string, sc config.SourceConfig) (Record, error) {
	if c.EndDate.IsZero() {
		return Record{}, fmt.Errorf("%s: comment period %q has no deadline", sourceKey, c.Title)
	}

	end := c.EndDate.In(n.tz)
	start := c.StartDate
	if start.IsZero() {
		// Sources rarely state the open date; 30 days before the deadline is
		// the window EGLE notices run on.
		start = end.AddDate(0, 0, -30)
	}

	cp := &domain.CommentPeriod{
		Source:           sourceKey,
		SourceID:         n.sourceID(c, sourceKey, end.Format("2006-01-02"), sc.Agency),
		Agency:           sc.Agency,
		AgencyFullName:   sc.AgencyFullName,
		Title:            c.Title,
		Description:      c.Description,
		StartDate:        start.In(n.tz),
		EndDate:          end,
		SubmitCommentURL: fallback(c.PublicCommentURL, c.DetailsURL),
		CommentEmail:     c.CommentEmail,
		DetailsURL:       c.DetailsURL,
		IssueTags:        mergeTags(sc.IssueTags, c.Tags),
		Status:           domain.CommentOpen,
	}

	return Record{Table: TableCommentPeriods, CommentPeriod: cp}, nil
}

// sourceID derives the stable identifier for a candidate. Vendor-assigned
// IDs are always preferred; the hash fallback must stay byte-for-byte stable
// across runs and releases; changing the formula orphans every stored row.
func (n *Normalizer) sourceID(c scrape.Candidate, sourceKey, when, agency string) string {
	if c.VendorID != "" {
		return sourceKey + "-" + c.VendorID
	}
	sum := sha256.Sum256([]byte(when + "|" + c.Title + "|" + agency))
	return sourceKey + "-" + hex.EncodeToString(sum[:])[:12]
}

// mergeTags unions the source's static tag set with per-item keyword tags,
// deduplicated and sorted for stable storage.
func mergeTags(static, item []string) []string {
	seen := make(map[string]bool, len(static)+len(item))
	out := make([]string, 0, len(static)+len(item))
	for _, t := range append(append([]string{}, static...), item...) {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// meetingStatus writes cancelled through when the source says so; everything
// else is stored upcoming and ages out at read time.
func meetingStatus(c scrape.Candidate) string {
	if c.Cancelled {
		return domain.MeetingCancelled
	}
	return domain.MeetingUpcoming
}

func fallback(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
