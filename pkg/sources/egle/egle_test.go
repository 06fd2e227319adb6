package egle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"civic-watch/pkg/config"
	"civic-watch/pkg/scrape"
)

const feedFixture = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:trumba="http://schemas.trumba.com/rss/x-trumba">
<channel>
<title>EGLE Calendar</title>
<item>
<title>Public Hearing: Air Quality Permit for Dearborn Facility</title>
<link>https://www.trumba.com/calendars/deq-events?eventid=177012345</link>
<guid isPermaLink="false">https://www.trumba.com/event/177012345</guid>
<category>2026/04/15 (Wednesday)</category>
<description>&lt;p&gt;EGLE will hold a public hearing on the proposed air permit. The hearing begins at 6:00pm. Join via &lt;a href="https://us02web.zoom.us/j/12345"&gt;https://us02web.zoom.us/j/12345&lt;/a&gt;.&lt;/p&gt;</description>
<trumba:weblink>https://www.michigan.gov/egle/outreach/hearing-12345</trumba:weblink>
</item>
<item>
<title>Comment Deadline: NPDES Permit for Flint Wastewater Discharge</title>
<link>https://www.trumba.com/calendars/deq-events?eventid=177054321</link>
<guid isPermaLink="false">https://www.trumba.com/event/177054321</guid>
<category>2026/05/01 (Friday)</category>
<description>&lt;p&gt;The public comment period runs from March 30, 2026. Submit comments to EGLE-Water@michigan.gov.&lt;/p&gt;</description>
</item>
<item>
<title>PFAS Workgroup Meeting</title>
<link>https://www.trumba.com/calendars/deq-events?eventid=177000001</link>
<guid isPermaLink="false">https://www.trumba.com/event/177000001</guid>
<category>2025/11/05 (Wednesday)</category>
<description>&lt;p&gt;Quarterly PFAS workgroup meeting at 1:00pm.&lt;/p&gt;</description>
</item>
<item>
<title></title>
<link>https://www.trumba.com/calendars/deq-events?eventid=177099999</link>
<guid isPermaLink="false">https://www.trumba.com/event/177099999</guid>
<category>2026/06/01 (Monday)</category>
<description>broken entry</description>
</item>
</channel>
</rss>`

func testAdapter(t *testing.T, url string) *Adapter {
	t.Helper()
	a := New("egle", config.SourceConfig{
		URL:               url,
		Agency:            "EGLE",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 100,
	})
	// Fixture dates are fixed, so the clock must be too.
	a.now = func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, a.tz)
	}
	return a
}

func TestScrape_RoutesAndSkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	batch, err := a.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	// Fixture: one future hearing, one future deadline, one past meeting
	// (dropped silently), one titleless entry (skipped).
	if len(batch.Candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(batch.Candidates))
	}
	if batch.Skipped != 1 {
		t.Errorf("Expected 1 skipped entry, got %d", batch.Skipped)
	}

	var meeting, period *scrape.Candidate
	for i := range batch.Candidates {
		switch batch.Candidates[i].Kind {
		case scrape.KindMeeting:
			meeting = &batch.Candidates[i]
		case scrape.KindCommentPeriod:
			period = &batch.Candidates[i]
		}
	}
	if meeting == nil || period == nil {
		t.Fatalf("Expected one meeting and one comment period, got %+v", batch.Candidates)
	}

	if meeting.VendorID != "event-177012345" {
		t.Errorf("Expected vendor ID event-177012345, got %s", meeting.VendorID)
	}
	if meeting.Start.Hour() != 18 || meeting.Start.Day() != 15 {
		t.Errorf("Expected start Apr 15 18:00, got %v", meeting.Start)
	}
	if !meeting.IsVirtual || meeting.VirtualURL != "https://us02web.zoom.us/j/12345" {
		t.Errorf("Expected zoom link, got virtual=%v url=%s", meeting.IsVirtual, meeting.VirtualURL)
	}
	if meeting.AgendaURL != "https://www.michigan.gov/egle/outreach/hearing-12345" {
		t.Errorf("Expected trumba weblink as agenda URL, got %s", meeting.AgendaURL)
	}
	if !containsTag(meeting.Tags, "air_quality") {
		t.Errorf("Expected air_quality tag, got %v", meeting.Tags)
	}

	if period.VendorID != "comment-177054321" {
		t.Errorf("Expected vendor ID comment-177054321, got %s", period.VendorID)
	}
	if period.EndDate.Month() != time.May || period.EndDate.Day() != 1 {
		t.Errorf("Expected deadline May 1, got %v", period.EndDate)
	}
	if period.StartDate.Month() != time.March || period.StartDate.Day() != 30 {
		t.Errorf("Expected start date March 30 from description, got %v", period.StartDate)
	}
	if period.CommentEmail != "EGLE-Water@michigan.gov" {
		t.Errorf("Expected comment email, got %s", period.CommentEmail)
	}
	if !containsTag(period.Tags, "water_quality") {
		t.Errorf("Expected water_quality tag, got %v", period.Tags)
	}
}

func TestScrape_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := testAdapter(t, srv.URL)
	if _, err := a.Scrape(context.Background()); err == nil {
		t.Error("Expected error on 503 response, got nil")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		title string
		desc  string
		want  scrape.Kind
	}{
		{"Public Hearing: Air Permit", "", scrape.KindMeeting},
		{"PFAS Workgroup Meeting", "", scrape.KindMeeting},
		{"Remediation Webinar Series", "", scrape.KindMeeting},
		{"Comment Deadline: NPDES Permit", "", scrape.KindCommentPeriod},
		{"Proposed Consent Order", "", scrape.KindCommentPeriod},
		{"Proposed Permit Action", "EGLE will hold a public hearing if requested", scrape.KindMeeting},
	}

	for _, tc := range cases {
		if got := classify(tc.title, tc.desc); got != tc.want {
			t.Errorf("classify(%q): expected %v, got %v", tc.title, tc.want, got)
		}
	}
}

func TestExtractIssueTags_StripsAgencyBoilerplate(t *testing.T) {
	tags := extractIssueTags(
		"Rulemaking Update",
		"Hosted by the Michigan Department of Environment, Great Lakes, and Energy.",
	)
	if containsTag(tags, "great_lakes") {
		t.Errorf("Agency name boilerplate should not produce tags, got %v", tags)
	}
}

func TestMeetingStart_DefaultsToTen(t *testing.T) {
	a := testAdapter(t, "http://unused")
	date := time.Date(2026, 4, 15, 0, 0, 0, 0, a.tz)

	start := a.meetingStart(date, "no time stated anywhere")
	if start.Hour() != 10 || start.Minute() != 0 {
		t.Errorf("Expected 10:00 default, got %02d:%02d", start.Hour(), start.Minute())
	}

	start = a.meetingStart(date, "The meeting runs 1:30 - 3:30 pm.")
	if start.Hour() != 13 || start.Minute() != 30 {
		t.Errorf("Expected 13:30, got %02d:%02d", start.Hour(), start.Minute())
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// 199 ASCII bytes followed by a 3-byte right single quote: a naive byte
	// slice at 200 or 201 would split the rune.
	s := strings.Repeat("a", 199) + "’suffix"

	for _, n := range []int{199, 200, 201, 202} {
		got := truncate(s, n)
		if !utf8.ValidString(got) {
			t.Errorf("truncate(s, %d) produced invalid UTF-8: %q", n, got[len(got)-4:])
		}
		if len(got) > n {
			t.Errorf("truncate(s, %d) returned %d bytes", n, len(got))
		}
	}

	if got := truncate("short", 500); got != "short" {
		t.Errorf("Expected short strings untouched, got %q", got)
	}
}

func containsTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
