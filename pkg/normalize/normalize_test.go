package normalize

import (
	"testing"
	"time"

	"civic-watch/pkg/config"
	"civic-watch/pkg/domain"
	"civic-watch/pkg/scrape"
)

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	n, err := New(config.Default().Sources)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return n
}

func TestNormalize_MeetingWithVendorID(t *testing.T) {
	n := testNormalizer(t)

	tz, _ := time.LoadLocation("America/Detroit")
	cand := scrape.Candidate{
		Kind:     scrape.KindMeeting,
		VendorID: "2026-01-15",
		Title:    "January 15, 2026 Commission Meeting",
		Start:    time.Date(2026, 1, 15, 13, 30, 0, 0, tz),
	}

	rec, err := n.Normalize(cand, "mpsc")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if rec.Table != TableMeetings {
		t.Fatalf("Expected meetings table, got %s", rec.Table)
	}
	m := rec.Meeting
	if m.Source != "mpsc" {
		t.Errorf("Expected source mpsc, got %s", m.Source)
	}
	if m.SourceID != "mpsc-2026-01-15" {
		t.Errorf("Expected source_id mpsc-2026-01-15, got %s", m.SourceID)
	}
	if m.Agency != "MPSC" {
		t.Errorf("Expected agency MPSC, got %s", m.Agency)
	}
	if m.Latitude == nil || *m.Latitude != 42.7325 {
		t.Errorf("Expected HQ latitude 42.7325, got %v", m.Latitude)
	}
	if m.Longitude == nil || *m.Longitude != -84.6358 {
		t.Errorf("Expected HQ longitude -84.6358, got %v", m.Longitude)
	}

	wantTags := map[string]bool{"dte_energy": true, "utilities": true, "energy_policy": true}
	if len(m.IssueTags) != len(wantTags) {
		t.Fatalf("Expected tags %v, got %v", wantTags, m.IssueTags)
	}
	for _, tag := range m.IssueTags {
		if !wantTags[tag] {
			t.Errorf("Unexpected tag %q", tag)
		}
	}
}

func TestNormalize_SourceIDDeterministic(t *testing.T) {
	n := testNormalizer(t)

	tz, _ := time.LoadLocation("America/Detroit")
	cand := scrape.Candidate{
		Kind:  scrape.KindMeeting,
		Title: "Audit Committee",
		Start: time.Date(2026, 2, 6, 13, 0, 0, 0, tz),
		// No VendorID: exercises the hash fallback.
	}

	rec1, err := n.Normalize(cand, "glwa")
	if err != nil {
		t.Fatalf("first Normalize failed: %v", err)
	}
	rec2, err := n.Normalize(cand, "glwa")
	if err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}

	if rec1.Meeting.SourceID != rec2.Meeting.SourceID {
		t.Errorf("source_id not stable: %s vs %s", rec1.Meeting.SourceID, rec2.Meeting.SourceID)
	}
	if rec1.Meeting.SourceID == "glwa-" {
		t.Error("hash fallback produced an empty identifier")
	}

	// A different meeting must not collide.
	other := cand
	other.Title = "Legal Committee"
	rec3, err := n.Normalize(other, "glwa")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if rec3.Meeting.SourceID == rec1.Meeting.SourceID {
		t.Error("distinct meetings got the same source_id")
	}
}

func TestNormalize_HashFormulaStable(t *testing.T) {
	// The fallback formula is a storage contract: these values are what
	// existing rows were keyed with. If this test fails, the derivation
	// changed and stored rows would be orphaned.
	n := testNormalizer(t)

	tz, _ := time.LoadLocation("America/Detroit")
	cand := scrape.Candidate{
		Kind:  scrape.KindMeeting,
		Title: "Board of Directors",
		Start: time.Date(2026, 3, 11, 10, 0, 0, 0, tz),
	}

	rec, err := n.Normalize(cand, "glwa")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// sha256("2026-03-11T10:00:00-04:00|Board of Directors|GLWA")[:12]
	const want = "glwa-7d48eaffdf6e"
	if rec.Meeting.SourceID != want {
		t.Errorf("hash derivation changed: expected %s, got %s", want, rec.Meeting.SourceID)
	}
}

func TestNormalize_RoutesByKind(t *testing.T) {
	n := testNormalizer(t)
	tz, _ := time.LoadLocation("America/Detroit")

	meeting := scrape.Candidate{
		Kind:     scrape.KindMeeting,
		VendorID: "event-12345",
		Title:    "Public Hearing: Air Permit",
		Start:    time.Date(2026, 2, 18, 18, 0, 0, 0, tz),
	}
	rec, err := n.Normalize(meeting, "egle")
	if err != nil {
		t.Fatalf("Normalize meeting failed: %v", err)
	}
	if rec.Table != TableMeetings || rec.Meeting == nil || rec.CommentPeriod != nil {
		t.Errorf("meeting-kind candidate routed to %s", rec.Table)
	}
	if rec.Meeting.SourceID != "egle-event-12345" {
		t.Errorf("Expected egle-event-12345, got %s", rec.Meeting.SourceID)
	}

	period := scrape.Candidate{
		Kind:     scrape.KindCommentPeriod,
		VendorID: "comment-12346",
		Title:    "Comment Deadline: NPDES Permit",
		EndDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, tz),
	}
	rec, err = n.Normalize(period, "egle")
	if err != nil {
		t.Fatalf("Normalize comment period failed: %v", err)
	}
	if rec.Table != TableCommentPeriods || rec.CommentPeriod == nil || rec.Meeting != nil {
		t.Errorf("comment-kind candidate routed to %s", rec.Table)
	}
	if rec.CommentPeriod.SourceID != "egle-comment-12346" {
		t.Errorf("Expected egle-comment-12346, got %s", rec.CommentPeriod.SourceID)
	}
	if rec.CommentPeriod.Status != "open" {
		t.Errorf("Expected status open, got %s", rec.CommentPeriod.Status)
	}
}

func TestNormalize_CancelledMeetingKeepsCancelledStatus(t *testing.T) {
	n := testNormalizer(t)
	tz, _ := time.LoadLocation("America/Detroit")

	cand := scrape.Candidate{
		Kind:      scrape.KindMeeting,
		VendorID:  "2026-01-15",
		Title:     "January 15, 2026 Commission Meeting",
		Start:     time.Date(2026, 1, 15, 13, 30, 0, 0, tz),
		Cancelled: true,
	}

	rec, err := n.Normalize(cand, "mpsc")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if rec.Meeting.Status != domain.MeetingCancelled {
		t.Errorf("Expected cancelled status written through, got %s", rec.Meeting.Status)
	}

	// Re-scraping the same candidate must not revert the row to upcoming.
	rec, err = n.Normalize(cand, "mpsc")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if rec.Meeting.Status != domain.MeetingCancelled {
		t.Errorf("Second normalization reverted status to %s", rec.Meeting.Status)
	}
}

func TestNormalize_MissingRequiredFields(t *testing.T) {
	n := testNormalizer(t)
	tz, _ := time.LoadLocation("America/Detroit")

	cases := []struct {
		name string
		cand scrape.Candidate
	}{
		{"meeting without start", scrape.Candidate{Kind: scrape.KindMeeting, Title: "No Start"}},
		{"comment period without deadline", scrape.Candidate{Kind: scrape.KindCommentPeriod, Title: "No Deadline"}},
		{"no title", scrape.Candidate{Kind: scrape.KindMeeting, Start: time.Date(2026, 1, 1, 10, 0, 0, 0, tz)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := n.Normalize(tc.cand, "egle"); err == nil {
				t.Error("Expected error for incomplete candidate, got nil")
			}
		})
	}
}

func TestNormalize_MergesItemTagsWithStatic(t *testing.T) {
	n := testNormalizer(t)
	tz, _ := time.LoadLocation("America/Detroit")

	cand := scrape.Candidate{
		Kind:     scrape.KindMeeting,
		VendorID: "event-1",
		Title:    "PFAS Public Hearing",
		Start:    time.Date(2026, 4, 2, 18, 0, 0, 0, tz),
		Tags:     []string{"pfas", "drinking_water", "pfas"},
	}

	rec, err := n.Normalize(cand, "egle")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	seen := map[string]int{}
	for _, tag := range rec.Meeting.IssueTags {
		seen[tag]++
	}
	for tag, count := range seen {
		if count > 1 {
			t.Errorf("tag %q duplicated %d times", tag, count)
		}
	}
	if seen["environment"] != 1 {
		t.Error("static source tag missing from merged set")
	}
	if seen["pfas"] != 1 || seen["drinking_water"] != 1 {
		t.Errorf("item tags missing from merged set: %v", rec.Meeting.IssueTags)
	}
}

func TestNormalize_TimesNormalizedToMichigan(t *testing.T) {
	n := testNormalizer(t)

	cand := scrape.Candidate{
		Kind:     scrape.KindMeeting,
		VendorID: "2026-06-18",
		Title:    "June 18, 2026 Commission Meeting",
		Start:    time.Date(2026, 6, 18, 13, 30, 0, 0, time.UTC),
	}

	rec, err := n.Normalize(cand, "mpsc")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if rec.Meeting.Start.Location().String() != "America/Detroit" {
		t.Errorf("Expected America/Detroit, got %s", rec.Meeting.Start.Location())
	}
	// 13:30 UTC is 09:30 EDT; the instant must be preserved.
	if rec.Meeting.Start.Hour() != 9 || rec.Meeting.Start.Minute() != 30 {
		t.Errorf("Expected 09:30 local, got %02d:%02d", rec.Meeting.Start.Hour(), rec.Meeting.Start.Minute())
	}
}
