package scrape

import "time"

// Kind tells the normalizer which destination table a candidate belongs to.
// Single-destination sources emit only KindMeeting; the EGLE feed emits both.
type Kind int

const (
	KindMeeting Kind = iota
	KindCommentPeriod
)

func (k Kind) String() string {
	if k == KindCommentPeriod {
		return "comment_period"
	}
	return "meeting"
}

// Candidate is the tagged variant every adapter emits: source-native fields
// already pulled out of the raw item, but not yet mapped to the canonical
// schema. The normalizer owns source_id derivation, tags, and routing.
type Candidate struct {
	Kind Kind

	// VendorID is the source-assigned identifier (Trumba event id, Legistar
	// meeting id, MPSC meeting date). Empty when the source publishes none;
	// the normalizer then falls back to a stable hash.
	VendorID string

	Title       string
	Description string

	// Start is required for meetings; zero otherwise.
	Start time.Time
	// EndDate is the deadline for comment periods; zero otherwise.
	EndDate time.Time
	// StartDate is the comment-period open date, when the source states one.
	StartDate time.Time

	LocationName    string
	LocationAddress string
	LocationCity    string
	Latitude        *float64
	Longitude       *float64

	// Cancelled is set when the source explicitly marks the event cancelled.
	// The normalizer writes it through as the stored status; it is never
	// derived from timing.
	Cancelled bool

	IsVirtual  bool
	IsHybrid   bool
	VirtualURL string

	AcceptsPublicComment bool
	PublicCommentURL     string
	CommentEmail         string

	DetailsURL string
	AgendaURL  string

	// Tags extracted from the item itself (keyword matches); the normalizer
	// unions these with the source's static tag set.
	Tags []string
}

// Batch is what one adapter run produced. Skipped counts items that were
// fetched but could not be parsed: a non-zero Skipped with zero candidates
// is the "site structure changed" signal, distinct from an empty listing.
type Batch struct {
	Candidates []Candidate
	Skipped    int
}
