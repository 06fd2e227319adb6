package domain

import "time"

// Meeting status values. "upcoming" and "past" are derived from the start
// time at read time; "cancelled" is only ever written explicitly.
const (
	MeetingUpcoming  = "upcoming"
	MeetingPast      = "past"
	MeetingCancelled = "cancelled"
)

// Meeting represents a public meeting stored in the meetings table.
//
// (Source, SourceID) is the natural key: it must be stable across runs for
// the same real-world meeting, and the table carries a unique constraint on
// the pair so repeated scraper runs upsert instead of accumulating rows.
type Meeting struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`

	Agency         string `json:"agency"`
	AgencyFullName string `json:"agency_full_name,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`

	Start    time.Time `json:"start_datetime"`
	Timezone string    `json:"timezone"`

	LocationName    string   `json:"location_name,omitempty"`
	LocationAddress string   `json:"location_address,omitempty"`
	LocationCity    string   `json:"location_city,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`

	IsVirtual bool   `json:"is_virtual"`
	IsHybrid  bool   `json:"is_hybrid"`
	VirtualURL string `json:"virtual_url,omitempty"`

	AcceptsPublicComment bool   `json:"accepts_public_comment"`
	PublicCommentURL     string `json:"public_comment_url,omitempty"`

	DetailsURL string `json:"details_url,omitempty"`
	AgendaURL  string `json:"agenda_url,omitempty"`

	IssueTags []string `json:"issue_tags"`
	Status    string   `json:"status"`
}

// CurrentStatus derives the effective status at the given time. The scraper
// writes "upcoming" and never mutates rows afterward; aging into "past"
// happens here, at read time. A stored cancellation always wins.
func (m *Meeting) CurrentStatus(now time.Time) string {
	if m.Status == MeetingCancelled {
		return MeetingCancelled
	}
	if m.Start.Before(now) {
		return MeetingPast
	}
	return MeetingUpcoming
}
