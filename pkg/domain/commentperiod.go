package domain

import "time"

// CommentPeriod status values.
const (
	CommentOpen   = "open"
	CommentClosed = "closed"
)

// CommentPeriod represents a public comment window stored in the
// comment_periods table. It shares the (Source, SourceID) natural-key
// contract with Meeting but is otherwise independent, with no foreign keys.
type CommentPeriod struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`

	Agency         string `json:"agency"`
	AgencyFullName string `json:"agency_full_name,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	SubmitCommentURL string `json:"submit_comment_url,omitempty"`
	CommentEmail     string `json:"comment_email,omitempty"`
	DetailsURL       string `json:"details_url,omitempty"`

	IssueTags []string `json:"issue_tags"`
	Status    string   `json:"status"`
}

// DaysRemaining returns the number of whole days until the deadline,
// clamped to zero once the period has ended.
func (c *CommentPeriod) DaysRemaining(now time.Time) int {
	days := int(endOfDayDelta(c.EndDate, now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// CurrentStatus derives open/closed from the deadline at read time.
// The period stays open through the end of the deadline day.
func (c *CommentPeriod) CurrentStatus(now time.Time) string {
	if endOfDayDelta(c.EndDate, now) < 0 {
		return CommentClosed
	}
	return CommentOpen
}

// endOfDayDelta compares calendar days, ignoring the time-of-day component
// of both the deadline and now.
func endOfDayDelta(end, now time.Time) time.Duration {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	deadline := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, now.Location())
	return deadline.Sub(today)
}
