package domain

import (
	"testing"
	"time"
)

var detroit, _ = time.LoadLocation("America/Detroit")

func TestMeetingCurrentStatus(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, detroit)
	m := &Meeting{Start: start, Status: MeetingUpcoming}

	before := start.Add(-time.Hour)
	if got := m.CurrentStatus(before); got != MeetingUpcoming {
		t.Errorf("Expected upcoming before start, got %s", got)
	}

	after := start.Add(time.Hour)
	if got := m.CurrentStatus(after); got != MeetingPast {
		t.Errorf("Expected past after start, got %s", got)
	}

	// Cancellation is sticky: a cancelled meeting never flips to past.
	m.Status = MeetingCancelled
	if got := m.CurrentStatus(after); got != MeetingCancelled {
		t.Errorf("Expected cancelled to win, got %s", got)
	}
}

func TestCommentPeriodCurrentStatus(t *testing.T) {
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, detroit)
	cp := &CommentPeriod{EndDate: end, Status: CommentOpen}

	cases := []struct {
		name string
		now  time.Time
		want string
	}{
		{"week before", time.Date(2026, 3, 8, 12, 0, 0, 0, detroit), CommentOpen},
		{"morning of deadline", time.Date(2026, 3, 15, 9, 0, 0, 0, detroit), CommentOpen},
		{"evening of deadline", time.Date(2026, 3, 15, 23, 59, 0, 0, detroit), CommentOpen},
		{"day after", time.Date(2026, 3, 16, 0, 1, 0, 0, detroit), CommentClosed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cp.CurrentStatus(tc.now); got != tc.want {
				t.Errorf("Expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestCommentPeriodDaysRemaining(t *testing.T) {
	end := time.Date(2026, 3, 15, 0, 0, 0, 0, detroit)
	cp := &CommentPeriod{EndDate: end}

	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"five days out", time.Date(2026, 3, 10, 16, 30, 0, 0, detroit), 5},
		{"deadline day", time.Date(2026, 3, 15, 8, 0, 0, 0, detroit), 0},
		{"already closed", time.Date(2026, 3, 20, 8, 0, 0, 0, detroit), 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := cp.DaysRemaining(tc.now); got != tc.want {
				t.Errorf("Expected %d days, got %d", tc.want, got)
			}
		})
	}
}
