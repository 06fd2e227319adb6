package store

import (
	"context"
	"errors"

	"civic-watch/pkg/domain"
)

// Outcome reports what an upsert did.
type Outcome string

const (
	Inserted Outcome = "inserted"
	Updated  Outcome = "updated"
)

// ErrMissingConstraint is wrapped by VerifyConstraints when duplicate
// (source, source_id) pairs exist, the signature of a table created without
// its unique constraint. Left unfixed, every scheduled run silently
// accumulates duplicates, so the runner refuses to start.
var ErrMissingConstraint = errors.New("unique constraint on (source, source_id) is missing")

// Gateway is the dedup/upsert boundary the pipeline writes through. Every
// write is a single atomic insert-or-update keyed on (source, source_id), so
// repeated runs and concurrent adapters never create duplicate rows.
type Gateway interface {
	UpsertMeeting(ctx context.Context, m *domain.Meeting) (Outcome, error)
	UpsertCommentPeriod(ctx context.Context, cp *domain.CommentPeriod) (Outcome, error)
}
