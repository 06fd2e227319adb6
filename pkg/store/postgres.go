package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civic-watch/pkg/domain"
)

// Postgres persists meetings and comment periods in two tables sharing the
// (source, source_id) natural-key discipline.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Open connects to Postgres via the pgx stdlib driver and verifies
// connectivity.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Close closes the underlying handle.
func (p *Postgres) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// DB exposes the handle for auxiliary tooling.
func (p *Postgres) DB() *sql.DB { return p.db }

// EnsureSchema creates both tables with their unique constraints. Safe to
// call on every run.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS meetings (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  source TEXT NOT NULL,
  source_id TEXT NOT NULL,
  agency TEXT NOT NULL DEFAULT '',
  agency_full_name TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  start_datetime TIMESTAMPTZ NOT NULL,
  timezone TEXT NOT NULL DEFAULT 'America/Detroit',
  location_name TEXT NOT NULL DEFAULT '',
  location_address TEXT NOT NULL DEFAULT '',
  location_city TEXT NOT NULL DEFAULT '',
  latitude DOUBLE PRECISION,
  longitude DOUBLE PRECISION,
  is_virtual BOOLEAN NOT NULL DEFAULT FALSE,
  is_hybrid BOOLEAN NOT NULL DEFAULT FALSE,
  virtual_url TEXT NOT NULL DEFAULT '',
  accepts_public_comment BOOLEAN NOT NULL DEFAULT FALSE,
  public_comment_url TEXT NOT NULL DEFAULT '',
  details_url TEXT NOT NULL DEFAULT '',
  agenda_url TEXT NOT NULL DEFAULT '',
  issue_tags JSONB NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'upcoming',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT meetings_source_source_id_key UNIQUE (source, source_id)
);

CREATE TABLE IF NOT EXISTS comment_periods (
  id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
  source TEXT NOT NULL,
  source_id TEXT NOT NULL,
  agency TEXT NOT NULL DEFAULT '',
  agency_full_name TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  description TEXT NOT NULL DEFAULT '',
  start_date DATE NOT NULL,
  end_date DATE NOT NULL,
  submit_comment_url TEXT NOT NULL DEFAULT '',
  comment_email TEXT NOT NULL DEFAULT '',
  details_url TEXT NOT NULL DEFAULT '',
  issue_tags JSONB NOT NULL DEFAULT '[]',
  status TEXT NOT NULL DEFAULT 'open',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  CONSTRAINT comment_periods_source_source_id_key UNIQUE (source, source_id)
);`

	if _, err := p.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

const upsertMeetingSQL = `
INSERT INTO meetings (
  source, source_id, agency, agency_full_name, title, description,
  start_datetime, timezone, location_name, location_address, location_city,
  latitude, longitude, is_virtual, is_hybrid, virtual_url,
  accepts_public_comment, public_comment_url, details_url, agenda_url,
  issue_tags, status
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
ON CONFLICT (source, source_id) DO UPDATE SET
  agency = EXCLUDED.agency,
  agency_full_name = EXCLUDED.agency_full_name,
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  start_datetime = EXCLUDED.start_datetime,
  timezone = EXCLUDED.timezone,
  location_name = EXCLUDED.location_name,
  location_address = EXCLUDED.location_address,
  location_city = EXCLUDED.location_city,
  latitude = EXCLUDED.latitude,
  longitude = EXCLUDED.longitude,
  is_virtual = EXCLUDED.is_virtual,
  is_hybrid = EXCLUDED.is_hybrid,
  virtual_url = EXCLUDED.virtual_url,
  accepts_public_comment = EXCLUDED.accepts_public_comment,
  public_comment_url = EXCLUDED.public_comment_url,
  details_url = EXCLUDED.details_url,
  agenda_url = EXCLUDED.agenda_url,
  issue_tags = EXCLUDED.issue_tags,
  status = EXCLUDED.status,
  updated_at = now()
RETURNING (xmax = 0) AS inserted`

// UpsertMeeting inserts or updates one meeting atomically. The xmax trick
// distinguishes a fresh insert from a conflict update without a second query.
func (p *Postgres) UpsertMeeting(ctx context.Context, m *domain.Meeting) (Outcome, error) {
	tags, err := json.Marshal(m.IssueTags)
	if err != nil {
		return "", fmt.Errorf("marshal issue tags: %w", err)
	}

	var inserted bool
	err = p.db.QueryRowContext(ctx, upsertMeetingSQL,
		m.Source, m.SourceID, m.Agency, m.AgencyFullName, m.Title, m.Description,
		m.Start, m.Timezone, m.LocationName, m.LocationAddress, m.LocationCity,
		m.Latitude, m.Longitude, m.IsVirtual, m.IsHybrid, m.VirtualURL,
		m.AcceptsPublicComment, m.PublicCommentURL, m.DetailsURL, m.AgendaURL,
		string(tags), m.Status,
	).Scan(&inserted)
	if err != nil {
		return "", fmt.Errorf("upsert meeting %s/%s: %w", m.Source, m.SourceID, err)
	}

	if inserted {
		return Inserted, nil
	}
	return Updated, nil
}

const upsertCommentPeriodSQL = `
INSERT INTO comment_periods (
  source, source_id, agency, agency_full_name, title, description,
  start_date, end_date, submit_comment_url, comment_email, details_url,
  issue_tags, status
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (source, source_id) DO UPDATE SET
  agency = EXCLUDED.agency,
  agency_full_name = EXCLUDED.agency_full_name,
  title = EXCLUDED.title,
  description = EXCLUDED.description,
  start_date = EXCLUDED.start_date,
  end_date = EXCLUDED.end_date,
  submit_comment_url = EXCLUDED.submit_comment_url,
  comment_email = EXCLUDED.comment_email,
  details_url = EXCLUDED.details_url,
  issue_tags = EXCLUDED.issue_tags,
  status = EXCLUDED.status,
  updated_at = now()
RETURNING (xmax = 0) AS inserted`

// UpsertCommentPeriod inserts or updates one comment period atomically.
func (p *Postgres) UpsertCommentPeriod(ctx context.Context, cp *domain.CommentPeriod) (Outcome, error) {
	tags, err := json.Marshal(cp.IssueTags)
	if err != nil {
		return "", fmt.Errorf("marshal issue tags: %w", err)
	}

	var inserted bool
	err = p.db.QueryRowContext(ctx, upsertCommentPeriodSQL,
		cp.Source, cp.SourceID, cp.Agency, cp.AgencyFullName, cp.Title, cp.Description,
		cp.StartDate, cp.EndDate, cp.SubmitCommentURL, cp.CommentEmail, cp.DetailsURL,
		string(tags), cp.Status,
	).Scan(&inserted)
	if err != nil {
		return "", fmt.Errorf("upsert comment period %s/%s: %w", cp.Source, cp.SourceID, err)
	}

	if inserted {
		return Inserted, nil
	}
	return Updated, nil
}

// VerifyConstraints checks both tables for duplicate (source, source_id)
// pairs. Duplicates mean the unique constraint was never created; the error
// names the table so the operator knows which constraint to add.
func (p *Postgres) VerifyConstraints(ctx context.Context) error {
	for _, table := range []string{"meetings", "comment_periods"} {
		var total, distinct int
		query := fmt.Sprintf(
			`SELECT count(*), count(DISTINCT (source, source_id)) FROM %s`, table)
		if err := p.db.QueryRowContext(ctx, query).Scan(&total, &distinct); err != nil {
			return fmt.Errorf("check %s for duplicates: %w", table, err)
		}
		if total > distinct {
			return fmt.Errorf("%s has %d duplicate rows: %w", table, total-distinct, ErrMissingConstraint)
		}
	}
	return nil
}

// UpcomingMeetings returns meetings starting at or after now, soonest first.
// Status ages out at read time; rows are never rewritten to mark them past.
func (p *Postgres) UpcomingMeetings(ctx context.Context, now time.Time) ([]domain.Meeting, error) {
	const query = `
SELECT source, source_id, agency, agency_full_name, title, description,
       start_datetime, timezone, location_name, location_address, location_city,
       latitude, longitude, is_virtual, is_hybrid, virtual_url,
       accepts_public_comment, public_comment_url, details_url, agenda_url,
       issue_tags, status
FROM meetings
WHERE start_datetime >= $1 AND status <> 'cancelled'
ORDER BY start_datetime`

	rows, err := p.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query upcoming meetings: %w", err)
	}
	defer rows.Close()

	var out []domain.Meeting
	for rows.Next() {
		var (
			m    domain.Meeting
			tags []byte
		)
		if err := rows.Scan(
			&m.Source, &m.SourceID, &m.Agency, &m.AgencyFullName, &m.Title, &m.Description,
			&m.Start, &m.Timezone, &m.LocationName, &m.LocationAddress, &m.LocationCity,
			&m.Latitude, &m.Longitude, &m.IsVirtual, &m.IsHybrid, &m.VirtualURL,
			&m.AcceptsPublicComment, &m.PublicCommentURL, &m.DetailsURL, &m.AgendaURL,
			&tags, &m.Status,
		); err != nil {
			return nil, fmt.Errorf("scan meeting: %w", err)
		}
		if err := json.Unmarshal(tags, &m.IssueTags); err != nil {
			return nil, fmt.Errorf("decode issue tags for %s/%s: %w", m.Source, m.SourceID, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// OpenCommentPeriods returns comment periods whose deadline has not passed,
// earliest deadline first.
func (p *Postgres) OpenCommentPeriods(ctx context.Context, now time.Time) ([]domain.CommentPeriod, error) {
	const query = `
SELECT source, source_id, agency, agency_full_name, title, description,
       start_date, end_date, submit_comment_url, comment_email, details_url,
       issue_tags, status
FROM comment_periods
WHERE end_date >= $1::date
ORDER BY end_date`

	rows, err := p.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query open comment periods: %w", err)
	}
	defer rows.Close()

	var out []domain.CommentPeriod
	for rows.Next() {
		var (
			cp   domain.CommentPeriod
			tags []byte
		)
		if err := rows.Scan(
			&cp.Source, &cp.SourceID, &cp.Agency, &cp.AgencyFullName, &cp.Title, &cp.Description,
			&cp.StartDate, &cp.EndDate, &cp.SubmitCommentURL, &cp.CommentEmail, &cp.DetailsURL,
			&tags, &cp.Status,
		); err != nil {
			return nil, fmt.Errorf("scan comment period: %w", err)
		}
		if err := json.Unmarshal(tags, &cp.IssueTags); err != nil {
			return nil, fmt.Errorf("decode issue tags for %s/%s: %w", cp.Source, cp.SourceID, err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}
