package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	supabase "github.com/supabase-community/supabase-go"

	"civic-watch/pkg/config"
)

// OpenSupabase connects the Postgres gateway to a hosted Supabase project
// over a direct database connection, which is what the upsert gateway
// needs. Tooling that only has the project URL and API key uses OpenSDK
// and the REST audit instead.
//
// Resolution order: an explicit DATABASE_URL wins; otherwise the connection
// string is built from the project URL and database password.
func OpenSupabase(ctx context.Context, cfg config.StoreConfig) (*Postgres, error) {
	connStr := cfg.DatabaseURL
	if connStr == "" {
		var err error
		connStr, err = buildConnectionString(cfg)
		if err != nil {
			return nil, err
		}
	}

	// Disable the prepared-statement cache: concurrent adapters share the
	// pool and pgx's cache conflicts across goroutines on pooled Supabase
	// connections.
	connStr = addConnectionParam(connStr, "statement_cache_capacity", "0")
	connStr = addConnectionParam(connStr, "default_query_exec_mode", "simple_protocol")

	return Open(ctx, connStr)
}

// buildConnectionString derives the Postgres DSN from the Supabase project
// URL (https://[project-ref].supabase.co) and the database password.
func buildConnectionString(cfg config.StoreConfig) (string, error) {
	if cfg.SupabaseURL == "" {
		return "", fmt.Errorf("SUPABASE_URL or DATABASE_URL is required")
	}
	if cfg.SupabasePassword == "" {
		return "", fmt.Errorf("SUPABASE_DB_PASSWORD is required when DATABASE_URL is not set")
	}

	parsed, err := url.Parse(cfg.SupabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}

	parts := strings.Split(parsed.Host, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("invalid supabase URL format: expected [project-ref].supabase.co")
	}
	projectRef := parts[0]

	return fmt.Sprintf(
		"postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(cfg.SupabasePassword), projectRef,
	), nil
}

// OpenSDK initializes only the Supabase SDK client. REST API mode: enough
// for the duplicate audit when no database password is configured.
func OpenSDK(cfg config.StoreConfig) (*supabase.Client, error) {
	if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for REST API mode")
	}
	sdk, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseKey, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase SDK: %w", err)
	}
	return sdk, nil
}

// VerifyConstraintsREST runs the duplicate audit through the Supabase REST
// API. PostgREST cannot express the aggregate the direct query uses, so the
// natural keys are fetched and counted client-side.
func VerifyConstraintsREST(sdk *supabase.Client) error {
	for _, table := range []string{"meetings", "comment_periods"} {
		data, _, err := sdk.From(table).Select("source,source_id", "exact", false).Execute()
		if err != nil {
			return fmt.Errorf("check %s for duplicates: %w", table, err)
		}

		var rows []struct {
			Source   string `json:"source"`
			SourceID string `json:"source_id"`
		}
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("decode %s keys: %w", table, err)
		}

		seen := make(map[string]bool, len(rows))
		dupes := 0
		for _, r := range rows {
			key := r.Source + "/" + r.SourceID
			if seen[key] {
				dupes++
			}
			seen[key] = true
		}
		if dupes > 0 {
			return fmt.Errorf("%s has %d duplicate rows: %w", table, dupes, ErrMissingConstraint)
		}
	}
	return nil
}

func addConnectionParam(connStr, key, value string) string {
	if strings.Contains(connStr, key+"=") {
		return connStr
	}
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	return connStr + separator + key + "=" + value
}
