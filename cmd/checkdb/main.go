// checkdb audits the store for duplicate (source, source_id) rows, the
// symptom of a missing unique constraint. The scraper runs the same check
// before writing; this binary exists so operators can run it on demand and
// see the repair SQL.
//
// With a database password (or DATABASE_URL) it audits over a direct
// connection. With only SUPABASE_URL and the service-role key it falls back
// to REST API mode and counts the keys client-side.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"civic-watch/pkg/config"
	"civic-watch/pkg/store"
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := audit(context.Background(), cfg.Store); err != nil {
		if errors.Is(err, store.ErrMissingConstraint) {
			fmt.Println("Duplicate rows found:", err)
			fmt.Println()
			fmt.Println("Repair (run per affected table, keeps the newest row):")
			fmt.Println(`  DELETE FROM meetings WHERE id IN (
    SELECT id FROM (
      SELECT id, ROW_NUMBER() OVER (
        PARTITION BY source, source_id ORDER BY created_at DESC
      ) AS rn FROM meetings
    ) t WHERE rn > 1
  );
  ALTER TABLE meetings
  ADD CONSTRAINT meetings_source_source_id_key UNIQUE (source, source_id);`)
			log.Fatal("fix the constraint before the next scheduled run")
		}
		log.Fatalf("check failed: %v", err)
	}

	fmt.Println("No duplicate rows; (source, source_id) uniqueness holds.")
}

// audit picks the connection mode from the configured credentials.
func audit(ctx context.Context, sc config.StoreConfig) error {
	if sc.DatabaseURL == "" && sc.SupabasePassword == "" {
		sdk, err := store.OpenSDK(sc)
		if err != nil {
			return err
		}
		fmt.Println("No database password configured; auditing over the REST API.")
		return store.VerifyConstraintsREST(sdk)
	}

	pg, err := store.OpenSupabase(ctx, sc)
	if err != nil {
		return err
	}
	defer pg.Close()
	return pg.VerifyConstraints(ctx)
}
