// Command reported-subjects prints the subjects with a production report
// filed on or after a date, one per line, for feeding downstream
// enforcement jobs.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"log"
	"os"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/store"
)

func main() {
	dbPath := flag.String("db", envOr("REPORTER_DB_PATH", "./reporter.db"), "SQLite database path")
	since := flag.String("since", "", "report cutoff date (YYYY-MM-DD or RFC 3339)")
	flag.Parse()

	if *since == "" {
		log.Fatal("-since is required")
	}
	cutoff, err := parseSince(*since)
	if err != nil {
		log.Fatalf("Invalid -since: %v", err)
	}

	ctx := context.Background()
	db, err := store.NewSQLiteStore(ctx, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	subjects, err := db.ListSubjectsReportedSince(ctx, cutoff)
	if err != nil {
		log.Fatalf("Failed to list reported subjects: %v", err)
	}

	w := csv.NewWriter(os.Stdout)
	w.Write([]string{"org_id", "subject_id", "subject_type_id"})
	for _, s := range subjects {
		w.Write([]string{s.OrgID, s.SubjectID, s.SubjectTypeID})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatalf("Writing output: %v", err)
	}
}

func parseSince(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
