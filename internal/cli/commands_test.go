package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/sec360/internal/catalog"
	"github.com/0x6d61/sec360/internal/scoring"
	"github.com/0x6d61/sec360/internal/store"
)

// seedRecords writes one ended record per score for user, one hour apart.
func seedRecords(t *testing.T, dbPath, user string, scores ...int) {
	t.Helper()
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%s) returned error: %v", dbPath, err)
	}
	defer s.Close()

	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	for i, score := range scores {
		ended := base.Add(time.Duration(i) * time.Hour)
		rec := &store.Record{
			ID:               fmt.Sprintf("%s-%d", user, i+1),
			UserID:           user,
			SessionID:        fmt.Sprintf("%s-%d", user, i+1),
			Status:           store.StatusEnded,
			EndReason:        "user",
			StartedAt:        ended.Add(-10 * time.Minute),
			EndedAt:          ended,
			TotalSubmissions: 1,
			FinalScore:       score,
			BestScore:        score,
			RiskLevel:        scoring.DefaultThresholds().Level(score),
			CumulativeFlags:  map[catalog.Category]int{catalog.APIKey: 1},
		}
		if err := s.AppendRecord(context.Background(), rec); err != nil {
			t.Fatalf("AppendRecord(%s) returned error: %v", rec.ID, err)
		}
	}
}

func TestRecordsList(t *testing.T) {
	db := filepath.Join(t.TempDir(), "records.db")
	seedRecords(t, db, "alice", 72, 40)
	seedRecords(t, db, "bob", 10)

	out, err := execute(t, "", "records", "list", "--db", db)
	if err != nil {
		t.Fatalf("records list returned error: %v", err)
	}
	for _, id := range []string{"alice-1", "alice-2", "bob-1"} {
		if !strings.Contains(out, id) {
			t.Errorf("output missing %s\n%s", id, out)
		}
	}
	if !strings.HasPrefix(out, "ID") {
		t.Errorf("output should start with the header row\n%s", out)
	}
}

func TestRecordsList_UserJSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "records.db")
	seedRecords(t, db, "alice", 72, 40)
	seedRecords(t, db, "bob", 10)

	out, err := execute(t, "", "records", "list", "--db", db, "--user", "alice", "--json")
	if err != nil {
		t.Fatalf("records list returned error: %v", err)
	}
	var recs []store.RecordSummary
	if err := json.Unmarshal([]byte(out), &recs); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(recs) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(recs))
	}
	if recs[0].ID != "alice-2" {
		t.Errorf("records[0].ID = %q, want alice-2 (newest first)", recs[0].ID)
	}
}

func TestRecordsList_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "records.db")

	out, err := execute(t, "", "records", "list", "--db", db)
	if err != nil {
		t.Fatalf("records list returned error: %v", err)
	}
	if !strings.Contains(out, "No session records.") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "", "records", "list", "--db", db, "--json")
	if err != nil {
		t.Fatalf("records list --json returned error: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("JSON output = %q, want []", out)
	}
}

func TestRecordsShow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "records.db")
	seedRecords(t, db, "alice", 72)

	out, err := execute(t, "", "records", "show", "alice-1", "--db", db)
	if err != nil {
		t.Fatalf("records show returned error: %v", err)
	}
	for _, want := range []string{"Session alice-1", "User:        alice", "Final score: 72 [HIGH]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	_, err = execute(t, "", "records", "show", "nope", "--db", db)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing record error = %v, want not found", err)
	}
}

func TestLeaderboard(t *testing.T) {
	db := filepath.Join(t.TempDir(), "records.db")
	seedRecords(t, db, "alice", 60, 40, 20)
	seedRecords(t, db, "carol", 10, 10, 10)
	seedRecords(t, db, "bob", 5)

	out, err := execute(t, "", "leaderboard", "--db", db)
	if err != nil {
		t.Fatalf("leaderboard returned error: %v", err)
	}
	if strings.Contains(out, "bob") {
		t.Errorf("bob has too few sessions to be ranked\n%s", out)
	}
	carol := strings.Index(out, "carol")
	alice := strings.Index(out, "alice")
	if carol < 0 || alice < 0 || carol > alice {
		t.Errorf("carol (avg 10) should rank above alice (avg 40)\n%s", out)
	}
}

func TestLeaderboard_JSON(t *testing.T) {
	db := filepath.Join(t.TempDir(), "records.db")
	seedRecords(t, db, "alice", 60, 40, 20)
	seedRecords(t, db, "bob", 5)

	out, err := execute(t, "", "leaderboard", "--db", db, "--json", "--min-sessions", "1")
	if err != nil {
		t.Fatalf("leaderboard returned error: %v", err)
	}
	var got leaderboardOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.MinSessions != 1 {
		t.Errorf("MinSessions = %d, want 1", got.MinSessions)
	}
	if len(got.Entries) != 2 || got.Entries[0].UserID != "bob" {
		t.Errorf("entries = %+v, want bob first of 2", got.Entries)
	}
	if got.Statistics.Sessions != 4 || got.Statistics.Users != 2 {
		t.Errorf("statistics = %+v, want 4 sessions, 2 users", got.Statistics)
	}
}

func TestLeaderboard_User(t *testing.T) {
	db := filepath.Join(t.TempDir(), "records.db")
	seedRecords(t, db, "bob", 5)

	out, err := execute(t, "", "leaderboard", "--db", db, "--user", "bob")
	if err != nil {
		t.Fatalf("leaderboard --user returned error: %v", err)
	}
	if !strings.Contains(out, "bob") {
		t.Errorf("output = %s", out)
	}

	if _, err := execute(t, "", "leaderboard", "--db", db, "--user", "nobody"); err == nil {
		t.Error("expected error for a user without records")
	}
}

func TestCatalogValidate(t *testing.T) {
	out, err := execute(t, "", "catalog", "validate")
	if err != nil {
		t.Fatalf("catalog validate returned error: %v", err)
	}
	if !strings.HasPrefix(out, "built-in catalog: OK") || !strings.Contains(out, "sha256:") {
		t.Errorf("output = %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, bad, "categories:\n  NOT_A_CATEGORY:\n    field_weight: 1\n")
	_, err = execute(t, "", "catalog", "validate", bad)
	if !errors.Is(err, catalog.ErrInvalidCatalog) {
		t.Errorf("err = %v, want ErrInvalidCatalog", err)
	}
}

func TestCatalogExportRoundTrip(t *testing.T) {
	out, err := execute(t, "", "catalog", "export")
	if err != nil {
		t.Fatalf("catalog export returned error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	writeFile(t, path, out)

	out, err = execute(t, "", "catalog", "validate", path)
	if err != nil {
		t.Fatalf("exported catalog does not validate: %v", err)
	}
	if !strings.HasPrefix(out, path+": OK") {
		t.Errorf("output = %q", out)
	}
}

func TestCatalogShow(t *testing.T) {
	out, err := execute(t, "", "catalog", "show")
	if err != nil {
		t.Fatalf("catalog show returned error: %v", err)
	}
	for _, c := range []catalog.Category{catalog.APIKey, catalog.SSN, catalog.SessionID} {
		if !strings.Contains(out, string(c)) {
			t.Errorf("output missing %s\n%s", c, out)
		}
	}
}

func TestServe_RefusesInvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "categories:\n  API_KEY:\n    field_pattern: \"(\"\n")

	_, err := execute(t, "", "serve",
		"--db", filepath.Join(dir, "sec360.db"),
		"--catalog", bad,
		"--listen", "127.0.0.1:0",
	)
	if !errors.Is(err, catalog.ErrInvalidCatalog) {
		t.Errorf("err = %v, want ErrInvalidCatalog", err)
	}
}
