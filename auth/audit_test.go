package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAuditLogger_RecordAndRead(t *testing.T) {
	logger, err := NewAuditLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewAuditLogger() failed: %v", err)
	}

	now := time.Now()
	entries := []AuditEntry{
		{Subject: "admin", Action: ActionProjectCreate, Project: "dbpedia", Success: true},
		{Subject: "admin", Action: ActionEndpointAdd, Project: "dbpedia", Success: true,
			Details: map[string]string{"location": "http://dbpedia.org/sparql"}},
		{Subject: "ci", Action: ActionCacheFlush, Project: "wikidata", Success: false, ErrorMsg: "project not found: wikidata"},
	}
	for _, e := range entries {
		if err := logger.Record(e); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	got, err := logger.EntriesForDate(now.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("EntriesForDate() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("EntriesForDate() = %d entries, want 3", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Record() did not set a timestamp")
	}
	if got[1].Details["location"] != "http://dbpedia.org/sparql" {
		t.Errorf("Details = %v", got[1].Details)
	}

	empty, err := logger.EntriesForDate("1999-01-01")
	if err != nil || len(empty) != 0 {
		t.Errorf("EntriesForDate() for empty day = %v, %v", empty, err)
	}
}

func TestAuditLogger_Search(t *testing.T) {
	logger, err := NewAuditLogger(t.TempDir())
	if err != nil {
		t.Fatalf("NewAuditLogger() failed: %v", err)
	}
	for _, e := range []AuditEntry{
		{Subject: "admin", Action: ActionProjectCreate, Project: "a", Success: true},
		{Subject: "admin", Action: ActionProjectDelete, Project: "b", Success: true},
		{Subject: "ci", Action: ActionProjectDelete, Project: "c", Success: false},
	} {
		if err := logger.Record(e); err != nil {
			t.Fatalf("Record() failed: %v", err)
		}
	}

	today := time.Now().Format("2006-01-02")
	failed := false
	tests := []struct {
		name     string
		criteria AuditSearchCriteria
		want     int
	}{
		{"All", AuditSearchCriteria{}, 3},
		{"By subject", AuditSearchCriteria{Subject: "admin"}, 2},
		{"By action", AuditSearchCriteria{Action: ActionProjectDelete}, 2},
		{"By project", AuditSearchCriteria{Project: "a"}, 1},
		{"Failures", AuditSearchCriteria{Success: &failed}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.criteria
			c.StartDate, c.EndDate = today, today
			got, err := logger.Search(c)
			if err != nil {
				t.Fatalf("Search() failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Search() = %d entries, want %d", len(got), tt.want)
			}
		})
	}

	if _, err := logger.Search(AuditSearchCriteria{StartDate: "yesterday", EndDate: today}); err == nil {
		t.Error("Search() accepted an invalid start date")
	}

	recent, err := logger.Recent(2)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(recent) != 2 || recent[1].Project != "c" {
		t.Errorf("Recent(2) = %v", recent)
	}
}

func TestAuditLogger_Prune(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewAuditLogger(dir)
	if err != nil {
		t.Fatalf("NewAuditLogger() failed: %v", err)
	}

	old := time.Now().AddDate(0, 0, -40)
	if err := logger.Record(AuditEntry{Timestamp: old, Subject: "admin", Action: ActionProjectCreate, Project: "old"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	if err := logger.Record(AuditEntry{Subject: "admin", Action: ActionProjectCreate, Project: "new"}); err != nil {
		t.Fatalf("Record() failed: %v", err)
	}
	// unrelated files are left alone
	if err := os.WriteFile(filepath.Join(dir, "audit", "audit_notes.jsonl"), nil, 0600); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	removed, err := logger.Prune(30)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d files, want 1", removed)
	}

	left, _ := filepath.Glob(filepath.Join(dir, "audit", "audit_*.jsonl"))
	if len(left) != 2 {
		t.Errorf("files left = %v", left)
	}
}
