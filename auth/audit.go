package auth

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const auditDateLayout = "2006-01-02"

// Audited actions
const (
	ActionProjectCreate  = "project.create"
	ActionProjectDelete  = "project.delete"
	ActionEndpointAdd    = "endpoint.add"
	ActionEndpointRemove = "endpoint.remove"
	ActionCacheFlush     = "cache.flush"
)

// AuditEntry represents a single audit log entry
type AuditEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Subject   string            `json:"subject"`
	Action    string            `json:"action"`
	Project   string            `json:"project"`
	Success   bool              `json:"success"`
	IPAddress string            `json:"ip_address,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	ErrorMsg  string            `json:"error_message,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// AuditLogger appends entries to one JSON-lines file per day.
type AuditLogger struct {
	dir      string
	mutex    sync.RWMutex
	lockFile *flock.Flock
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(dataDir string) (*AuditLogger, error) {
	auditDir := filepath.Join(dataDir, "audit")
	if err := os.MkdirAll(auditDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	return &AuditLogger{
		dir:      auditDir,
		lockFile: flock.New(filepath.Join(auditDir, ".audit.lock")),
	}, nil
}

func (l *AuditLogger) fileFor(date string) string {
	return filepath.Join(l.dir, fmt.Sprintf("audit_%s.jsonl", date))
}

// Record appends an entry to the log of its day.
func (l *AuditLogger) Record(entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.lockFile.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer l.lockFile.Unlock()

	f, err := os.OpenFile(l.fileFor(entry.Timestamp.Format(auditDateLayout)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// EntriesForDate retrieves all audit entries for a day in YYYY-MM-DD form.
func (l *AuditLogger) EntriesForDate(date string) ([]AuditEntry, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.readDay(date)
}

func (l *AuditLogger) readDay(date string) ([]AuditEntry, error) {
	f, err := os.Open(l.fileFor(date))
	if os.IsNotExist(err) {
		return []AuditEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	defer f.Close()

	entries := []AuditEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse audit log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// AuditSearchCriteria defines search parameters for audit logs
type AuditSearchCriteria struct {
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Subject   string
	Action    string
	Project   string
	Success   *bool // nil = all
}

func (c AuditSearchCriteria) matches(e AuditEntry) bool {
	switch {
	case c.Subject != "" && e.Subject != c.Subject:
		return false
	case c.Action != "" && e.Action != c.Action:
		return false
	case c.Project != "" && e.Project != c.Project:
		return false
	case c.Success != nil && e.Success != *c.Success:
		return false
	}
	return true
}

// Search returns the entries within the date range matching criteria.
func (l *AuditLogger) Search(criteria AuditSearchCriteria) ([]AuditEntry, error) {
	start, err := time.Parse(auditDateLayout, criteria.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := time.Parse(auditDateLayout, criteria.EndDate)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}

	l.mutex.RLock()
	defer l.mutex.RUnlock()

	var found []AuditEntry
	for date := start; !date.After(end); date = date.AddDate(0, 0, 1) {
		entries, err := l.readDay(date.Format(auditDateLayout))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if criteria.matches(e) {
				found = append(found, e)
			}
		}
	}
	return found, nil
}

// Recent returns up to limit entries of the last seven days, newest last.
func (l *AuditLogger) Recent(limit int) ([]AuditEntry, error) {
	now := time.Now()
	entries, err := l.Search(AuditSearchCriteria{
		StartDate: now.AddDate(0, 0, -7).Format(auditDateLayout),
		EndDate:   now.Format(auditDateLayout),
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:], nil
	}
	return entries, nil
}

// Prune deletes the logs of days older than daysToKeep.
func (l *AuditLogger) Prune(daysToKeep int) (int, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	files, err := filepath.Glob(filepath.Join(l.dir, "audit_*.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("failed to list log files: %w", err)
	}
	sort.Strings(files)

	cutoff := time.Now().AddDate(0, 0, -daysToKeep).Format(auditDateLayout)
	removed := 0
	for _, file := range files {
		date := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(file), "audit_"), ".jsonl")
		if _, err := time.Parse(auditDateLayout, date); err != nil {
			continue
		}
		if date >= cutoff {
			continue
		}
		if err := os.Remove(file); err != nil {
			return removed, fmt.Errorf("failed to remove old log file: %w", err)
		}
		removed++
	}
	return removed, nil
}
