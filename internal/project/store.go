// Package project persists federation projects and their endpoint lists.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"evalgo.org/sparqlfed/internal/domain"
)

const (
	SchemaVersion = "1.0.0"
)

// Database is the on-disk layout of projects.json.
type Database struct {
	Version   string                     `json:"version"`
	Projects  map[string]*domain.Project `json:"projects"` // Key: project name
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Store manages project persistence to the filesystem. Mutations hold an
// exclusive file lock for the whole read-modify-write cycle, so several
// processes sharing a data directory do not lose each other's changes.
type Store struct {
	dataDir  string
	lockFile *flock.Flock
	mu       sync.Mutex
}

// NewStore creates a new project store below dataDir.
func NewStore(dataDir string) (*Store, error) {
	projectsDir := filepath.Join(dataDir, "projects")
	if err := os.MkdirAll(projectsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create projects directory: %w", err)
	}

	return &Store{
		dataDir:  dataDir,
		lockFile: flock.New(filepath.Join(projectsDir, ".projects.lock")),
	}, nil
}

func (s *Store) filePath() string {
	return filepath.Join(s.dataDir, "projects", "projects.json")
}

// Load reads the project database. A missing file is an empty database.
func (s *Store) Load() (*Database, error) {
	data, err := os.ReadFile(s.filePath())
	if os.IsNotExist(err) {
		return &Database{
			Version:   SchemaVersion,
			Projects:  make(map[string]*domain.Project),
			UpdatedAt: time.Now(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projects file: %w", err)
	}

	var db Database
	if err := json.Unmarshal(data, &db); err != nil {
		return nil, fmt.Errorf("failed to parse projects file: %w", err)
	}
	if db.Projects == nil {
		db.Projects = make(map[string]*domain.Project)
	}
	return &db, nil
}

// save writes db atomically. The caller holds the file lock.
func (s *Store) save(db *Database) error {
	filePath := s.filePath()

	// Keep the previous version next to the new one
	if data, err := os.ReadFile(filePath); err == nil {
		_ = os.WriteFile(filePath+".backup", data, 0600)
	}

	db.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(db, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal database: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filePath); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// update runs fn on the current database and saves the result unless fn fails.
func (s *Store) update(fn func(db *Database) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lockFile.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer s.lockFile.Unlock()

	db, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(db); err != nil {
		return err
	}
	return s.save(db)
}

// Get returns the named project.
func (s *Store) Get(name string) (*domain.Project, error) {
	if name == "" {
		return nil, domain.NewUnknownProjectError(name)
	}
	db, err := s.Load()
	if err != nil {
		return nil, err
	}
	p, exists := db.Projects[name]
	if !exists {
		return nil, domain.NewUnknownProjectError(name)
	}
	return p, nil
}

// List returns all projects sorted by name.
func (s *Store) List() ([]*domain.Project, error) {
	db, err := s.Load()
	if err != nil {
		return nil, err
	}
	projects := make([]*domain.Project, 0, len(db.Projects))
	for _, p := range db.Projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Name() < projects[j].Name()
	})
	return projects, nil
}

// Create adds an empty project with the given endpoints.
func (s *Store) Create(name string, locations ...string) (*domain.Project, error) {
	p, err := domain.NewProject(name)
	if err != nil {
		return nil, err
	}
	for _, loc := range locations {
		ep, err := domain.ParseEndpoint(loc)
		if err != nil {
			return nil, err
		}
		p.AddEndpoint(ep)
	}

	err = s.update(func(db *Database) error {
		if _, exists := db.Projects[name]; exists {
			return domain.NewConflictError("project", name)
		}
		db.Projects[name] = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a project.
func (s *Store) Delete(name string) error {
	return s.update(func(db *Database) error {
		if _, exists := db.Projects[name]; !exists {
			return domain.NewUnknownProjectError(name)
		}
		delete(db.Projects, name)
		return nil
	})
}

// AddEndpoint registers location with a project. Adding a location that is
// already registered is not an error; added reports whether it was new.
func (s *Store) AddEndpoint(name, location string) (ep domain.Endpoint, added bool, err error) {
	ep, err = domain.ParseEndpoint(location)
	if err != nil {
		return ep, false, err
	}
	err = s.update(func(db *Database) error {
		p, exists := db.Projects[name]
		if !exists {
			return domain.NewUnknownProjectError(name)
		}
		added = p.AddEndpoint(ep)
		return nil
	})
	return ep, added, err
}

// RemoveEndpoint drops an endpoint from a project by identifier.
func (s *Store) RemoveEndpoint(name, id string) error {
	return s.update(func(db *Database) error {
		p, exists := db.Projects[name]
		if !exists {
			return domain.NewUnknownProjectError(name)
		}
		if !p.RemoveEndpoint(id) {
			return &domain.UnknownEndpointError{Project: name, ID: id}
		}
		return nil
	})
}
