package project

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"evalgo.org/sparqlfed/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	return store
}

func TestNewStore(t *testing.T) {
	tempDir := t.TempDir()

	store, err := NewStore(tempDir)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	if store == nil {
		t.Fatal("NewStore() returned nil store")
	}

	if _, err := os.Stat(filepath.Join(tempDir, "projects")); os.IsNotExist(err) {
		t.Error("NewStore() did not create projects directory")
	}
}

func TestStore_LoadEmpty(t *testing.T) {
	store := newTestStore(t)

	db, err := store.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if db.Version != SchemaVersion {
		t.Errorf("Load() version = %v, want %v", db.Version, SchemaVersion)
	}
	if len(db.Projects) != 0 {
		t.Errorf("Load() projects count = %v, want 0", len(db.Projects))
	}
}

func TestStore_Create(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name      string
		project   string
		endpoints []string
		wantErr   bool
	}{
		{"Valid project", "dbpedia", []string{"http://dbpedia.org/sparql"}, false},
		{"Empty endpoint list", "empty", nil, false},
		{"Duplicate project", "dbpedia", nil, true},
		{"Invalid name", "a b", nil, true},
		{"Empty name", "", nil, true},
		{"Invalid endpoint", "broken", []string{"ftp://example.org"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := store.Create(tt.project, tt.endpoints...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if p.Name() != tt.project {
				t.Errorf("Create() name = %v, want %v", p.Name(), tt.project)
			}
			if len(p.Endpoints()) != len(tt.endpoints) {
				t.Errorf("Create() endpoints = %v, want %v", len(p.Endpoints()), len(tt.endpoints))
			}
		})
	}

	_, err := store.Create("dbpedia")
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("Create() duplicate error = %T, want *domain.ConflictError", err)
	}
}

func TestStore_GetAndList(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"wikidata", "dbpedia"} {
		if _, err := store.Create(name); err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
	}

	p, err := store.Get("dbpedia")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if p.Name() != "dbpedia" {
		t.Errorf("Get() name = %v, want dbpedia", p.Name())
	}

	_, err = store.Get("missing")
	if !domain.IsNotFound(err) {
		t.Errorf("Get() missing error = %v, want not found", err)
	}
	_, err = store.Get("")
	if !errors.Is(err, domain.ErrEmptyProjectName) {
		t.Errorf("Get() empty error = %v, want ErrEmptyProjectName", err)
	}

	projects, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(projects) != 2 || projects[0].Name() != "dbpedia" || projects[1].Name() != "wikidata" {
		t.Errorf("List() = %v, want [dbpedia wikidata]", projects)
	}
}

func TestStore_Endpoints(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("p"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	ep, added, err := store.AddEndpoint("p", "http://a.example.org/sparql")
	if err != nil || !added {
		t.Fatalf("AddEndpoint() = %v, %v, want added", added, err)
	}
	_, added, err = store.AddEndpoint("p", "http://a.example.org/sparql")
	if err != nil || added {
		t.Errorf("AddEndpoint() duplicate = %v, %v, want not added", added, err)
	}
	if _, _, err := store.AddEndpoint("p", "not a url"); err == nil {
		t.Error("AddEndpoint() accepted an invalid location")
	}
	if _, _, err := store.AddEndpoint("missing", "http://b.example.org/sparql"); !domain.IsNotFound(err) {
		t.Errorf("AddEndpoint() missing project error = %v", err)
	}

	p, _ := store.Get("p")
	if len(p.Endpoints()) != 1 {
		t.Fatalf("endpoints = %d, want 1", len(p.Endpoints()))
	}

	if err := store.RemoveEndpoint("p", ep.ID()); err != nil {
		t.Fatalf("RemoveEndpoint() failed: %v", err)
	}
	var unknown *domain.UnknownEndpointError
	if err := store.RemoveEndpoint("p", ep.ID()); !errors.As(err, &unknown) {
		t.Errorf("RemoveEndpoint() twice error = %v, want UnknownEndpointError", err)
	}
}

func TestStore_DeletePersists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	if _, err := store.Create("a", "http://a.example.org/sparql"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := store.Create("b"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if err := store.Delete("b"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete("b"); !domain.IsNotFound(err) {
		t.Errorf("Delete() twice error = %v, want not found", err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	projects, err := reopened.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(projects) != 1 || projects[0].Name() != "a" || len(projects[0].Endpoints()) != 1 {
		t.Errorf("List() after reopen = %v", projects)
	}

	if _, err := os.Stat(filepath.Join(dir, "projects", "projects.json.backup")); err != nil {
		t.Errorf("no backup written: %v", err)
	}
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create("p"); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc := "http://ep" + string(rune('a'+i)) + ".example.org/sparql"
			if _, _, err := store.AddEndpoint("p", loc); err != nil {
				t.Errorf("AddEndpoint() failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	p, err := store.Get("p")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(p.Endpoints()) != 20 {
		t.Errorf("endpoints = %d, want 20", len(p.Endpoints()))
	}
}
