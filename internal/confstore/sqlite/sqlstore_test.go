package sqlite_test

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/epoch8/cfgrepo/internal/confstore"
	"github.com/epoch8/cfgrepo/internal/confstore/conformance"
	"github.com/epoch8/cfgrepo/internal/confstore/sqlite"
)

func TestConformance(t *testing.T) {
	conformance.RunSuite(t, conformance.Factory{
		New: func(t *testing.T) confstore.Repo {
			r, err := sqlite.OpenFile(filepath.Join(t.TempDir(), "store.db"), "master")
			if err != nil {
				t.Fatalf("OpenFile: %v", err)
			}
			return r
		},
		Reopen: func(t *testing.T, cur confstore.Repo) confstore.Repo {
			r := cur.(*sqlite.Repo)
			path := r.Path()
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			reopened, err := sqlite.OpenFile(path, "master")
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			return reopened
		},
	})
}

func TestOpenBootstrapsMaster(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	r, err := sqlite.Open(db, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.CurrentBranch() != "master" {
		t.Fatalf("CurrentBranch() = %q, want master", r.CurrentBranch())
	}
}
