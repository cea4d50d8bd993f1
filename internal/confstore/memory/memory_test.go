package memory_test

import (
	"context"
	"testing"

	"github.com/epoch8/cfgrepo/internal/confstore"
	"github.com/epoch8/cfgrepo/internal/confstore/conformance"
	"github.com/epoch8/cfgrepo/internal/confstore/memory"
)

func TestConformance(t *testing.T) {
	conformance.RunSuite(t, conformance.Factory{
		New: func(t *testing.T) confstore.Repo {
			r, err := memory.Open(memory.NewStore(nil), "master")
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			return r
		},
		// Memory has no durable location to reopen; conformance.RunSuite
		// skips the persistence property when Reopen is nil.
	})
}

func TestCreateBranchIndependence(t *testing.T) {
	store := memory.NewStore(map[string]confstore.Blob{"k": []byte("base")})
	r, err := memory.Open(store, "master")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	if err := r.CreateBranch(ctx, "dev", "master"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.Set(ctx, "k", []byte("changed-on-master"), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := r.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	dev, err := memory.Open(store, "dev")
	if err != nil {
		t.Fatalf("Open(dev): %v", err)
	}
	defer dev.Close()
	v, ok, err := dev.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || string(v) != "base" {
		t.Fatalf("dev branch should be unaffected by master's later commit, got (%q, %v)", v, ok)
	}
}
