package git_test

import (
	"context"
	"os/exec"
	"testing"

	"github.com/epoch8/cfgrepo/internal/confstore"
	"github.com/epoch8/cfgrepo/internal/confstore/conformance"
	"github.com/epoch8/cfgrepo/internal/git"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not found on PATH")
	}
}

func TestConformance(t *testing.T) {
	skipIfNoGit(t)
	conformance.RunSuite(t, conformance.Factory{
		New: func(t *testing.T) confstore.Repo {
			dir := t.TempDir()
			r, err := git.Open(context.Background(), dir, git.Options{Branch: "master"})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			return r
		},
		Reopen: func(t *testing.T, cur confstore.Repo) confstore.Repo {
			r := cur.(*git.Repo)
			branch := r.CurrentBranch()
			path := r.Path()
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			reopened, err := git.Open(context.Background(), path, git.Options{Branch: branch})
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			return reopened
		},
	})
}

func TestOpenBootstrapsMaster(t *testing.T) {
	skipIfNoGit(t)
	dir := t.TempDir()
	r, err := git.Open(context.Background(), dir, git.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.CurrentBranch() != "master" {
		t.Fatalf("CurrentBranch() = %q, want master", r.CurrentBranch())
	}
}

func TestCreateBranchNeverSwitches(t *testing.T) {
	skipIfNoGit(t)
	dir := t.TempDir()
	r, err := git.Open(context.Background(), dir, git.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	if err := r.CreateBranch(ctx, "dev", "master"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if r.CurrentBranch() != "master" {
		t.Fatalf("CreateBranch must not switch the working tree; still on %q", r.CurrentBranch())
	}
}
