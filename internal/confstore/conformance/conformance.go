// Package conformance holds the backend-neutral property and
// scenario tests every confstore.Repo implementation must pass. Each
// backend package's own _test.go calls RunSuite with a Factory that
// knows how to construct (and, for durable backends, reopen) a Repo.
package conformance

import (
	"context"
	"errors"
	"testing"

	"github.com/epoch8/cfgrepo/internal/confstore"
)

// Factory builds fresh Repo instances for one backend so the suite
// below can run identically against memory, sqlite, and git.
type Factory struct {
	// New returns a fresh, empty Repo on branch "master".
	New func(t *testing.T) confstore.Repo
	// Reopen closes cur and returns a new handle bound to the same
	// durable location. Nil for backends with no durable location
	// (memory); RunSuite skips the persistence property in that case.
	Reopen func(t *testing.T, cur confstore.Repo) confstore.Repo
}

func ctx() context.Context { return context.Background() }

// RunSuite exercises every universal property of §8 plus the six
// named end-to-end scenarios against f.
func RunSuite(t *testing.T, f Factory) {
	t.Run("dirty_after_set_clean_after_commit", func(t *testing.T) { testDirtyAfterSetCleanAfterCommit(t, f) })
	t.Run("read_your_writes", func(t *testing.T) { testReadYourWrites(t, f) })
	t.Run("tombstone_erasure", func(t *testing.T) { testTombstoneErasure(t, f) })
	if f.Reopen != nil {
		t.Run("persistence_across_reopen", func(t *testing.T) { testPersistenceAcrossReopen(t, f) })
	}
	t.Run("branch_isolation", func(t *testing.T) { testBranchIsolation(t, f) })
	t.Run("switch_forbidden_while_dirty", func(t *testing.T) { testSwitchForbiddenWhileDirty(t, f) })
	t.Run("merge_disjoint_union", func(t *testing.T) { testMergeDisjointUnion(t, f) })
	t.Run("merge_source_wins", func(t *testing.T) { testMergeSourceWins(t, f) })
	t.Run("commit_noop_when_clean", func(t *testing.T) { testCommitNoopWhenClean(t, f) })

	t.Run("scenario_a_lifecycle", func(t *testing.T) { testScenarioA(t, f) })
	t.Run("scenario_b_isolation", func(t *testing.T) { testScenarioB(t, f) })
	t.Run("scenario_c_merge_source_wins", func(t *testing.T) { testScenarioC(t, f) })
	t.Run("scenario_d_deletion_propagates", func(t *testing.T) { testScenarioD(t, f) })
	if f.Reopen != nil {
		t.Run("scenario_e_persistence", func(t *testing.T) { testScenarioE(t, f) })
	}
	t.Run("scenario_f_dirty_guard", func(t *testing.T) { testScenarioF(t, f) })
}

func mustGet(t *testing.T, r confstore.Repo, key string) (confstore.Blob, bool) {
	t.Helper()
	v, ok, err := r.Get(ctx(), key)
	if err != nil {
		t.Fatalf("Get(%q): %v", key, err)
	}
	return v, ok
}

func mustSet(t *testing.T, r confstore.Repo, key string, value string, tombstone bool) {
	t.Helper()
	if err := r.Set(ctx(), key, confstore.Blob(value), tombstone); err != nil {
		t.Fatalf("Set(%q): %v", key, err)
	}
}

func mustCommit(t *testing.T, r confstore.Repo) {
	t.Helper()
	if err := r.Commit(ctx()); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func testDirtyAfterSetCleanAfterCommit(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	if dirty, _ := r.IsDirty(ctx()); dirty {
		t.Fatalf("fresh repo should be clean")
	}
	mustSet(t, r, "k", "v", false)
	if dirty, _ := r.IsDirty(ctx()); !dirty {
		t.Fatalf("expected dirty after set")
	}
	mustCommit(t, r)
	if dirty, _ := r.IsDirty(ctx()); dirty {
		t.Fatalf("expected clean after commit")
	}
}

func testReadYourWrites(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "k", "v", false)
	mustCommit(t, r)
	v, ok := mustGet(t, r, "k")
	if !ok || string(v) != "v" {
		t.Fatalf("got (%q, %v), want (\"v\", true)", v, ok)
	}
}

func testTombstoneErasure(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "k", "v", false)
	mustCommit(t, r)
	mustSet(t, r, "k", "", true)
	mustCommit(t, r)
	_, ok := mustGet(t, r, "k")
	if ok {
		t.Fatalf("expected key absent after tombstone commit")
	}
}

func testPersistenceAcrossReopen(t *testing.T, f Factory) {
	r := f.New(t)
	mustSet(t, r, "db", `{"host":"localhost"}`, false)
	mustCommit(t, r)

	r2 := f.Reopen(t, r)
	defer r2.Close()
	v, ok := mustGet(t, r2, "db")
	if !ok || string(v) != `{"host":"localhost"}` {
		t.Fatalf("got (%q, %v) after reopen, want the committed value", v, ok)
	}
}

func testBranchIsolation(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "k", "base", false)
	mustCommit(t, r)

	if err := r.CreateBranch(ctx(), "dev", "master"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.SwitchBranch(ctx(), "dev"); err != nil {
		t.Fatalf("SwitchBranch(dev): %v", err)
	}
	mustSet(t, r, "k", "dev-value", false)
	mustCommit(t, r)

	if err := r.SwitchBranch(ctx(), "master"); err != nil {
		t.Fatalf("SwitchBranch(master): %v", err)
	}
	v, ok := mustGet(t, r, "k")
	if !ok || string(v) != "base" {
		t.Fatalf("master should be unaffected by dev's commit, got (%q, %v)", v, ok)
	}
}

func testSwitchForbiddenWhileDirty(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "k", "v", false)
	if err := r.SwitchBranch(ctx(), "master"); err == nil {
		t.Fatalf("expected ErrDirtyStage, got nil")
	} else if !isDirtyStageError(err) {
		t.Fatalf("expected ErrDirtyStage, got %v", err)
	}
}

func testMergeDisjointUnion(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "a", "1", false)
	mustCommit(t, r)
	if err := r.CreateBranch(ctx(), "dev", "master"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.SwitchBranch(ctx(), "dev"); err != nil {
		t.Fatalf("SwitchBranch(dev): %v", err)
	}
	mustSet(t, r, "b", "2", false)
	mustCommit(t, r)

	if err := r.SwitchBranch(ctx(), "master"); err != nil {
		t.Fatalf("SwitchBranch(master): %v", err)
	}
	mustSet(t, r, "c", "3", false)
	mustCommit(t, r)

	if err := r.Merge(ctx(), "dev"); err != nil {
		t.Fatalf("Merge(dev): %v", err)
	}

	for key, want := range map[string]string{"a": "1", "b": "2", "c": "3"} {
		v, ok := mustGet(t, r, key)
		if !ok || string(v) != want {
			t.Fatalf("get(%q) = (%q, %v), want %q", key, v, ok, want)
		}
	}
}

func testMergeSourceWins(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "a", "1", false)
	mustCommit(t, r)
	if err := r.CreateBranch(ctx(), "dev", "master"); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.SwitchBranch(ctx(), "dev"); err != nil {
		t.Fatalf("SwitchBranch(dev): %v", err)
	}
	mustSet(t, r, "a", "2", false)
	mustCommit(t, r)

	if err := r.SwitchBranch(ctx(), "master"); err != nil {
		t.Fatalf("SwitchBranch(master): %v", err)
	}
	mustSet(t, r, "a", "3", false)
	mustCommit(t, r)

	if err := r.Merge(ctx(), "dev"); err != nil {
		t.Fatalf("Merge(dev): %v", err)
	}
	v, ok := mustGet(t, r, "a")
	if !ok || string(v) != "2" {
		t.Fatalf("get(a) = (%q, %v), want \"2\" (source wins)", v, ok)
	}
}

func testCommitNoopWhenClean(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "k", "v", false)
	mustCommit(t, r)
	before, _ := mustGet(t, r, "k")
	mustCommit(t, r) // second commit with nothing staged
	after, _ := mustGet(t, r, "k")
	if string(before) != string(after) {
		t.Fatalf("clean commit changed the committed value: %q -> %q", before, after)
	}
}

func testScenarioA(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "app", string([]byte{0x7B, 0x22, 0x6E, 0x22, 0x7D}), false)
	mustCommit(t, r)
	v1, _ := mustGet(t, r, "app")

	mustSet(t, r, "app", string([]byte{0x7B, 0x76, 0x3A, 0x32, 0x7D}), false)
	if dirty, _ := r.IsDirty(ctx()); !dirty {
		t.Fatalf("expected dirty after second set")
	}
	mustCommit(t, r)
	v2, _ := mustGet(t, r, "app")

	if string(v1) == string(v2) {
		t.Fatalf("expected distinct committed values across the two commits")
	}
}

func testScenarioB(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "feature", "false", false)
	mustCommit(t, r)
	if err := r.CreateBranch(ctx(), "dev", ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.SwitchBranch(ctx(), "dev"); err != nil {
		t.Fatalf("SwitchBranch: %v", err)
	}
	mustSet(t, r, "feature", "true", false)
	mustCommit(t, r)

	if err := r.SwitchBranch(ctx(), "master"); err != nil {
		t.Fatalf("SwitchBranch(master): %v", err)
	}
	v, _ := mustGet(t, r, "feature")
	if string(v) != "false" {
		t.Fatalf("master feature = %q, want \"false\"", v)
	}

	if err := r.SwitchBranch(ctx(), "dev"); err != nil {
		t.Fatalf("SwitchBranch(dev): %v", err)
	}
	v, _ = mustGet(t, r, "feature")
	if string(v) != "true" {
		t.Fatalf("dev feature = %q, want \"true\"", v)
	}
}

func testScenarioC(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "theme", "light", false)
	mustCommit(t, r)
	if err := r.CreateBranch(ctx(), "dev", ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.SwitchBranch(ctx(), "dev"); err != nil {
		t.Fatalf("SwitchBranch: %v", err)
	}
	mustSet(t, r, "theme", "dark", false)
	mustCommit(t, r)

	if err := r.SwitchBranch(ctx(), "master"); err != nil {
		t.Fatalf("SwitchBranch(master): %v", err)
	}
	mustSet(t, r, "theme", "high-contrast", false)
	mustCommit(t, r)

	if err := r.Merge(ctx(), "dev"); err != nil {
		t.Fatalf("Merge(dev): %v", err)
	}
	v, _ := mustGet(t, r, "theme")
	if string(v) != "dark" {
		t.Fatalf("theme = %q, want \"dark\"", v)
	}
}

func testScenarioD(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "k", "x", false)
	mustCommit(t, r)
	if err := r.CreateBranch(ctx(), "dev", ""); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}
	if err := r.SwitchBranch(ctx(), "dev"); err != nil {
		t.Fatalf("SwitchBranch: %v", err)
	}
	mustSet(t, r, "k", "", true)
	mustCommit(t, r)

	if err := r.SwitchBranch(ctx(), "master"); err != nil {
		t.Fatalf("SwitchBranch(master): %v", err)
	}
	if err := r.Merge(ctx(), "dev"); err != nil {
		t.Fatalf("Merge(dev): %v", err)
	}
	_, ok := mustGet(t, r, "k")
	if ok {
		t.Fatalf("expected k absent after merging a source-side deletion")
	}
}

func testScenarioE(t *testing.T, f Factory) {
	r := f.New(t)
	mustSet(t, r, "db", `{"host":"localhost"}`, false)
	mustCommit(t, r)

	r2 := f.Reopen(t, r)
	defer r2.Close()
	v, ok := mustGet(t, r2, "db")
	if !ok || string(v) != `{"host":"localhost"}` {
		t.Fatalf("got (%q, %v), want the committed value after reopen", v, ok)
	}
}

func testScenarioF(t *testing.T, f Factory) {
	r := f.New(t)
	defer r.Close()

	mustSet(t, r, "x", "1", false)
	if err := r.SwitchBranch(ctx(), "anything"); err == nil || !isDirtyStageError(err) {
		t.Fatalf("expected ErrDirtyStage, got %v", err)
	}
	v, ok := mustGet(t, r, "x")
	if !ok || string(v) != "1" {
		t.Fatalf("staged value should survive a rejected switch, got (%q, %v)", v, ok)
	}
}

func isDirtyStageError(err error) bool {
	return errors.Is(err, confstore.ErrDirtyStage)
}
