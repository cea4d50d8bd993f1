// Package memory implements confstore.Repo entirely in process memory.
// It is the reference backend: no I/O, no durability, and the contract
// it must satisfy is exactly the one every other backend satisfies.
//
// A Store is the shared state multiple Repo handles bind to (think of
// it as the bare "server-side" repository); a Repo is one caller's
// branch selection plus its pending stage. The design assumes a single
// process with a single writing thread — concurrent use of one Repo
// from multiple goroutines is the caller's problem, same as the
// relational and VCS backends (see the confstore.Repo doc comment).
package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/epoch8/cfgrepo/internal/confstore"
	"github.com/epoch8/cfgrepo/internal/merge"
)

// entry is a key's state as committed to a branch. Unlike a plain
// map[string]Blob, a committed branch never drops a key on deletion —
// it keeps a tombstone entry instead. That is what lets Merge tell "k
// was deleted on source" apart from "k was never on source" once
// source's edit has already been committed (see DESIGN.md).
type entry struct {
	value     confstore.Blob
	tombstone bool
}

func (e entry) toMergeEntry() merge.Entry {
	return merge.Entry{Value: e.value, Tombstone: e.tombstone}
}

// Store is the shared backing state for one or more Repo handles.
// The zero value is not usable; construct with NewStore.
type Store struct {
	branches map[string]map[string]entry // branch name -> key -> entry
	heads    map[string]string           // branch name -> opaque head id, for display only
}

// NewStore creates a Store with a single empty "master" branch. seed,
// if non-nil, becomes master's initial committed state.
func NewStore(seed map[string]confstore.Blob) *Store {
	s := &Store{
		branches: map[string]map[string]entry{},
		heads:    map[string]string{},
	}
	master := map[string]entry{}
	for k, v := range seed {
		master[k] = entry{value: v}
	}
	s.branches["master"] = master
	s.heads["master"] = newHeadID()
	return s
}

func newHeadID() string {
	return "mem-" + uuid.NewString()
}

// Repo is a caller's handle into a Store: a branch selection plus a
// pending stage of overrides not yet committed.
type Repo struct {
	store     *Store
	branch    string
	overrides map[string]entry
}

// Open binds a new Repo to store on the given branch (default
// "master" if empty). The branch must already exist.
func Open(store *Store, branch string) (*Repo, error) {
	if branch == "" {
		branch = "master"
	}
	if _, ok := store.branches[branch]; !ok {
		return nil, confstore.NewMissingBranchError(branch)
	}
	return &Repo{store: store, branch: branch, overrides: map[string]entry{}}, nil
}

var _ confstore.Repo = (*Repo)(nil)

func (r *Repo) CurrentBranch() string { return r.branch }

func (r *Repo) Get(_ context.Context, key string) (confstore.Blob, bool, error) {
	if e, ok := r.overrides[key]; ok {
		if e.tombstone {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	if e, ok := r.store.branches[r.branch][key]; ok && !e.tombstone {
		return e.value, true, nil
	}
	return nil, false, nil
}

func (r *Repo) Set(_ context.Context, key string, value confstore.Blob, tombstone bool) error {
	// A tombstone must always be recorded as an override, even if the
	// stage never tracked this key before: the parent branch may still
	// have a committed value for it, and only a staged tombstone can
	// shadow that value once this Set is committed.
	r.overrides[key] = entry{value: value, tombstone: tombstone}
	return nil
}

func (r *Repo) IsDirty(context.Context) (bool, error) {
	return len(r.overrides) > 0, nil
}

func (r *Repo) Commit(context.Context) error {
	if len(r.overrides) == 0 {
		return nil
	}
	head := r.store.branches[r.branch]
	next := make(map[string]entry, len(head)+len(r.overrides))
	for k, v := range head {
		next[k] = v
	}
	for k, v := range r.overrides {
		next[k] = v
	}
	r.store.branches[r.branch] = next
	r.store.heads[r.branch] = newHeadID()
	r.overrides = map[string]entry{}
	return nil
}

func (r *Repo) SwitchBranch(_ context.Context, branch string) error {
	if len(r.overrides) > 0 {
		return confstore.ErrDirtyStage
	}
	if _, ok := r.store.branches[branch]; !ok {
		return confstore.NewMissingBranchError(branch)
	}
	r.branch = branch
	r.overrides = map[string]entry{}
	return nil
}

func (r *Repo) CreateBranch(_ context.Context, newBranch, from string) error {
	if from == "" {
		from = r.branch
	}
	if _, exists := r.store.branches[newBranch]; exists {
		return confstore.NewBranchExistsError(newBranch)
	}
	source, ok := r.store.branches[from]
	if !ok {
		return confstore.NewMissingBranchError(from)
	}
	// Shallow copy: entries hold immutable byte slices, so sharing
	// them between branches is safe. Per DESIGN.md's resolution of
	// the spec's open question (b), the two branches are independent
	// from this point on — later edits to "from" never leak into
	// "newBranch" because neither shares the *map* itself.
	dup := make(map[string]entry, len(source))
	for k, v := range source {
		dup[k] = v
	}
	r.store.branches[newBranch] = dup
	r.store.heads[newBranch] = r.store.heads[from]
	return nil
}

func (r *Repo) ListBranches(context.Context) ([]string, error) {
	names := make([]string, 0, len(r.store.branches))
	for name := range r.store.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Repo) Merge(ctx context.Context, source string) error {
	if source == r.branch {
		return nil
	}
	sourceData, ok := r.store.branches[source]
	if !ok {
		return confstore.NewMissingBranchError(source)
	}

	sourceEntries := make(map[string]merge.Entry, len(sourceData))
	for k, v := range sourceData {
		sourceEntries[k] = v.toMergeEntry()
	}
	targetData := r.store.branches[r.branch]
	targetEntries := make(map[string]merge.Entry, len(targetData))
	for k, v := range targetData {
		targetEntries[k] = v.toMergeEntry()
	}

	result := merge.SourceWins(targetEntries, sourceEntries, source, r.branch)

	// Replay just the keys source actually changed as stage overrides;
	// Commit inherits everything else straight from the current head,
	// same trick the sqlite backend's finalize step uses.
	for _, key := range result.ChangedKeys {
		e := result.Merged[key]
		if err := r.Set(ctx, key, e.Value, e.Tombstone); err != nil {
			return fmt.Errorf("merge %q into %q: %w", source, r.branch, err)
		}
	}
	return r.Commit(ctx)
}

func (r *Repo) Reload(context.Context) error {
	// No cached local view to refresh: Get always reads straight from
	// the shared Store, so a reload is a no-op.
	return nil
}

func (r *Repo) Close() error { return nil }
