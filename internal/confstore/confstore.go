// Package confstore defines the backend-neutral contract for the
// branched, versioned configuration store: blobs, snapshots, stages,
// branches, and the Repo handle that ties them together.
//
// Three backends implement Repo: memory (internal/confstore/memory),
// sqlite (internal/confstore/sqlite), and git (internal/git). Callers
// depend only on this package's interface, never on a backend type.
package confstore

import "context"

// Blob is an opaque, immutable byte sequence. Nil and empty slices are
// both valid blob contents; callers should not rely on distinguishing
// them except through the key's presence or absence.
type Blob []byte

// Branch describes a named pointer into a repo's commit history.
type Branch struct {
	Name       string
	HasHead    bool   // false for a branch with no committed snapshot yet
	SnapshotID string // backend-specific opaque id; empty when !HasHead
}

// Repo is the public operation set every backend must satisfy. Each
// method's comment below gives its semantics.
//
// A Repo is not safe for concurrent use by multiple goroutines; callers
// that share a backing store across goroutines must serialize access
// to each Repo instance themselves.
type Repo interface {
	// Get returns the effective value of key on the current branch:
	// stage overrides win over the parent snapshot. ok is false if the
	// key is absent (never set, or tombstoned).
	Get(ctx context.Context, key string) (value Blob, ok bool, err error)

	// Set installs a pending override for key. Passing a nil Blob with
	// tombstone=true records a deletion; otherwise value replaces the
	// key's content in the stage. Set never fails except on backend I/O.
	Set(ctx context.Context, key string, value Blob, tombstone bool) error

	// IsDirty reports whether the stage has any pending overrides.
	IsDirty(ctx context.Context) (bool, error)

	// Commit freezes the stage into a new snapshot and advances the
	// current branch to it. A no-op when the stage is clean.
	Commit(ctx context.Context) error

	// SwitchBranch re-points the repo at branch and resets the stage.
	// Returns ErrDirtyStage if the current stage has pending overrides.
	SwitchBranch(ctx context.Context, branch string) error

	// CreateBranch creates branch newBranch pointing at the current
	// head of from (the current branch, if from is empty).
	CreateBranch(ctx context.Context, newBranch, from string) error

	// ListBranches returns all known branch names in a stable, but
	// otherwise unspecified, order.
	ListBranches(ctx context.Context) ([]string, error)

	// Merge applies source's state into the current branch per the
	// fixed source-wins/union policy, and commits the result.
	Merge(ctx context.Context, source string) error

	// Reload refreshes the repo's view of the current branch head from
	// durable storage. Best-effort for remote-backed backends.
	Reload(ctx context.Context) error

	// CurrentBranch returns the name of the branch the repo is bound to.
	CurrentBranch() string

	// Close releases any resources held by the repo (db handles, file
	// locks, subprocess state). Safe to call on an already-closed repo.
	Close() error
}
