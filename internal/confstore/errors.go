package confstore

import (
	"errors"
	"fmt"
)

// Sentinel errors callers can match with errors.Is. Wrapping errors
// returned by backends should chain to one of these where the failure
// maps onto a contract-level condition; otherwise wrap ErrBackendIO.
var (
	// ErrDirtyStage is returned by SwitchBranch when the stage has
	// pending overrides.
	ErrDirtyStage = errors.New("confstore: stage has uncommitted changes")

	// ErrBranchExists is returned by CreateBranch when the requested
	// name already names a branch.
	ErrBranchExists = errors.New("confstore: branch already exists")

	// ErrMissingBranch is returned when branching from, switching to,
	// or merging an unknown branch.
	ErrMissingBranch = errors.New("confstore: branch not found")

	// ErrMergeFailed is returned when a merge could not complete: a
	// failed step of the git backend's merge, or the sqlite backend
	// failing to stage the merged keys.
	ErrMergeFailed = errors.New("confstore: merge failed")

	// ErrBackendIO wraps a transport, database, or subprocess failure
	// that is not otherwise classified.
	ErrBackendIO = errors.New("confstore: backend I/O error")

	// ErrInvalidResume names the failure of resuming a committed
	// snapshot as a stage. No backend returns it: sqlite.Open always
	// allocates a fresh stage and takes no snapshot id to resume.
	ErrInvalidResume = errors.New("confstore: cannot resume a committed snapshot as a stage")
)

// BranchError decorates one of the branch-related sentinels with the
// branch name involved, so callers can report a precise message while
// still matching with errors.Is against the sentinel.
type BranchError struct {
	Branch string
	Err    error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("confstore: branch %q: %s", e.Branch, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }

// NewMissingBranchError wraps ErrMissingBranch with the branch name.
func NewMissingBranchError(branch string) error {
	return &BranchError{Branch: branch, Err: ErrMissingBranch}
}

// NewBranchExistsError wraps ErrBranchExists with the branch name.
func NewBranchExistsError(branch string) error {
	return &BranchError{Branch: branch, Err: ErrBranchExists}
}
