// Package git implements confstore.Repo on top of a git working tree:
// every key is a file, branches are git branches, and Commit/Merge
// delegate to the git binary via os/exec rather than reimplementing
// version control. It is grounded on the worktree-management idiom in
// the wider codebase's own internal git package, trimmed to the parts
// a config store needs (no worktree/sparse-checkout machinery, since
// here the whole working tree already IS the config content).
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/epoch8/cfgrepo/internal/confstore"
)

// dataDir is the subdirectory of the working tree keys are stored
// under, keeping the repo's own bookkeeping (.git, the lock file) out
// of the key namespace.
const dataDir = "data"

// validBranchName rejects the git ref-name characters that would
// either be rejected by git anyway or are awkward to pass safely as a
// bare exec.Command argument (no shell is involved, but a leading
// "-" could still be parsed as a flag by git itself).
var validBranchName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

func checkBranchName(name string) error {
	if name == "" || !validBranchName.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid branch name %q", confstore.ErrBackendIO, name)
	}
	return nil
}

// Repo is a confstore.Repo backed by a git working tree on local
// disk. Only one Repo should hold the lock on a given path at a time;
// concurrent processes block on Open until the holder calls Close.
type Repo struct {
	path   string
	branch string
	remote string // empty if this working tree has no configured remote
	lock   *flock.Flock
}

var _ confstore.Repo = (*Repo)(nil)

// Options configures Open.
type Options struct {
	// RemoteURL, if set, is cloned into Path when Path is not yet a
	// git repository. Push/pull/fetch are skipped entirely when this
	// and the working tree's existing "origin" are both unset.
	RemoteURL string
	// Branch is the branch to check out (default "master").
	Branch string
}

// Open acquires an exclusive lock on path and returns a Repo bound to
// it, cloning or initializing the working tree as needed.
func Open(ctx context.Context, path string, opts Options) (*Repo, error) {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", confstore.ErrBackendIO, path, err)
	}

	lock := flock.New(filepath.Join(path, ".cfgrepo.lock"))
	locked, err := lock.TryLockContext(ctx, flock.DefaultDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: locking %s: %v", confstore.ErrBackendIO, path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is held by another process", confstore.ErrBackendIO, path)
	}

	r := &Repo{path: path, remote: opts.RemoteURL}
	if err := r.initOrClone(ctx); err != nil {
		lock.Unlock()
		return nil, err
	}
	r.lock = lock

	branch := opts.Branch
	if branch == "" {
		branch = "master"
	}
	if err := checkBranchName(branch); err != nil {
		lock.Unlock()
		return nil, err
	}
	if err := r.checkoutOrCreate(ctx, branch); err != nil {
		lock.Unlock()
		return nil, err
	}
	r.branch = branch
	return r, nil
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}

func (r *Repo) initOrClone(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(r.path, ".git")); err == nil {
		return nil // already a repo
	}

	entries, err := os.ReadDir(r.path)
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}

	if r.remote != "" && len(entries) == 0 {
		if out, err := r.run(ctx, "clone", r.remote, "."); err != nil {
			return fmt.Errorf("%w: git clone: %v\n%s", confstore.ErrBackendIO, err, out)
		}
		return nil
	}

	if out, err := r.run(ctx, "init"); err != nil {
		return fmt.Errorf("%w: git init: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	if r.remote != "" {
		if out, err := r.run(ctx, "remote", "add", "origin", r.remote); err != nil {
			return fmt.Errorf("%w: git remote add: %v\n%s", confstore.ErrBackendIO, err, out)
		}
	}
	if err := os.MkdirAll(filepath.Join(r.path, dataDir), 0o750); err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	keep := filepath.Join(r.path, dataDir, ".keep")
	if _, err := os.Stat(keep); os.IsNotExist(err) {
		if err := os.WriteFile(keep, nil, 0o640); err != nil {
			return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
		}
	}
	if out, err := r.run(ctx, "add", "-A"); err != nil {
		return fmt.Errorf("%w: git add: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	if out, err := r.run(ctx, "commit", "-m", "Initial commit", "--allow-empty"); err != nil {
		return fmt.Errorf("%w: git commit: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	if out, err := r.run(ctx, "branch", "-M", "master"); err != nil {
		return fmt.Errorf("%w: git branch -M: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	return nil
}

// checkoutOrCreate switches the working tree to branch, creating it
// from the current HEAD (or a matching remote branch, if one exists
// and no local branch does) when it does not already exist.
func (r *Repo) checkoutOrCreate(ctx context.Context, branch string) error {
	if _, err := r.run(ctx, "checkout", branch); err == nil {
		return nil
	}
	if r.hasOrigin(ctx) {
		if _, err := r.run(ctx, "checkout", "-b", branch, "--track", "origin/"+branch); err == nil {
			return nil
		}
	}
	if out, err := r.run(ctx, "checkout", "-b", branch); err != nil {
		return fmt.Errorf("%w: checkout %s: %v\n%s", confstore.ErrBackendIO, branch, err, out)
	}
	return nil
}

func (r *Repo) CurrentBranch() string { return r.branch }

// Path returns the working-tree directory this Repo was opened on.
func (r *Repo) Path() string { return r.path }

// keyPath maps a config key onto a file under dataDir. Keys are
// expected to look like relative paths ("service/db.yaml"); a ".."
// component is rejected so a malicious key cannot escape dataDir.
func (r *Repo) keyPath(key string) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: invalid key %q", confstore.ErrBackendIO, key)
	}
	return filepath.Join(r.path, dataDir, clean), nil
}

func (r *Repo) Get(_ context.Context, key string) (confstore.Blob, bool, error) {
	p, err := r.keyPath(key)
	if err != nil {
		return nil, false, err
	}
	content, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: reading %s: %v", confstore.ErrBackendIO, key, err)
	}
	return confstore.Blob(content), true, nil
}

func (r *Repo) Set(_ context.Context, key string, value confstore.Blob, tombstone bool) error {
	p, err := r.keyPath(key)
	if err != nil {
		return err
	}
	if tombstone {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing %s: %v", confstore.ErrBackendIO, key, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	if err := os.WriteFile(p, value, 0o640); err != nil {
		return fmt.Errorf("%w: writing %s: %v", confstore.ErrBackendIO, key, err)
	}
	return nil
}

func (r *Repo) IsDirty(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "status", "--porcelain", "--", dataDir)
	if err != nil {
		return false, fmt.Errorf("%w: git status: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	return strings.TrimSpace(out) != "", nil
}

func (r *Repo) Commit(ctx context.Context) error {
	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if out, err := r.run(ctx, "add", "-A", "--", dataDir); err != nil {
		return fmt.Errorf("%w: git add: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	if out, err := r.run(ctx, "commit", "-m", "Update config"); err != nil {
		return fmt.Errorf("%w: git commit: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	return r.pushIfRemote(ctx)
}

func (r *Repo) pushIfRemote(ctx context.Context) error {
	if r.remote == "" && !r.hasOrigin(ctx) {
		return nil
	}
	if out, err := r.run(ctx, "push", "origin", r.branch); err != nil {
		return fmt.Errorf("%w: git push: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	return nil
}

func (r *Repo) hasOrigin(ctx context.Context) bool {
	_, err := r.run(ctx, "remote", "get-url", "origin")
	return err == nil
}

func (r *Repo) SwitchBranch(ctx context.Context, branch string) error {
	if err := checkBranchName(branch); err != nil {
		return err
	}
	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return confstore.ErrDirtyStage
	}
	if out, err := r.run(ctx, "checkout", branch); err != nil {
		return fmt.Errorf("%w: %v\n%s", confstore.NewMissingBranchError(branch), err, out)
	}
	r.branch = branch
	return nil
}

func (r *Repo) CreateBranch(ctx context.Context, newBranch, from string) error {
	if err := checkBranchName(newBranch); err != nil {
		return err
	}
	if from == "" {
		from = r.branch
	}
	if _, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+newBranch); err == nil {
		return confstore.NewBranchExistsError(newBranch)
	}
	// git branch <new> <start-point>, never checkout -b: per DESIGN.md's
	// resolution of the spec's open question (a), CreateBranch never
	// switches the caller onto the new branch.
	if out, err := r.run(ctx, "branch", newBranch, from); err != nil {
		return fmt.Errorf("%w: git branch: %v\n%s", confstore.NewMissingBranchError(from), err, out)
	}
	return nil
}

func (r *Repo) ListBranches(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, fmt.Errorf("%w: git branch: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Merge implements §4.5's "source wins" policy byte-exactly rather
// than via git's `-X theirs`, which resolves textual hunks and so can
// diverge from whole-file source-wins on non-trivial conflicts (see
// DESIGN.md's resolution of the spec's open question (c)). The merge
// commit itself still carries both branches as parents — recorded via
// `git merge -s ours`, which keeps history honest while leaving
// content untouched — and then every key the source actually changed
// since the common ancestor is overwritten (or removed, for a
// source-side deletion) from the source tree before the commit is
// finalized.
func (r *Repo) Merge(ctx context.Context, source string) error {
	if source == r.branch {
		return nil
	}
	if err := checkBranchName(source); err != nil {
		return err
	}
	if r.remote != "" || r.hasOrigin(ctx) {
		_, _ = r.run(ctx, "fetch", "origin") // best effort; local merge still proceeds if this fails
	}
	if _, err := r.run(ctx, "rev-parse", "--verify", "--quiet", source+"^{commit}"); err != nil {
		return confstore.NewMissingBranchError(source)
	}

	changed, err := r.changedPaths(ctx, source)
	if err != nil {
		return err
	}

	if out, err := r.run(ctx, "merge", "--no-commit", "--no-ff", "-s", "ours", source); err != nil {
		_, _ = r.run(ctx, "merge", "--abort")
		return fmt.Errorf("%w: git merge -s ours %s: %v\n%s", confstore.ErrMergeFailed, source, err, out)
	}

	for _, path := range changed {
		content, ok, err := r.showBlob(ctx, source, path)
		if err != nil {
			_, _ = r.run(ctx, "merge", "--abort")
			return fmt.Errorf("%w: reading %s from %s: %v", confstore.ErrMergeFailed, path, source, err)
		}
		full := filepath.Join(r.path, path)
		if !ok {
			if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
				_, _ = r.run(ctx, "merge", "--abort")
				return fmt.Errorf("%w: removing %s: %v", confstore.ErrMergeFailed, path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
			_, _ = r.run(ctx, "merge", "--abort")
			return fmt.Errorf("%w: %v", confstore.ErrMergeFailed, err)
		}
		if err := os.WriteFile(full, content, 0o640); err != nil {
			_, _ = r.run(ctx, "merge", "--abort")
			return fmt.Errorf("%w: writing %s: %v", confstore.ErrMergeFailed, path, err)
		}
	}

	if out, err := r.run(ctx, "add", "-A", "--", dataDir); err != nil {
		_, _ = r.run(ctx, "merge", "--abort")
		return fmt.Errorf("%w: git add: %v\n%s", confstore.ErrMergeFailed, err, out)
	}
	if out, err := r.run(ctx, "commit", "--allow-empty", "-m", fmt.Sprintf("Merge %s", source)); err != nil {
		return fmt.Errorf("%w: git commit: %v\n%s", confstore.ErrMergeFailed, err, out)
	}
	return r.pushIfRemote(ctx)
}

// changedPaths returns the data-dir paths source changed (added,
// modified, or deleted) relative to its merge-base with the current
// branch. If the two branches share no history, every path source
// currently defines counts as changed.
func (r *Repo) changedPaths(ctx context.Context, source string) ([]string, error) {
	base, err := r.run(ctx, "merge-base", "HEAD", source)
	base = strings.TrimSpace(base)
	var out string
	if err != nil || base == "" {
		out, err = r.run(ctx, "ls-tree", "-r", "--name-only", source, "--", dataDir)
	} else {
		out, err = r.run(ctx, "diff", "--name-only", base, source, "--", dataDir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}

// showBlob returns path's content as of ref, or ok=false if ref does
// not have that path (i.e. it was deleted there).
func (r *Repo) showBlob(ctx context.Context, ref, path string) (content []byte, ok bool, err error) {
	cmd := exec.CommandContext(ctx, "git", "show", ref+":"+path)
	cmd.Dir = r.path
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "does not exist") || strings.Contains(stderr.String(), "exists on disk, but not in") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%v: %s", err, stderr.String())
	}
	return stdout.Bytes(), true, nil
}

func (r *Repo) Reload(ctx context.Context) error {
	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return nil
	}
	if r.remote == "" && !r.hasOrigin(ctx) {
		return nil
	}
	if out, err := r.run(ctx, "pull", "--ff-only", "origin", r.branch); err != nil {
		// Best effort: a failed pull is not an error while the local
		// HEAD still resolves.
		if _, headErr := r.run(ctx, "rev-parse", "--verify", "HEAD"); headErr == nil {
			return nil
		}
		return fmt.Errorf("%w: git pull: %v\n%s", confstore.ErrBackendIO, err, out)
	}
	return nil
}

func (r *Repo) Close() error {
	return r.lock.Unlock()
}
