// Package sqlite implements confstore.Repo on top of a local SQLite
// database, using the sparse snapshot/finalize model described in
// DESIGN.md: an uncommitted "stage" snapshot only carries rows for
// keys it overrides, and Commit copies every key the stage inherited
// from its parent into the stage's own rows so that once committed a
// snapshot never again needs a parent-chain walk to answer Get.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/epoch8/cfgrepo/internal/confstore"
	"github.com/epoch8/cfgrepo/internal/merge"
)

// Repo is one caller's handle on a sqlite-backed config store: the
// branch it has checked out, and the id of the uncommitted snapshot
// ("stage") currently accumulating that branch's pending edits.
type Repo struct {
	db      *sql.DB
	path    string // set only when opened via OpenFile; empty for a caller-supplied *sql.DB
	branch  string
	stageID int64
}

var _ confstore.Repo = (*Repo)(nil)

// OpenFile opens (creating if necessary) the sqlite database at path
// and binds a Repo to branch (default "master").
func OpenFile(path string, branch string) (*Repo, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", confstore.ErrBackendIO, path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enabling WAL on %s: %v", confstore.ErrBackendIO, path, err)
	}
	repo, err := Open(db, branch)
	if err != nil {
		db.Close()
		return nil, err
	}
	repo.path = path
	return repo, nil
}

// Path returns the database file path this Repo was opened with via
// OpenFile, or "" if it was bound to a caller-supplied *sql.DB.
func (r *Repo) Path() string { return r.path }

// Open binds a Repo to an already-opened *sql.DB, running migrations
// and bootstrapping an empty "master" branch if the database is new.
func Open(db *sql.DB, branch string) (*Repo, error) {
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	if err := bootstrapMaster(db); err != nil {
		return nil, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	if branch == "" {
		branch = "master"
	}

	head, err := branchHead(db, branch)
	if err != nil {
		return nil, err
	}
	stageID, err := allocateStage(db, head)
	if err != nil {
		return nil, fmt.Errorf("%w: allocating stage: %v", confstore.ErrBackendIO, err)
	}
	return &Repo{db: db, branch: branch, stageID: stageID}, nil
}

func bootstrapMaster(db *sql.DB) error {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM branches`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	res, err := db.Exec(`INSERT INTO snapshots (parent_id, committed) VALUES (NULL, 1)`)
	if err != nil {
		return err
	}
	rootID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = db.Exec(`INSERT INTO branches (name, snapshot_id) VALUES ('master', ?)`, rootID)
	return err
}

func branchHead(db *sql.DB, branch string) (int64, error) {
	var id int64
	err := db.QueryRow(`SELECT snapshot_id FROM branches WHERE name = ?`, branch).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, confstore.NewMissingBranchError(branch)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	return id, nil
}

func allocateStage(db *sql.DB, parent int64) (int64, error) {
	res, err := db.Exec(`INSERT INTO snapshots (parent_id, committed) VALUES (?, 0)`, parent)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) CurrentBranch() string { return r.branch }

// stageParent returns the committed snapshot the current stage was
// forked from.
func (r *Repo) stageParent(ctx context.Context) (int64, error) {
	var parent sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT parent_id FROM snapshots WHERE id = ?`, r.stageID).Scan(&parent)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	return parent.Int64, nil
}

func (r *Repo) Get(ctx context.Context, key string) (confstore.Blob, bool, error) {
	if v, ok, found, err := lookupItem(ctx, r.db, r.stageID, key); err != nil {
		return nil, false, err
	} else if found {
		return v, ok, nil
	}

	parent, err := r.stageParent(ctx)
	if err != nil {
		return nil, false, err
	}
	if parent == 0 {
		return nil, false, nil
	}
	// Parent is always a finalized, committed snapshot, so one more
	// lookup — never a further walk up the chain — resolves it.
	v, ok, found, err := lookupItem(ctx, r.db, parent, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return v, ok, nil
}

// lookupItem reports whether snapshot has any row for key at all
// (found), and if so whether it resolves to a live value (ok) or a
// tombstone.
func lookupItem(ctx context.Context, db *sql.DB, snapshot int64, key string) (value confstore.Blob, ok bool, found bool, err error) {
	var blobID sql.NullInt64
	err = db.QueryRowContext(ctx,
		`SELECT blob_id FROM snapshot_items WHERE snapshot_id = ? AND key = ?`,
		snapshot, key,
	).Scan(&blobID)
	if err == sql.ErrNoRows {
		return nil, false, false, nil
	}
	if err != nil {
		return nil, false, false, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	if !blobID.Valid {
		return nil, false, true, nil // tombstone
	}
	var content []byte
	err = db.QueryRowContext(ctx, `SELECT content FROM blobs WHERE id = ?`, blobID.Int64).Scan(&content)
	if err != nil {
		return nil, false, false, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	return confstore.Blob(content), true, true, nil
}

func (r *Repo) Set(ctx context.Context, key string, value confstore.Blob, tombstone bool) error {
	var existingBlob sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT blob_id FROM snapshot_items WHERE snapshot_id = ? AND key = ?`,
		r.stageID, key,
	).Scan(&existingBlob)
	tracked := err == nil
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}

	if tombstone {
		if tracked {
			_, err := r.db.ExecContext(ctx,
				`UPDATE snapshot_items SET blob_id = NULL WHERE snapshot_id = ? AND key = ?`,
				r.stageID, key,
			)
			if err != nil {
				return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
			}
			return nil
		}
		// Not yet tracked in this stage, but the parent snapshot chain
		// may still have a live value for this key — a tombstone row
		// must be inserted so it shadows that value once committed.
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO snapshot_items (snapshot_id, key, blob_id) VALUES (?, ?, NULL)
			 ON CONFLICT(snapshot_id, key) DO UPDATE SET blob_id = NULL`,
			r.stageID, key,
		)
		if err != nil {
			return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
		}
		return nil
	}

	// Reuse the existing blob row in place when this stage already
	// overrides the key with a live value, so repeated edits to the
	// same key within one stage don't bloat the blobs table.
	if tracked && existingBlob.Valid {
		_, err := r.db.ExecContext(ctx, `UPDATE blobs SET content = ? WHERE id = ?`, []byte(value), existingBlob.Int64)
		if err != nil {
			return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
		}
		return nil
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO blobs (content) VALUES (?)`, []byte(value))
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	blobID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshot_items (snapshot_id, key, blob_id) VALUES (?, ?, ?)
		 ON CONFLICT(snapshot_id, key) DO UPDATE SET blob_id = excluded.blob_id`,
		r.stageID, key, blobID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	return nil
}

func (r *Repo) IsDirty(ctx context.Context) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM snapshot_items WHERE snapshot_id = ?)`, r.stageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	return exists == 1, nil
}

func (r *Repo) Commit(ctx context.Context) error {
	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	defer tx.Rollback()

	parent, err := r.stageParent(ctx)
	if err != nil {
		return err
	}

	// Finalize: pull forward every key the parent defines that this
	// stage did not already override, so the now-committed snapshot is
	// self-contained.
	if parent != 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO snapshot_items (snapshot_id, key, blob_id)
			SELECT ?, key, blob_id FROM snapshot_items
			WHERE snapshot_id = ? AND key NOT IN (
				SELECT key FROM snapshot_items WHERE snapshot_id = ?
			)`, r.stageID, parent, r.stageID)
		if err != nil {
			return fmt.Errorf("%w: finalize: %v", confstore.ErrBackendIO, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET committed = 1 WHERE id = ?`, r.stageID); err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE branches SET snapshot_id = ? WHERE name = ?`, r.stageID, r.branch); err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO snapshots (parent_id, committed) VALUES (?, 0)`, r.stageID)
	if err != nil {
		return fmt.Errorf("%w: allocating next stage: %v", confstore.ErrBackendIO, err)
	}
	nextStage, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	r.stageID = nextStage
	return nil
}

func (r *Repo) SwitchBranch(ctx context.Context, branch string) error {
	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		return confstore.ErrDirtyStage
	}
	head, err := branchHead(r.db, branch)
	if err != nil {
		return err
	}
	stageID, err := allocateStage(r.db, head)
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	r.branch = branch
	r.stageID = stageID
	return nil
}

func (r *Repo) CreateBranch(ctx context.Context, newBranch, from string) error {
	if from == "" {
		from = r.branch
	}
	var exists int
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM branches WHERE name = ?)`, newBranch).Scan(&exists); err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	if exists == 1 {
		return confstore.NewBranchExistsError(newBranch)
	}
	head, err := branchHead(r.db, from)
	if err != nil {
		return err
	}
	// Per DESIGN.md's resolution of the spec's open question (a), we
	// never switch the caller onto newBranch here.
	_, err = r.db.ExecContext(ctx, `INSERT INTO branches (name, snapshot_id) VALUES (?, ?)`, newBranch, head)
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	return nil
}

func (r *Repo) ListBranches(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM branches ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// snapshotEntries loads every key a (finalized, self-contained)
// snapshot defines into a merge.Entry map.
func snapshotEntries(ctx context.Context, db *sql.DB, snapshot int64) (map[string]merge.Entry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT si.key, b.content, si.blob_id IS NULL
		FROM snapshot_items si
		LEFT JOIN blobs b ON b.id = si.blob_id
		WHERE si.snapshot_id = ?`, snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	defer rows.Close()

	entries := map[string]merge.Entry{}
	for rows.Next() {
		var key string
		var content []byte
		var tombstone bool
		if err := rows.Scan(&key, &content, &tombstone); err != nil {
			return nil, fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
		}
		entries[key] = merge.Entry{Value: content, Tombstone: tombstone}
	}
	return entries, rows.Err()
}

func (r *Repo) Merge(ctx context.Context, source string) error {
	if source == r.branch {
		return nil
	}
	sourceHead, err := branchHead(r.db, source)
	if err != nil {
		return err
	}
	targetHead, err := r.stageParent(ctx)
	if err != nil {
		return err
	}

	sourceEntries, err := snapshotEntries(ctx, r.db, sourceHead)
	if err != nil {
		return err
	}
	var targetEntries map[string]merge.Entry
	if targetHead == 0 {
		targetEntries = map[string]merge.Entry{}
	} else {
		targetEntries, err = snapshotEntries(ctx, r.db, targetHead)
		if err != nil {
			return err
		}
	}

	result := merge.SourceWins(targetEntries, sourceEntries, source, r.branch)
	for _, key := range result.ChangedKeys {
		e := result.Merged[key]
		if err := r.Set(ctx, key, e.Value, e.Tombstone); err != nil {
			return fmt.Errorf("%w: merge %q into %q: %v", confstore.ErrMergeFailed, source, r.branch, err)
		}
	}
	return r.Commit(ctx)
}

func (r *Repo) Reload(ctx context.Context) error {
	dirty, err := r.IsDirty(ctx)
	if err != nil {
		return err
	}
	if dirty {
		// A dirty stage has edits in flight; leave it alone rather
		// than risk discarding them.
		return nil
	}
	head, err := branchHead(r.db, r.branch)
	if err != nil {
		return err
	}
	parent, err := r.stageParent(ctx)
	if err != nil {
		return err
	}
	if parent == head {
		return nil
	}
	// Branch moved under us (another process committed); reallocate a
	// clean stage on top of the new head.
	stageID, err := allocateStage(r.db, head)
	if err != nil {
		return fmt.Errorf("%w: %v", confstore.ErrBackendIO, err)
	}
	r.stageID = stageID
	return nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}
