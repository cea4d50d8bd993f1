package sqlite

const schema = `
-- Content-addressing is not required (§4.3): each distinct Set MAY
-- allocate a new row. We reuse a blob row in place while a key stays
-- overridden within one stage, and allocate fresh rows on tombstone
-- resurrection or first write.
CREATE TABLE IF NOT EXISTS blobs (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    content BLOB NOT NULL
);

-- committed=0 denotes a live stage snapshot; committed=1 is immutable
-- thereafter. parent_id is NULL only for a repo's very first snapshot.
CREATE TABLE IF NOT EXISTS snapshots (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    parent_id  INTEGER REFERENCES snapshots(id),
    committed  INTEGER NOT NULL DEFAULT 0
);

-- Sparse overlay: a row exists only for a key this snapshot explicitly
-- overrides. NULL blob_id encodes a tombstone. On commit, Finalize
-- copies every key inherited from the parent chain into this table so
-- committed snapshots never need a further chain walk to answer Get.
CREATE TABLE IF NOT EXISTS snapshot_items (
    snapshot_id INTEGER NOT NULL REFERENCES snapshots(id),
    key         TEXT NOT NULL,
    blob_id     INTEGER REFERENCES blobs(id),
    PRIMARY KEY (snapshot_id, key)
);

CREATE INDEX IF NOT EXISTS idx_snapshot_items_snapshot ON snapshot_items(snapshot_id);

CREATE TABLE IF NOT EXISTS branches (
    name        TEXT PRIMARY KEY,
    snapshot_id INTEGER NOT NULL REFERENCES snapshots(id)
);

CREATE TABLE IF NOT EXISTS schema_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
