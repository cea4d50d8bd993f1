package sqlite

import (
	"database/sql"
	"fmt"

	"golang.org/x/mod/semver"
)

// CurrentSchemaVersion is the version this build of the sqlite backend
// expects. It follows semver so we can use golang.org/x/mod/semver to
// compare it against whatever a previously-opened database recorded,
// the same way the relational migration runner in the wider codebase
// gates optional behavior on a negotiated client/server version.
const CurrentSchemaVersion = "v1"

// migration is one idempotent schema step. All current migrations use
// CREATE TABLE/INDEX IF NOT EXISTS, so re-running them on an
// already-migrated database is always safe.
type migration struct {
	Name string
	Func func(*sql.DB) error
}

var migrationsList = []migration{
	{"initial_schema", migrateInitialSchema},
	{"schema_meta_seed", migrateSchemaMetaSeed},
}

func migrateInitialSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

func migrateSchemaMetaSeed(db *sql.DB) error {
	_, err := db.Exec(
		`INSERT INTO schema_meta (key, value) VALUES ('version', ?)
		 ON CONFLICT(key) DO NOTHING`,
		CurrentSchemaVersion,
	)
	return err
}

// runMigrations applies every migration in order and then checks the
// stored schema version is not newer than what this build understands
// (it would be, e.g., if a newer binary touched the same database and
// then this older one tried to open it).
func runMigrations(db *sql.DB) error {
	for _, m := range migrationsList {
		if err := m.Func(db); err != nil {
			return fmt.Errorf("migration %q: %w", m.Name, err)
		}
	}

	var stored string
	err := db.QueryRow(`SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&stored)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	if semver.Compare(stored, CurrentSchemaVersion) > 0 {
		return fmt.Errorf("database schema %s is newer than this build supports (%s)", stored, CurrentSchemaVersion)
	}
	return nil
}
