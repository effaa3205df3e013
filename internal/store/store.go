package store

// #region imports
import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// #endregion

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS component_blueprints (
	component   TEXT PRIMARY KEY,
	version     INTEGER NOT NULL DEFAULT 1,
	config      BLOB NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS component_backups (
	component   TEXT PRIMARY KEY,
	snapshot    BLOB NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store holds the control plane's durable side: configuration blueprints and
// last-known-good snapshots, keyed by component name.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (logging,
// trail persistence, repair memory).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region blueprints

// PutBlueprint stores (or replaces) the versioned configuration blueprint
// for a component. The blob is opaque to the control plane.
func (s *Store) PutBlueprint(component string, config []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO component_blueprints (component, version, config, updated_at)
		 VALUES (?, 1, ?, ?)
		 ON CONFLICT(component) DO UPDATE SET
		   version = component_blueprints.version + 1,
		   config = excluded.config,
		   updated_at = excluded.updated_at`,
		component, config, now,
	)
	if err != nil {
		return fmt.Errorf("put blueprint %q: %w", component, err)
	}
	return nil
}

// GetBlueprint returns the stored blueprint, reporting whether one exists.
func (s *Store) GetBlueprint(component string) ([]byte, bool, error) {
	var config []byte
	err := s.db.QueryRow(
		`SELECT config FROM component_blueprints WHERE component = ?`, component,
	).Scan(&config)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get blueprint %q: %w", component, err)
	}
	return config, true, nil
}

// #endregion blueprints

// #region backups

// PutBackup stores the last-known-good snapshot for a component.
func (s *Store) PutBackup(component string, snapshot []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO component_backups (component, snapshot, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(component) DO UPDATE SET
		   snapshot = excluded.snapshot,
		   updated_at = excluded.updated_at`,
		component, snapshot, now,
	)
	if err != nil {
		return fmt.Errorf("put backup %q: %w", component, err)
	}
	return nil
}

// GetBackup returns the stored snapshot, reporting whether one exists.
func (s *Store) GetBackup(component string) ([]byte, bool, error) {
	var snapshot []byte
	err := s.db.QueryRow(
		`SELECT snapshot FROM component_backups WHERE component = ?`, component,
	).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get backup %q: %w", component, err)
	}
	return snapshot, true, nil
}

// #endregion backups
