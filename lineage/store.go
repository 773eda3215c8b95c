package lineage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoLineageTable signals that the schema database carries no
// authoritative lineage side table. The Selector treats it as the cue to
// fall back to graph traversal for the schema.
var ErrNoLineageTable = errors.New("no authoritative lineage table")

const sideTableDDL = `
CREATE TABLE IF NOT EXISTS lineage_entries (
    table_name     TEXT NOT NULL,
    attribute_name TEXT NOT NULL,
    origin         TEXT NOT NULL,
    PRIMARY KEY (table_name, attribute_name)
)`

// Store is the authoritative per-schema lineage side table, backed by
// SQLite. Entries are written at table-declaration time: native
// primary-key attributes register themselves, inherited attributes copy
// their parent's entry, and native secondary attributes register no
// entry at all (their lineage is none).
type Store struct {
	schema string
	db     *sql.DB
	owned  bool
}

// Open creates or opens the side table in a SQLite database at path.
//
// The connection pool is limited to a single connection: SQLite supports
// one writer at a time, and lineage writes are rare and tiny.
func Open(schema, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lineage database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to lineage database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(sideTableDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create lineage side table: %w", err)
	}
	return &Store{schema: schema, db: db, owned: true}, nil
}

// Attach wraps an existing database connection without creating the side
// table. Lookups against a database that lacks the table return
// ErrNoLineageTable, which is what drives strategy selection.
func Attach(schema string, db *sql.DB) *Store {
	return &Store{schema: schema, db: db}
}

// Close releases the connection if the store owns it.
func (s *Store) Close() error {
	if s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

// Schema returns the schema name the store serves.
func (s *Store) Schema() string {
	return s.schema
}

// RecordTable replaces the lineage entries for a table. Existing entries
// are deleted and the given ones inserted in one transaction, so a table
// redefinition never leaves stale rows behind.
//
// Attributes with no origin must be omitted from entries.
func (s *Store) RecordTable(ctx context.Context, table string, entries map[string]Origin) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin lineage transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM lineage_entries WHERE table_name = ?`, table); err != nil {
		return fmt.Errorf("failed to clear lineage entries for %q: %w", table, err)
	}
	for attr, origin := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lineage_entries (table_name, attribute_name, origin) VALUES (?, ?, ?)`,
			table, attr, origin.String()); err != nil {
			return fmt.Errorf("failed to record lineage for %s.%s: %w", table, attr, err)
		}
	}
	return tx.Commit()
}

// DropTable removes all lineage entries for a table.
func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM lineage_entries WHERE table_name = ?`, table); err != nil {
		return fmt.Errorf("failed to drop lineage entries for %q: %w", table, err)
	}
	return nil
}

// Resolve implements Resolver via O(1) lookup in the side table.
//
// A missing row means the attribute has no origin, which is a valid
// answer, not an error: native secondary attributes are never recorded.
// A missing side table returns ErrNoLineageTable.
func (s *Store) Resolve(ctx context.Context, table, attribute string) (*Origin, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT origin FROM lineage_entries WHERE table_name = ? AND attribute_name = ?`,
		table, attribute).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil && strings.Contains(err.Error(), "no such table"):
		return nil, ErrNoLineageTable
	case err != nil:
		return nil, fmt.Errorf("failed to look up lineage for %s.%s: %w", table, attribute, err)
	}
	return ParseOrigin(raw)
}

// ParseOrigin parses the stored "schema.table.attribute" form.
func ParseOrigin(raw string) (*Origin, error) {
	parts := strings.SplitN(raw, ".", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("malformed lineage entry %q", raw)
	}
	return &Origin{Schema: parts[0], Table: parts[1], Attribute: parts[2]}, nil
}
