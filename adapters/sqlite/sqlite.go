// Package sqlite provides the SQLite execution ledger.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// checkVersion is written and rolled back by Check.
const checkVersion = "~write-check"

// DB is an open ledger database.
type DB struct {
	*sql.DB
}

// Status describes a ledger database.
type Status struct {
	Version    string   // latest applied migration
	Pending    []string // embedded migrations not yet applied
	Executions int
}

// Open opens the ledger at dsn, creating it when missing, and applies pending
// migrations.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", dsn, err)
	}
	// One writer, and the ledger is small.
	db.SetMaxOpenConns(1)

	out := &DB{DB: db}
	if err := out.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return out, nil
}

type migration struct {
	version string
	stmts   string
}

func migrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		src, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{version: strings.TrimSuffix(name, ".sql"), stmts: string(src)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func (db *DB) applied() (map[string]bool, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		done[v] = true
	}
	return done, rows.Err()
}

// Migrate applies embedded migrations that are not yet recorded, each in its
// own transaction. Safe to call repeatedly.
func (db *DB) Migrate() error {
	all, err := migrations()
	if err != nil {
		return err
	}
	done, err := db.applied()
	if err != nil {
		return err
	}
	for _, m := range all {
		if done[m.version] {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration %s: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.stmts); err != nil {
		return fmt.Errorf("migration %s: %w", m.version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.version, err)
	}
	return tx.Commit()
}

// Version returns the most recently applied migration.
func (db *DB) Version() (string, error) {
	var v sql.NullString
	if err := db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return "", fmt.Errorf("query version: %w", err)
	}
	return v.String, nil
}

// Check reports the ledger's migration state and record count, and verifies
// the database accepts writes by taking the write lock inside a transaction
// that is rolled back.
func (db *DB) Check(ctx context.Context) (Status, error) {
	var st Status

	all, err := migrations()
	if err != nil {
		return st, err
	}
	done, err := db.applied()
	if err != nil {
		return st, err
	}
	for _, m := range all {
		if !done[m.version] {
			st.Pending = append(st.Pending, m.version)
		}
	}
	if st.Version, err = db.Version(); err != nil {
		return st, err
	}
	if len(st.Pending) > 0 {
		return st, fmt.Errorf("ledger at %q has pending migrations: %s", st.Version, strings.Join(st.Pending, ", "))
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions").Scan(&st.Executions); err != nil {
		return st, fmt.Errorf("count executions: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("ledger not writable: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", checkVersion); err != nil {
		return st, fmt.Errorf("ledger not writable: %w", err)
	}
	return st, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
