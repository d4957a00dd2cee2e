package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/docforge/domain/execution"
	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
)

// ResultStore implements ports.ResultStore using SQLite.
type ResultStore struct {
	db *DB
}

// NewResultStore creates a new SQLite execution ledger.
func NewResultStore(db *DB) *ResultStore {
	return &ResultStore{db: db}
}

var _ ports.ResultStore = (*ResultStore)(nil)

// Save inserts or replaces a record.
func (s *ResultStore) Save(ctx context.Context, rec execution.Record) error {
	warnings := rec.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	encoded, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("encode warnings: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO executions
			(id, bundle, input_path, output_path, format, status, error_kind, error, warnings, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Bundle, rec.InputPath, rec.OutputPath, rec.Format, string(rec.Status),
		rec.ErrorKind, rec.Error, string(encoded), rec.StartedAt.UnixNano(), int64(rec.Duration))
	if err != nil {
		return fmt.Errorf("save execution %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with id. A missing record is NotFound.
func (s *ResultStore) Get(ctx context.Context, id string) (execution.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bundle, input_path, output_path, format, status, error_kind, error, warnings, started_at, duration_ns
		FROM executions
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return execution.Record{}, failure.NotFound("execution", id)
	}
	return rec, err
}

// List returns records newest first, narrowed by filter.
func (s *ResultStore) List(ctx context.Context, filter execution.Filter) ([]execution.Record, error) {
	var (
		where []string
		args  []any
	)
	if filter.Bundle != "" {
		where = append(where, "bundle = ?")
		args = append(args, filter.Bundle)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `
		SELECT id, bundle, input_path, output_path, format, status, error_kind, error, warnings, started_at, duration_ns
		FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	out := []execution.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (execution.Record, error) {
	var (
		rec      execution.Record
		status   string
		warnings string
		started  int64
		duration int64
	)
	err := row.Scan(&rec.ID, &rec.Bundle, &rec.InputPath, &rec.OutputPath, &rec.Format, &status,
		&rec.ErrorKind, &rec.Error, &warnings, &started, &duration)
	if err != nil {
		return execution.Record{}, err
	}

	rec.Status = execution.Status(status)
	rec.StartedAt = time.Unix(0, started).UTC()
	rec.Duration = time.Duration(duration)
	if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
		return execution.Record{}, fmt.Errorf("decode warnings of %s: %w", rec.ID, err)
	}
	return rec, nil
}
