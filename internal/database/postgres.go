// Package database exports finished datasets to PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lib/pq"

	"github.com/jordanhubbard/mmgen/internal/dataset"
	"github.com/jordanhubbard/mmgen/internal/metrics"
)

// DefaultTable holds exported records when no table is configured.
const DefaultTable = "dataset_records"

// rebind converts ? placeholders to $1, $2, ... for PostgreSQL.
func rebind(query string) string {
	n := 1
	out := strings.Builder{}
	for _, ch := range query {
		if ch == '?' {
			out.WriteString(fmt.Sprintf("$%d", n))
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

// Database stores dataset records in one table.
type Database struct {
	db    *sql.DB
	table string
}

// NewPostgres opens a PostgreSQL connection and creates the records table.
func NewPostgres(ctx context.Context, dsn, table string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	d := New(db, table)
	if err := d.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return d, nil
}

// New wraps an open connection.
func New(db *sql.DB, table string) *Database {
	if table == "" {
		table = DefaultTable
	}
	return &Database{db: db, table: table}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) quotedTable() string {
	return pq.QuoteIdentifier(d.table)
}

func (d *Database) schema() string {
	t := d.quotedTable()
	return `
	CREATE TABLE IF NOT EXISTS ` + t + ` (
		id SERIAL PRIMARY KEY,
		instruction TEXT NOT NULL UNIQUE,
		relevant_apis JSONB NOT NULL,
		pattern TEXT,
		workflow_type TEXT,
		run_id TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier("idx_"+d.table+"_pattern") + ` ON ` + t + `(pattern);
	`
}

func (d *Database) initSchema(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, d.schema())
	return err
}

func (d *Database) insertQuery() string {
	return rebind(`INSERT INTO ` + d.quotedTable() + ` (instruction, relevant_apis, pattern, workflow_type, run_id)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (instruction) DO NOTHING`)
}

// Export inserts records in one transaction and returns how many were new.
// Records whose instruction already exists are skipped.
func (d *Database) Export(ctx context.Context, runID string, records []dataset.Record) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, d.insertQuery())
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		apis, err := json.Marshal(r.RelevantAPIs)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal relevant_apis: %w", err)
		}
		res, err := stmt.ExecContext(ctx, r.Instruction, string(apis), nullString(r.Pattern), nullString(r.WorkflowType), runID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert record: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit export: %w", err)
	}
	metrics.NewMetrics().RecordsExported.Add(float64(inserted))
	log.Printf("[Database] Exported %d of %d records to %s", inserted, len(records), d.table)
	return inserted, nil
}

// Count returns the number of stored records.
func (d *Database) Count(ctx context.Context) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+d.quotedTable()).Scan(&n)
	return n, err
}

// Records reads stored records back in insertion order.
func (d *Database) Records(ctx context.Context) ([]dataset.Record, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT instruction, relevant_apis, pattern, workflow_type FROM `+d.quotedTable()+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dataset.Record
	for rows.Next() {
		var (
			r             dataset.Record
			apis          []byte
			pattern, kind sql.NullString
		)
		if err := rows.Scan(&r.Instruction, &apis, &pattern, &kind); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(apis, &r.RelevantAPIs); err != nil {
			return nil, fmt.Errorf("failed to decode relevant_apis: %w", err)
		}
		r.Pattern = pattern.String
		r.WorkflowType = kind.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
