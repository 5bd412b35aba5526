// Package tracker is the durable usage ledger backed by SQLite.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

// Tracker records and queries provider spend.
type Tracker interface {
	// Record stores a usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// QueryByScope returns usage records for a scope since a given time, newest first.
	QueryByScope(ctx context.Context, scope string, since time.Time) ([]models.UsageRecord, error)
	// TotalCostByScope returns the spend of a scope since a given time.
	TotalCostByScope(ctx context.Context, scope string, since time.Time) (float64, error)
	// TotalCostByScopeAndProvider returns the spend of a scope on one provider since a given time.
	TotalCostByScopeAndProvider(ctx context.Context, scope, provider string, since time.Time) (float64, error)
	// Summary returns aggregated usage, optionally filtered by scope.
	Summary(ctx context.Context, scope string) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	scope TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost REAL NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_scope_time ON usage_records(scope, created_at);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	// Ledgers created before fallback tracking lack the column.
	if !columnExists(db, "usage_records", "fallback") {
		if _, err := db.Exec(`ALTER TABLE usage_records ADD COLUMN fallback INTEGER NOT NULL DEFAULT 0`); err != nil {
			db.Close()
			return nil, fmt.Errorf("add fallback column: %w", err)
		}
	}

	return &SQLiteTracker{db: db}, nil
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false
		}
		if name == column {
			return true
		}
	}
	return false
}

// Record stores a usage record. A zero CreatedAt is stamped with the current time.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.UsageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO usage_records (request_id, scope, provider, model, input_tokens, output_tokens, cost, fallback, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Scope, rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens, rec.Cost, rec.Fallback, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// QueryByScope returns usage records for a scope since a given time.
func (t *SQLiteTracker) QueryByScope(ctx context.Context, scope string, since time.Time) ([]models.UsageRecord, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, request_id, scope, provider, model, input_tokens, output_tokens, cost, fallback, created_at
		 FROM usage_records WHERE scope = ? AND created_at >= ? ORDER BY created_at DESC, id DESC`,
		scope, since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var r models.UsageRecord
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Scope, &r.Provider, &r.Model, &r.InputTokens, &r.OutputTokens, &r.Cost, &r.Fallback, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// TotalCostByScope returns the spend of a scope since a given time.
func (t *SQLiteTracker) TotalCostByScope(ctx context.Context, scope string, since time.Time) (float64, error) {
	var total float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM usage_records WHERE scope = ? AND created_at >= ?`,
		scope, since.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

// TotalCostByScopeAndProvider returns the spend of a scope on one provider since a given time.
func (t *SQLiteTracker) TotalCostByScopeAndProvider(ctx context.Context, scope, provider string, since time.Time) (float64, error) {
	var total float64
	err := t.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0) FROM usage_records WHERE scope = ? AND provider = ? AND created_at >= ?`,
		scope, provider, since.UTC(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost by provider: %w", err)
	}
	return total, nil
}

// Summary returns aggregated usage grouped by scope, provider and model.
func (t *SQLiteTracker) Summary(ctx context.Context, scope string) ([]models.UsageSummary, error) {
	query := `SELECT scope, provider, model, COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(cost), SUM(fallback)
		 FROM usage_records`
	var args []any
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` GROUP BY scope, provider, model ORDER BY scope, provider, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Scope, &s.Provider, &s.Model, &s.RequestCount, &s.InputTokens, &s.OutputTokens, &s.TotalCost, &s.Fallbacks); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
