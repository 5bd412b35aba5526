package tracker

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRecordAndQuery(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.UsageRecord{
		RequestID:    "req-1",
		Scope:        "agent-a",
		Provider:     "gemini",
		Model:        "gemini-1.5-pro",
		InputTokens:  1000,
		OutputTokens: 500,
		Cost:         0.00375,
		Fallback:     true,
		CreatedAt:    now,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	records, err := tr.QueryByScope(ctx, "agent-a", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.RequestID != "req-1" || got.Provider != "gemini" || got.InputTokens != 1000 {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Cost != 0.00375 || !got.Fallback {
		t.Errorf("expected cost 0.00375 with fallback, got %+v", got)
	}

	other, err := tr.QueryByScope(ctx, "agent-b", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 0 {
		t.Errorf("expected no records for another scope, got %d", len(other))
	}
}

func TestTotalCostByScope(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 3 {
		_ = tr.Record(ctx, models.UsageRecord{
			RequestID: "r", Scope: "agent-a", Provider: "gemini", Model: "gemini-1.5-flash",
			InputTokens: 100, OutputTokens: 50, Cost: 0.25,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	_ = tr.Record(ctx, models.UsageRecord{
		RequestID: "r", Scope: "agent-a", Provider: "groq", Model: "llama-3.1-8b-instant",
		Cost: 0.5, CreatedAt: now,
	})
	_ = tr.Record(ctx, models.UsageRecord{
		RequestID: "old", Scope: "agent-a", Provider: "gemini", Model: "gemini-1.5-flash",
		Cost: 10, CreatedAt: now.Add(-48 * time.Hour),
	})

	total, err := tr.TotalCostByScope(ctx, "agent-a", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if total != 1.25 {
		t.Errorf("expected 1.25, got %v", total)
	}

	byProvider, err := tr.TotalCostByScopeAndProvider(ctx, "agent-a", "groq", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if byProvider != 0.5 {
		t.Errorf("expected 0.5 on groq, got %v", byProvider)
	}

	none, err := tr.TotalCostByScope(ctx, "nobody", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if none != 0 {
		t.Errorf("expected 0 for unknown scope, got %v", none)
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_ = tr.Record(ctx, models.UsageRecord{
		RequestID: "1", Scope: "agent-a", Provider: "gemini", Model: "gemini-1.5-pro",
		InputTokens: 100, OutputTokens: 50, Cost: 0.1, CreatedAt: now,
	})
	_ = tr.Record(ctx, models.UsageRecord{
		RequestID: "2", Scope: "agent-a", Provider: "gemini", Model: "gemini-1.5-pro",
		InputTokens: 300, OutputTokens: 50, Cost: 0.2, Fallback: true, CreatedAt: now,
	})
	_ = tr.Record(ctx, models.UsageRecord{
		RequestID: "3", Scope: "agent-b", Provider: "groq", Model: "llama-3.1-8b-instant",
		InputTokens: 200, OutputTokens: 100, Cost: 0.01, CreatedAt: now,
	})

	summaries, err := tr.Summary(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	summaries, err = tr.Summary(ctx, "agent-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	s := summaries[0]
	if s.RequestCount != 2 || s.InputTokens != 400 || s.Fallbacks != 1 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if diff := s.TotalCost - 0.3; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected 0.3 total cost, got %v", s.TotalCost)
	}
}

func TestMigrationIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	// Create tracker twice; the second must not fail.
	tr1, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_ = tr1.Close()

	tr2, err := New(dbPath)
	if err != nil {
		t.Fatal("second New() failed:", err)
	}
	_ = tr2.Close()
}

func TestMigrationAddsFallbackColumn(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	_, err = db.Exec(`CREATE TABLE usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		scope TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		cost REAL NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if !columnExists(tr.db, "usage_records", "fallback") {
		t.Fatal("expected fallback column after migration")
	}
	if err := tr.Record(context.Background(), models.UsageRecord{
		RequestID: "r", Provider: "gemini", Model: "gemini-1.5-flash", Fallback: true,
	}); err != nil {
		t.Fatal(err)
	}
}
