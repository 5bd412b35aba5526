package budget

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"github.com/tokenwise-ai/tokenwise/pkg/tracker"
)

func setup(t *testing.T) (tracker.Tracker, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "budget_test.db")
	tr, err := tracker.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, context.Background()
}

func spend(t *testing.T, tr tracker.Tracker, scope, provider string, cost float64) {
	t.Helper()
	err := tr.Record(context.Background(), models.UsageRecord{
		RequestID: "r", Scope: scope, Provider: provider, Model: "m",
		Cost: cost, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCheckUnderBudget(t *testing.T) {
	tr, ctx := setup(t)
	spend(t, tr, "agent-a", "gemini", 0.25)

	e := New([]models.BudgetPolicy{
		{Scope: "*", MaxCost: 1, Period: models.BudgetDaily},
	}, tr)

	if err := e.Check(ctx, "agent-a", "gemini"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckExceeded(t *testing.T) {
	tr, ctx := setup(t)
	spend(t, tr, "agent-a", "gemini", 1.5)

	e := New([]models.BudgetPolicy{
		{Scope: "*", MaxCost: 1, Period: models.BudgetDaily},
	}, tr)

	err := e.Check(ctx, "agent-a", "gemini")
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}

	// Spend is per scope.
	if err := e.Check(ctx, "agent-b", "gemini"); err != nil {
		t.Errorf("expected no error for another scope, got %v", err)
	}
}

func TestProviderPolicy(t *testing.T) {
	tr, ctx := setup(t)
	spend(t, tr, "agent-a", "gemini", 2)

	e := New([]models.BudgetPolicy{
		{Scope: "agent-a", Provider: "gemini", MaxCost: 1, Period: models.BudgetMonthly},
	}, tr)

	if err := e.Check(ctx, "agent-a", "gemini"); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected gemini to be capped, got %v", err)
	}
	if err := e.Check(ctx, "agent-a", "groq"); err != nil {
		t.Errorf("expected groq to be unaffected, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	tr, ctx := setup(t)
	spend(t, tr, "agent-a", "gemini", 0.25)

	e := New([]models.BudgetPolicy{
		{Scope: "*", MaxCost: 1, Period: models.BudgetDaily},
	}, tr)

	statuses, err := e.Status(ctx, "agent-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if statuses[0].Spent != 0.25 {
		t.Errorf("expected 0.25 spent, got %v", statuses[0].Spent)
	}
	if statuses[0].Remaining != 0.75 {
		t.Errorf("expected 0.75 remaining, got %v", statuses[0].Remaining)
	}
}

func TestStatusRemainingNeverNegative(t *testing.T) {
	tr, ctx := setup(t)
	spend(t, tr, "agent-a", "gemini", 3)

	e := New([]models.BudgetPolicy{
		{Scope: "agent-a", MaxCost: 1, Period: models.BudgetDaily},
	}, tr)

	statuses, err := e.Status(ctx, "agent-a")
	if err != nil {
		t.Fatal(err)
	}
	if statuses[0].Remaining != 0 {
		t.Errorf("expected 0 remaining, got %v", statuses[0].Remaining)
	}
}

func TestSpecificScopePolicy(t *testing.T) {
	tr, ctx := setup(t)

	e := New([]models.BudgetPolicy{
		{Scope: "agent-a", MaxCost: 5, Period: models.BudgetDaily},
		{Scope: "*", MaxCost: 100, Period: models.BudgetDaily},
	}, tr)

	// agent-b should only match wildcard
	statuses, err := e.Status(ctx, "agent-b")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status for agent-b, got %d", len(statuses))
	}

	// agent-a should match both
	statuses, err = e.Status(ctx, "agent-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses for agent-a, got %d", len(statuses))
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 3, 17, 15, 4, 5, 0, time.UTC)
	if got := periodStart(models.BudgetDaily, now); !got.Equal(time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("daily: got %v", got)
	}
	if got := periodStart(models.BudgetMonthly, now); !got.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly: got %v", got)
	}
}
