// Package budget caps provider spend per scope using the usage ledger.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokenwise-ai/tokenwise/pkg/models"
	"github.com/tokenwise-ai/tokenwise/pkg/tracker"
)

// ErrBudgetExceeded is returned when a scope has spent its allowance.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Enforcer checks ledger spend against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
	now      func() time.Time
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t, now: time.Now}
}

// Check returns ErrBudgetExceeded if scope has spent the allowance of any
// policy applying to it and provider.
func (e *Enforcer) Check(ctx context.Context, scope, provider string) error {
	for _, p := range e.applicablePolicies(scope, provider) {
		spent, err := e.spent(ctx, p, scope)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if spent >= p.MaxCost {
			return fmt.Errorf("%w: scope %q spent %.6f of %.6f %s", ErrBudgetExceeded, scope, spent, p.MaxCost, p.Period)
		}
	}
	return nil
}

// Status returns the budget status for a scope across all applicable policies.
func (e *Enforcer) Status(ctx context.Context, scope string) ([]models.BudgetStatus, error) {
	policies := e.policiesForScope(scope)
	statuses := make([]models.BudgetStatus, 0, len(policies))

	for _, p := range policies {
		spent, err := e.spent(ctx, p, scope)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Spent:     spent,
			Remaining: max(p.MaxCost-spent, 0),
		})
	}
	return statuses, nil
}

func (e *Enforcer) spent(ctx context.Context, p models.BudgetPolicy, scope string) (float64, error) {
	since := periodStart(p.Period, e.now())
	if p.Provider != "" {
		return e.tracker.TotalCostByScopeAndProvider(ctx, scope, p.Provider, since)
	}
	return e.tracker.TotalCostByScope(ctx, scope, since)
}

// policiesForScope returns all policies matching a scope (ignoring provider filter).
func (e *Enforcer) policiesForScope(scope string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policies {
		if p.Scope == "*" || p.Scope == scope {
			result = append(result, p)
		}
	}
	return result
}

func (e *Enforcer) applicablePolicies(scope, provider string) []models.BudgetPolicy {
	var result []models.BudgetPolicy
	for _, p := range e.policiesForScope(scope) {
		if p.Provider == "" || p.Provider == provider {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.BudgetPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
