package services

import (
	"context"
	"log/slog"

	"bilancio/internal/core"
)

// MonthlyEquivalent is the cadence-normalized monthly view of an obligation
// set, feeding the monthly summary.
type MonthlyEquivalent struct {
	Income  core.Money
	Expense core.Money
}

// PeriodProjection is the rest-of-period view of an obligation set over
// [today, periodEnd], feeding the budget projector.
type PeriodProjection struct {
	Incomes  core.Money
	Expenses core.Money
}

// NormalizeMonthly folds every obligation through its frequency scheduler into
// a monthly-equivalent income and expense total. Obligations with an unknown
// frequency contribute zero and are logged, never fatal.
func NormalizeMonthly(ctx context.Context, obligations []core.RecurringObligation) MonthlyEquivalent {
	var out MonthlyEquivalent
	for _, o := range obligations {
		s, err := GetScheduler(o.Every)
		if err != nil {
			slog.WarnContext(ctx, "Skipping obligation with unknown frequency",
				"obligation_id", o.ID, "frequency", o.Every)
			continue
		}
		eq := s.MonthlyEquivalent(o.Amount)
		if o.Kind == core.Income {
			out.Income = out.Income.Add(eq)
		} else {
			out.Expense = out.Expense.Add(eq)
		}
	}
	return out
}

// ProjectPeriod sums what each obligation still contributes before periodEnd.
// Weekly obligations enumerate every remaining occurrence; biweekly and
// monthly count at most one.
func ProjectPeriod(ctx context.Context, obligations []core.RecurringObligation, periodEnd core.Date) PeriodProjection {
	var out PeriodProjection
	for _, o := range obligations {
		s, err := GetScheduler(o.Every)
		if err != nil {
			slog.WarnContext(ctx, "Skipping obligation with unknown frequency",
				"obligation_id", o.ID, "frequency", o.Every)
			continue
		}
		due := s.AmountInPeriod(o.Amount, o.NextOccurrence, periodEnd)
		if o.Kind == core.Income {
			out.Incomes = out.Incomes.Add(due)
		} else {
			out.Expenses = out.Expenses.Add(due)
		}
	}
	return out
}
