package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// RecurringProcessor materializes elapsed recurring obligations and
// installment payments into real ledger entries.
type RecurringProcessor struct {
	storage   *storage.Repository
	ledger    *LedgerService
	amortizer *Amortizer
}

func NewRecurringProcessor(repo *storage.Repository, ledger *LedgerService, amortizer *Amortizer) *RecurringProcessor {
	return &RecurringProcessor{
		storage:   repo,
		ledger:    ledger,
		amortizer: amortizer,
	}
}

// ProcessDueObligations consumes elapsed occurrences: each obligation whose
// next occurrence has passed is advanced one frequency step forward, so the
// projections stop counting an occurrence that is already behind us. The date
// only ever moves forward. Obligations are templates, not entries; recording
// the actual transaction stays a user action.
func (p *RecurringProcessor) ProcessDueObligations(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	today := core.DateOf(now)

	due, err := p.storage.ListDueObligations(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list due obligations: %w", err)
	}

	slog.InfoContext(ctx, "Processing due obligations",
		"total_due", len(due),
		"processing_date", today.Format("2006-01-02"))

	processed := 0
	for _, o := range due {
		next := o.Advance()
		if err := p.storage.AdvanceObligation(ctx, o.ID, next); err != nil {
			slog.ErrorContext(ctx, "Failed to advance obligation",
				"obligation_id", o.ID, "error", err)
			continue
		}

		processed++
		slog.InfoContext(ctx, "Consumed obligation occurrence",
			"obligation_id", o.ID,
			"amount_cents", o.Amount.Cents,
			"frequency", o.Every,
			"next_occurrence", next.Format("2006-01-02"))
	}

	slog.InfoContext(ctx, "Obligation processing complete",
		"processed", processed, "total_due", len(due))
	return processed, nil
}

// ProcessDuePlans turns each elapsed installment payment into a plan-flagged
// expense entry on the plan's account and advances the plan, retiring it when
// the last installment is consumed.
func (p *RecurringProcessor) ProcessDuePlans(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.ledger == nil || p.amortizer == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	today := core.DateOf(now)

	due, err := p.storage.ListDuePlans(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("list due plans: %w", err)
	}

	processed := 0
	for _, plan := range due {
		entry := core.LedgerEntry{
			Kind:              core.Expense,
			Amount:            plan.MonthlyAmount,
			Date:              plan.NextPaymentDate,
			AccountID:         plan.AccountID,
			Category:          "Rate",
			Description:       plan.Description,
			InstallmentPlanID: plan.ID,
		}
		created, err := p.ledger.CreateEntry(ctx, entry)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize installment payment",
				"plan_id", plan.ID, "error", err)
			continue
		}

		if _, err := p.amortizer.Advance(ctx, plan.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to advance plan",
				"plan_id", plan.ID, "error", err)
			continue
		}

		processed++
		slog.InfoContext(ctx, "Materialized installment payment",
			"plan_id", plan.ID,
			"entry_id", created.ID,
			"amount_cents", plan.MonthlyAmount.Cents,
			"remaining", plan.RemainingInstallments-1)
	}

	return processed, nil
}
