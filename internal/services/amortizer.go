package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// Amortizer manages fixed-count installment plans against revolving credit
// accounts: creation, the monthly advance, edits and cancellation.
type Amortizer struct {
	storage *storage.Repository
}

func NewAmortizer(repo *storage.Repository) *Amortizer {
	return &Amortizer{storage: repo}
}

// NewPlan builds a validated plan for the given account. The monthly amount is
// the total split evenly across the installments; the first payment lands on
// the first day of the next calendar month.
func NewPlan(account core.Account, description string, total core.Money, count int, today core.Date) (core.InstallmentPlan, error) {
	if account.Kind != core.RevolvingCredit {
		return core.InstallmentPlan{}, core.Validationf("installment plans require a revolving credit account, got %s", account.Kind)
	}
	p := core.InstallmentPlan{
		AccountID:             account.ID,
		Description:           description,
		TotalAmount:           total,
		InstallmentCount:      count,
		MonthlyAmount:         total.DivideEven(int64(count)),
		RemainingInstallments: count,
		NextPaymentDate:       today.FirstOfNextMonth(),
		Active:                true,
	}
	if err := p.Validate(); err != nil {
		return core.InstallmentPlan{}, &core.ValidationError{Reason: err.Error()}
	}
	return p, nil
}

// AdvancePlan consumes one payment period: the remaining count drops by one,
// the next payment date moves one month forward, and a plan whose remaining
// count reaches zero is retired.
func AdvancePlan(p core.InstallmentPlan) core.InstallmentPlan {
	if p.RemainingInstallments > 0 {
		p.RemainingInstallments--
	}
	p.NextPaymentDate = p.NextPaymentDate.AddMonths(1)
	if p.RemainingInstallments == 0 {
		p.Active = false
	}
	return p
}

// EditPlan recomputes the monthly amount from new totals. The remaining
// installment count is deliberately left untouched, even though that can make
// the monthly amount inconsistent with what was already paid; this mirrors the
// long-standing edit behavior users rely on.
func EditPlan(p core.InstallmentPlan, newTotal core.Money, newCount int) (core.InstallmentPlan, error) {
	if err := newTotal.Validate(); err != nil {
		return core.InstallmentPlan{}, &core.ValidationError{Reason: "total amount must be positive"}
	}
	if newCount < 1 {
		return core.InstallmentPlan{}, &core.ValidationError{Reason: "installment count must be at least 1"}
	}
	p.TotalAmount = newTotal
	p.InstallmentCount = newCount
	p.MonthlyAmount = newTotal.DivideEven(int64(newCount))
	return p, nil
}

// CreatePlan validates the target account and persists a new active plan.
func (a *Amortizer) CreatePlan(ctx context.Context, accountID int64, description string, total core.Money, count int, today core.Date) (core.InstallmentPlan, error) {
	account, err := a.storage.GetAccount(ctx, accountID)
	if err != nil {
		return core.InstallmentPlan{}, err
	}
	plan, err := NewPlan(account, description, total, count, today)
	if err != nil {
		return core.InstallmentPlan{}, err
	}
	created, err := a.storage.CreatePlan(ctx, plan)
	if err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("create plan: %w", err)
	}
	slog.InfoContext(ctx, "Installment plan created",
		"plan_id", created.ID,
		"account_id", created.AccountID,
		"total_cents", created.TotalAmount.Cents,
		"installments", created.InstallmentCount,
		"monthly_cents", created.MonthlyAmount.Cents)
	return created, nil
}

// Advance persists one payment-period step for the plan.
func (a *Amortizer) Advance(ctx context.Context, planID int64) (core.InstallmentPlan, error) {
	plan, err := a.storage.GetPlan(ctx, planID)
	if err != nil {
		return core.InstallmentPlan{}, err
	}
	advanced := AdvancePlan(plan)
	if err := a.storage.UpdatePlan(ctx, advanced); err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("advance plan: %w", err)
	}
	if !advanced.Active {
		slog.InfoContext(ctx, "Installment plan retired", "plan_id", plan.ID)
	}
	return advanced, nil
}

// Edit persists new totals for the plan, preserving the remaining count.
func (a *Amortizer) Edit(ctx context.Context, planID int64, newTotal core.Money, newCount int) (core.InstallmentPlan, error) {
	plan, err := a.storage.GetPlan(ctx, planID)
	if err != nil {
		return core.InstallmentPlan{}, err
	}
	edited, err := EditPlan(plan, newTotal, newCount)
	if err != nil {
		return core.InstallmentPlan{}, err
	}
	if err := a.storage.UpdatePlan(ctx, edited); err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("edit plan: %w", err)
	}
	return edited, nil
}

// Cancel retires a plan before its installments run out. Entries already
// materialized from the plan stay in the ledger.
func (a *Amortizer) Cancel(ctx context.Context, planID int64) error {
	plan, err := a.storage.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	plan.Active = false
	if err := a.storage.UpdatePlan(ctx, plan); err != nil {
		return fmt.Errorf("cancel plan: %w", err)
	}
	slog.InfoContext(ctx, "Installment plan cancelled", "plan_id", planID)
	return nil
}
