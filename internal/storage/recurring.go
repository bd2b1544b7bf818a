package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

const obligationColumns = `id, kind, amount_cents, frequency, next_occurrence, category, description`

func (r *Repository) CreateObligation(ctx context.Context, o core.RecurringObligation) (core.RecurringObligation, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_obligations (kind, amount_cents, frequency, next_occurrence, category, description)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(o.Kind), o.Amount.Cents, string(o.Every), dateStr(o.NextOccurrence), o.Category, o.Description)
	if err != nil {
		return core.RecurringObligation{}, fmt.Errorf("create obligation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.RecurringObligation{}, fmt.Errorf("obligation id: %w", err)
	}
	o.ID = id

	slog.InfoContext(ctx, "Recurring obligation created",
		"id", id, "kind", o.Kind, "frequency", o.Every, "amount_cents", o.Amount.Cents)
	return o, nil
}

func scanObligation(scan func(dest ...any) error) (core.RecurringObligation, error) {
	var o core.RecurringObligation
	var kind, freq, next string
	if err := scan(&o.ID, &kind, &o.Amount.Cents, &freq, &next, &o.Category, &o.Description); err != nil {
		return core.RecurringObligation{}, err
	}
	o.Kind = core.EntryKind(kind)
	o.Every = core.Frequency(freq)
	o.NextOccurrence = parseDate(next)
	return o, nil
}

func (r *Repository) GetObligation(ctx context.Context, id int64) (core.RecurringObligation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+obligationColumns+` FROM recurring_obligations WHERE id = ? AND deleted_at IS NULL`, id)
	o, err := scanObligation(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringObligation{}, core.NotFound("obligation", id)
	}
	if err != nil {
		return core.RecurringObligation{}, fmt.Errorf("get obligation: %w", err)
	}
	return o, nil
}

func (r *Repository) ListObligations(ctx context.Context) ([]core.RecurringObligation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+obligationColumns+` FROM recurring_obligations WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	defer rows.Close()

	var obligations []core.RecurringObligation
	for rows.Next() {
		o, err := scanObligation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		obligations = append(obligations, o)
	}
	return obligations, rows.Err()
}

// ListDueObligations returns obligations whose next occurrence is on or before
// asOf, ready to materialize.
func (r *Repository) ListDueObligations(ctx context.Context, asOf core.Date) ([]core.RecurringObligation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+obligationColumns+` FROM recurring_obligations
		WHERE deleted_at IS NULL AND next_occurrence <= ?
		ORDER BY next_occurrence, id`, dateStr(asOf))
	if err != nil {
		return nil, fmt.Errorf("list due obligations: %w", err)
	}
	defer rows.Close()

	var due []core.RecurringObligation
	for rows.Next() {
		o, err := scanObligation(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		due = append(due, o)
	}
	return due, rows.Err()
}

func (r *Repository) UpdateObligation(ctx context.Context, o core.RecurringObligation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_obligations
		SET kind = ?, amount_cents = ?, frequency = ?, next_occurrence = ?, category = ?, description = ?
		WHERE id = ? AND deleted_at IS NULL`,
		string(o.Kind), o.Amount.Cents, string(o.Every), dateStr(o.NextOccurrence), o.Category, o.Description, o.ID)
	if err != nil {
		return fmt.Errorf("update obligation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("obligation", o.ID)
	}
	return nil
}

// AdvanceObligation writes the consumed occurrence's successor date. The
// guard keeps next_occurrence moving strictly forward.
func (r *Repository) AdvanceObligation(ctx context.Context, id int64, next core.Date) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurring_obligations SET next_occurrence = ?
		WHERE id = ? AND deleted_at IS NULL AND next_occurrence < ?`,
		dateStr(next), id, dateStr(next))
	if err != nil {
		return fmt.Errorf("advance obligation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("obligation", id)
	}
	return nil
}

func (r *Repository) DeleteObligation(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_obligations SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete obligation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("obligation", id)
	}
	slog.InfoContext(ctx, "Recurring obligation deleted", "id", id)
	return nil
}

const planColumns = `id, account_id, description, total_amount_cents, installment_count, monthly_amount_cents, remaining_installments, next_payment_date, active`

func (r *Repository) CreatePlan(ctx context.Context, p core.InstallmentPlan) (core.InstallmentPlan, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO installment_plans (account_id, description, total_amount_cents, installment_count, monthly_amount_cents, remaining_installments, next_payment_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.AccountID, p.Description, p.TotalAmount.Cents, p.InstallmentCount,
		p.MonthlyAmount.Cents, p.RemainingInstallments, dateStr(p.NextPaymentDate), boolInt(p.Active))
	if err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("create plan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("plan id: %w", err)
	}
	p.ID = id
	return p, nil
}

func scanPlan(scan func(dest ...any) error) (core.InstallmentPlan, error) {
	var p core.InstallmentPlan
	var next string
	var active int
	if err := scan(&p.ID, &p.AccountID, &p.Description, &p.TotalAmount.Cents, &p.InstallmentCount,
		&p.MonthlyAmount.Cents, &p.RemainingInstallments, &next, &active); err != nil {
		return core.InstallmentPlan{}, err
	}
	p.NextPaymentDate = parseDate(next)
	p.Active = active != 0
	return p, nil
}

func (r *Repository) GetPlan(ctx context.Context, id int64) (core.InstallmentPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM installment_plans WHERE id = ?`, id)
	p, err := scanPlan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.InstallmentPlan{}, core.NotFound("plan", id)
	}
	if err != nil {
		return core.InstallmentPlan{}, fmt.Errorf("get plan: %w", err)
	}
	return p, nil
}

func (r *Repository) ListPlans(ctx context.Context) ([]core.InstallmentPlan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM installment_plans ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []core.InstallmentPlan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// ListDuePlans returns active plans whose next payment date has elapsed.
func (r *Repository) ListDuePlans(ctx context.Context, asOf core.Date) ([]core.InstallmentPlan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM installment_plans
		WHERE active = 1 AND next_payment_date <= ?
		ORDER BY next_payment_date, id`, dateStr(asOf))
	if err != nil {
		return nil, fmt.Errorf("list due plans: %w", err)
	}
	defer rows.Close()

	var due []core.InstallmentPlan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		due = append(due, p)
	}
	return due, rows.Err()
}

func (r *Repository) UpdatePlan(ctx context.Context, p core.InstallmentPlan) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE installment_plans
		SET description = ?, total_amount_cents = ?, installment_count = ?, monthly_amount_cents = ?, remaining_installments = ?, next_payment_date = ?, active = ?
		WHERE id = ?`,
		p.Description, p.TotalAmount.Cents, p.InstallmentCount, p.MonthlyAmount.Cents,
		p.RemainingInstallments, dateStr(p.NextPaymentDate), boolInt(p.Active), p.ID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("plan", p.ID)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
