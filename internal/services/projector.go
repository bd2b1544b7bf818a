package services

import (
	"context"
	"log/slog"

	"bilancio/internal/core"
)

// BudgetProjection is the dashboard figure set derived from one ledger
// snapshot. FreeMoney may be negative; DailyBudget never is.
type BudgetProjection struct {
	FreeMoney              core.Money `json:"free_money"`
	DailyBudget            core.Money `json:"daily_budget"`
	PeriodUpcomingExpenses core.Money `json:"period_upcoming_expenses"`
	PeriodUpcomingIncomes  core.Money `json:"period_upcoming_incomes"`
	NetMonthlyDisposable   core.Money `json:"net_monthly_disposable"`

	// CreditHeadroom is reported separately and never added into FreeMoney,
	// so the dashboard does not encourage spending against debt.
	CreditHeadroom core.Money `json:"credit_headroom"`

	DaysRemaining int `json:"days_remaining"`
}

// ProjectBudget composes the replayed balances, the normalized obligations and
// the active installment plans into the spendable figures for the rest of the
// current month. It is a read-side derivation: a missing or malformed piece
// degrades to a zero contribution so the dashboard always renders a number.
func ProjectBudget(ctx context.Context, ledger core.UserLedger, today core.Date) BudgetProjection {
	periodEnd := today.EndOfMonth()

	var assets, headroom core.Money
	for _, a := range ledger.Accounts {
		switch a.Kind {
		case core.AssetAccount:
			assets = assets.Add(a.Balance)
		case core.RevolvingCredit:
			headroom = headroom.Add(a.Headroom())
		}
	}

	period := ProjectPeriod(ctx, ledger.Obligations, periodEnd)
	monthly := NormalizeMonthly(ctx, ledger.Obligations)

	upcomingExpenses := period.Expenses
	var planMonthly core.Money
	for _, p := range ledger.Plans {
		if !p.Active {
			continue
		}
		planMonthly = planMonthly.Add(p.MonthlyAmount)
		if !p.NextPaymentDate.After(periodEnd.Time) {
			upcomingExpenses = upcomingExpenses.Add(p.MonthlyAmount)
		}
	}
	for _, a := range ledger.Accounts {
		if a.Kind != core.InstallmentDebt {
			continue
		}
		if a.NextPaymentDate.IsZero() {
			slog.WarnContext(ctx, "Installment debt account without next payment date, contributing zero",
				"account_id", a.ID)
			continue
		}
		if !a.NextPaymentDate.After(periodEnd.Time) {
			upcomingExpenses = upcomingExpenses.Add(a.MonthlyPayment)
		}
	}

	freeMoney := assets.Sub(upcomingExpenses).Add(period.Incomes)

	days := daysRemaining(today, periodEnd)
	daily := freeMoney.DivideEven(int64(days))
	if daily.Cents < 0 {
		daily = core.Money{}
	}

	return BudgetProjection{
		FreeMoney:              freeMoney,
		DailyBudget:            daily,
		PeriodUpcomingExpenses: upcomingExpenses,
		PeriodUpcomingIncomes:  period.Incomes,
		NetMonthlyDisposable:   monthly.Income.Sub(monthly.Expense.Add(planMonthly)),
		CreditHeadroom:         headroom,
		DaysRemaining:          days,
	}
}

// daysRemaining counts today through periodEnd inclusive, never below 1.
func daysRemaining(today, periodEnd core.Date) int {
	days := int(periodEnd.Sub(today.Time).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}
