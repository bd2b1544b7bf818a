package services

import (
	"context"
	"testing"

	"bilancio/internal/core"
)

func TestMonthlyEquivalentFactors(t *testing.T) {
	amount := core.Money{Cents: 5000}

	tests := []struct {
		name      string
		frequency core.Frequency
		want      int64
	}{
		{"weekly scales by four", core.Weekly, 20000},
		{"biweekly scales by two", core.Biweekly, 10000},
		{"monthly is unchanged", core.Monthly, 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := GetScheduler(tt.frequency)
			if err != nil {
				t.Fatalf("GetScheduler(%s): %v", tt.frequency, err)
			}
			if got := s.MonthlyEquivalent(amount); got.Cents != tt.want {
				t.Errorf("MonthlyEquivalent = %d, want %d", got.Cents, tt.want)
			}
		})
	}
}

func TestGetSchedulerUnknownFrequency(t *testing.T) {
	if _, err := GetScheduler(core.Frequency("quarterly")); err == nil {
		t.Error("expected error for unknown frequency")
	}
}

func TestWeeklyAmountInPeriod(t *testing.T) {
	amount := core.Money{Cents: 5000}
	periodEnd := core.NewDate(2025, 6, 30)

	tests := []struct {
		name string
		next core.Date
		want int64
	}{
		// Jun 10, 17, 24 all land before month end.
		{"three occurrences remain", core.NewDate(2025, 6, 10), 15000},
		{"single occurrence on the last day", core.NewDate(2025, 6, 30), 5000},
		{"next occurrence past period end", core.NewDate(2025, 7, 2), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeeklyScheduler{}.AmountInPeriod(amount, tt.next, periodEnd)
			if got.Cents != tt.want {
				t.Errorf("AmountInPeriod = %d, want %d", got.Cents, tt.want)
			}
		})
	}
}

func TestBiweeklyAndMonthlyCountAtMostOnce(t *testing.T) {
	amount := core.Money{Cents: 7500}
	periodEnd := core.NewDate(2025, 6, 30)
	inside := core.NewDate(2025, 6, 3)
	outside := core.NewDate(2025, 7, 1)

	for name, s := range map[string]OccurrenceScheduler{
		"biweekly": BiweeklyScheduler{},
		"monthly":  MonthlyScheduler{},
	} {
		if got := s.AmountInPeriod(amount, inside, periodEnd); got.Cents != 7500 {
			t.Errorf("%s inside period = %d, want 7500", name, got.Cents)
		}
		if got := s.AmountInPeriod(amount, outside, periodEnd); got.Cents != 0 {
			t.Errorf("%s outside period = %d, want 0", name, got.Cents)
		}
	}
}

func TestNormalizeMonthly(t *testing.T) {
	ctx := context.Background()
	obligations := []core.RecurringObligation{
		{Kind: core.Income, Amount: core.Money{Cents: 5000}, Every: core.Weekly},
		{Kind: core.Expense, Amount: core.Money{Cents: 80000}, Every: core.Monthly, Category: "Affitto"},
		{Kind: core.Expense, Amount: core.Money{Cents: 3000}, Every: core.Biweekly, Category: "Palestra"},
	}

	got := NormalizeMonthly(ctx, obligations)
	if got.Income.Cents != 20000 {
		t.Errorf("Income = %d, want 20000", got.Income.Cents)
	}
	if got.Expense.Cents != 86000 {
		t.Errorf("Expense = %d, want 86000", got.Expense.Cents)
	}
}

func TestNormalizeMonthlySkipsUnknownFrequency(t *testing.T) {
	ctx := context.Background()
	obligations := []core.RecurringObligation{
		{Kind: core.Expense, Amount: core.Money{Cents: 10000}, Every: core.Monthly, Category: "Bollette"},
		{Kind: core.Expense, Amount: core.Money{Cents: 99999}, Every: core.Frequency("yearly")},
	}

	got := NormalizeMonthly(ctx, obligations)
	if got.Expense.Cents != 10000 {
		t.Errorf("Expense = %d, want 10000 (unknown frequency must contribute zero)", got.Expense.Cents)
	}
}

func TestProjectPeriod(t *testing.T) {
	ctx := context.Background()
	periodEnd := core.NewDate(2025, 6, 30)
	obligations := []core.RecurringObligation{
		{Kind: core.Income, Amount: core.Money{Cents: 5000}, Every: core.Weekly, NextOccurrence: core.NewDate(2025, 6, 12)},
		{Kind: core.Expense, Amount: core.Money{Cents: 80000}, Every: core.Monthly, NextOccurrence: core.NewDate(2025, 6, 27), Category: "Affitto"},
		{Kind: core.Expense, Amount: core.Money{Cents: 3000}, Every: core.Monthly, NextOccurrence: core.NewDate(2025, 7, 5), Category: "Palestra"},
	}

	got := ProjectPeriod(ctx, obligations, periodEnd)
	// Weekly income lands Jun 12, 19, 26.
	if got.Incomes.Cents != 15000 {
		t.Errorf("Incomes = %d, want 15000", got.Incomes.Cents)
	}
	if got.Expenses.Cents != 80000 {
		t.Errorf("Expenses = %d, want 80000 (July obligation excluded)", got.Expenses.Cents)
	}
}
