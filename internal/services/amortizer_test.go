package services

import (
	"errors"
	"testing"

	"bilancio/internal/core"
)

func creditAccount() core.Account {
	return core.Account{
		ID:          7,
		Name:        "Carta di credito",
		Kind:        core.RevolvingCredit,
		CreditLimit: core.Money{Cents: 500000},
	}
}

func TestNewPlanSplitsEvenly(t *testing.T) {
	today := core.NewDate(2025, 6, 10)
	p, err := NewPlan(creditAccount(), "Lavatrice", core.Money{Cents: 120000}, 12, today)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	if p.MonthlyAmount.Cents != 10000 {
		t.Errorf("MonthlyAmount = %d, want 10000", p.MonthlyAmount.Cents)
	}
	if p.RemainingInstallments != 12 {
		t.Errorf("RemainingInstallments = %d, want 12", p.RemainingInstallments)
	}
	if !p.Active {
		t.Error("new plan must be active")
	}
	if want := core.NewDate(2025, 7, 1); !p.NextPaymentDate.Equal(want.Time) {
		t.Errorf("NextPaymentDate = %v, want %v", p.NextPaymentDate, want)
	}
}

func TestNewPlanRoundsHalfUp(t *testing.T) {
	// 100.00 over 3 installments: 33.33 rounds to 33.33, half-up on the cent.
	p, err := NewPlan(creditAccount(), "Telefono", core.Money{Cents: 10000}, 3, core.NewDate(2025, 1, 15))
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if p.MonthlyAmount.Cents != 3333 {
		t.Errorf("MonthlyAmount = %d, want 3333", p.MonthlyAmount.Cents)
	}
}

func TestNewPlanRejectsNonCreditAccount(t *testing.T) {
	asset := core.Account{ID: 1, Name: "Conto", Kind: core.AssetAccount}
	_, err := NewPlan(asset, "Divano", core.Money{Cents: 50000}, 5, core.NewDate(2025, 6, 1))
	if err == nil {
		t.Fatal("expected error for asset account")
	}
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %T", err)
	}
}

func TestNewPlanRejectsInvalidInputs(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		total core.Money
		count int
	}{
		{"zero total", "Divano", core.Money{}, 5},
		{"negative total", "Divano", core.Money{Cents: -100}, 5},
		{"zero installments", "Divano", core.Money{Cents: 50000}, 0},
		{"empty description", "  ", core.Money{Cents: 50000}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPlan(creditAccount(), tt.desc, tt.total, tt.count, core.NewDate(2025, 6, 1)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAdvancePlanRunsToRetirement(t *testing.T) {
	p, err := NewPlan(creditAccount(), "Lavatrice", core.Money{Cents: 120000}, 12, core.NewDate(2025, 6, 10))
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}

	for i := 0; i < 12; i++ {
		if !p.Active {
			t.Fatalf("plan retired early after %d advances", i)
		}
		p = AdvancePlan(p)
	}

	if p.RemainingInstallments != 0 {
		t.Errorf("RemainingInstallments = %d, want 0", p.RemainingInstallments)
	}
	if p.Active {
		t.Error("plan must be inactive after the last installment")
	}
	// Started at Jul 1, advanced 12 times.
	if want := core.NewDate(2026, 7, 1); !p.NextPaymentDate.Equal(want.Time) {
		t.Errorf("NextPaymentDate = %v, want %v", p.NextPaymentDate, want)
	}
}

func TestEditPlanPreservesRemainingInstallments(t *testing.T) {
	p, err := NewPlan(creditAccount(), "Lavatrice", core.Money{Cents: 120000}, 12, core.NewDate(2025, 6, 10))
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	p = AdvancePlan(p)
	p = AdvancePlan(p)

	edited, err := EditPlan(p, core.Money{Cents: 60000}, 6)
	if err != nil {
		t.Fatalf("EditPlan: %v", err)
	}
	if edited.MonthlyAmount.Cents != 10000 {
		t.Errorf("MonthlyAmount = %d, want 10000", edited.MonthlyAmount.Cents)
	}
	// Two installments already consumed: the count stays where it was.
	if edited.RemainingInstallments != 10 {
		t.Errorf("RemainingInstallments = %d, want 10", edited.RemainingInstallments)
	}
	if edited.InstallmentCount != 6 {
		t.Errorf("InstallmentCount = %d, want 6", edited.InstallmentCount)
	}
}

func TestEditPlanRejectsInvalidInputs(t *testing.T) {
	p, err := NewPlan(creditAccount(), "Lavatrice", core.Money{Cents: 120000}, 12, core.NewDate(2025, 6, 10))
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if _, err := EditPlan(p, core.Money{}, 6); err == nil {
		t.Error("expected error for zero total")
	}
	if _, err := EditPlan(p, core.Money{Cents: 60000}, 0); err == nil {
		t.Error("expected error for zero count")
	}
}
