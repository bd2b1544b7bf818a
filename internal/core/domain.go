package core

import (
	"errors"
	"strings"
	"time"
)

const (
	AssetAccount      AccountKind = "asset"
	RevolvingCredit   AccountKind = "revolving_credit"
	InstallmentDebt   AccountKind = "installment_debt"

	Income  EntryKind = "income"
	Expense EntryKind = "expense"

	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

type (
	AccountKind string
	EntryKind   string
	Frequency   string

	Date struct {
		time.Time
	}

	// Account is one tracked account. Balance is always derived by replaying
	// the account's entry history, never mutated in place.
	Account struct {
		ID      int64
		Name    string
		Kind    AccountKind
		Balance Money

		// RevolvingCredit only
		CreditLimit Money

		// InstallmentDebt only
		TotalDebt       Money
		MonthlyPayment  Money
		RemainingMonths int
		NextPaymentDate Date

		CreatedAt time.Time
	}

	// LedgerEntry is a single dated income or expense against one account.
	// Entries carrying an InstallmentPlanID were generated by the amortizer
	// and cannot be edited or deleted directly.
	LedgerEntry struct {
		ID                int64
		Seq               int64 // insertion order, breaks same-date ties in replay
		Kind              EntryKind
		Amount            Money
		Date              Date
		AccountID         int64
		Category          string
		Description       string
		InstallmentPlanID int64 // 0 when user-created
	}

	// RecurringObligation is a template for a periodic income or expense that
	// has not yet materialized as entries.
	RecurringObligation struct {
		ID             int64
		Kind           EntryKind
		Amount         Money
		Every          Frequency
		NextOccurrence Date
		Category       string // expense obligations only
		Description    string
	}

	// InstallmentPlan is a fixed-count equal-payment amortization against a
	// revolving credit account.
	InstallmentPlan struct {
		ID                    int64
		AccountID             int64
		Description           string
		TotalAmount           Money
		InstallmentCount      int
		MonthlyAmount         Money
		RemainingInstallments int
		NextPaymentDate       Date
		Active                bool
	}

	// Transfer is the audit record of a two-account value movement.
	Transfer struct {
		ID            int64
		FromAccountID int64
		ToAccountID   int64
		Amount        Money
		Date          Date
		Description   string
	}

	// UserLedger is the full snapshot of one user's data, passed by value into
	// the read-side projections so they never reach for ambient state.
	UserLedger struct {
		Accounts    []Account
		Obligations []RecurringObligation
		Plans       []InstallmentPlan
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyDescription   = errors.New("empty description")
	ErrInvalidKind        = errors.New("invalid kind")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidInstallment = errors.New("installment count must be at least 1")
)

// NewDate builds a Date at UTC midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to a UTC calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// AddMonths advances the date by n calendar months.
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.AddDate(0, n, 0)}
}

// AddDays advances the date by n days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// FirstOfNextMonth returns the first day of the month after d.
func (d Date) FirstOfNextMonth() Date {
	return Date{Time: time.Date(d.Year(), d.Month()+1, 1, 0, 0, 0, 0, time.UTC)}
}

// EndOfMonth returns the last day of d's month.
func (d Date) EndOfMonth() Date {
	return Date{Time: time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC)}
}

func (k AccountKind) Valid() bool {
	switch k {
	case AssetAccount, RevolvingCredit, InstallmentDebt:
		return true
	}
	return false
}

func (k EntryKind) Valid() bool {
	return k == Income || k == Expense
}

func (f Frequency) Valid() bool {
	switch f {
	case Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if !a.Kind.Valid() {
		return ErrInvalidKind
	}
	if a.Kind == RevolvingCredit && a.CreditLimit.Cents <= 0 {
		return errors.New("revolving credit account requires a positive credit limit")
	}
	if a.Kind == InstallmentDebt {
		if a.TotalDebt.Cents <= 0 {
			return errors.New("installment debt account requires a positive total debt")
		}
		if a.MonthlyPayment.Cents <= 0 {
			return errors.New("installment debt account requires a positive monthly payment")
		}
	}
	return nil
}

// Headroom returns the remaining spendable credit on a revolving account.
func (a Account) Headroom() Money {
	if a.Kind != RevolvingCredit {
		return Money{}
	}
	return Money{Cents: a.CreditLimit.Cents - a.Balance.Cents}
}

func (e LedgerEntry) Validate() error {
	if !e.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if e.AccountID <= 0 {
		return errors.New("entry requires an account")
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// FromPlan reports whether the entry was generated by an installment plan.
func (e LedgerEntry) FromPlan() bool {
	return e.InstallmentPlanID != 0
}

func (o RecurringObligation) Validate() error {
	if !o.Kind.Valid() {
		return ErrInvalidKind
	}
	if err := o.Amount.Validate(); err != nil {
		return err
	}
	if !o.Every.Valid() {
		return ErrInvalidFrequency
	}
	if err := o.NextOccurrence.Validate(); err != nil {
		return err
	}
	if o.Kind == Expense && strings.TrimSpace(o.Category) == "" {
		return errors.New("expense obligation requires a category")
	}
	return nil
}

// Advance moves NextOccurrence one frequency step forward. It never moves
// backward: consuming an occurrence always yields a strictly later date.
func (o RecurringObligation) Advance() Date {
	switch o.Every {
	case Weekly:
		return o.NextOccurrence.AddDays(7)
	case Biweekly:
		return o.NextOccurrence.AddDays(14)
	default:
		return o.NextOccurrence.AddMonths(1)
	}
}

func (p InstallmentPlan) Validate() error {
	if p.AccountID <= 0 {
		return errors.New("plan requires an account")
	}
	if strings.TrimSpace(p.Description) == "" {
		return ErrEmptyDescription
	}
	if err := p.TotalAmount.Validate(); err != nil {
		return err
	}
	if p.InstallmentCount < 1 {
		return ErrInvalidInstallment
	}
	return nil
}
