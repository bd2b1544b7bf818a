// Package storage persists the ledger in SQLite and owns every balance write.
//
// Balances are never adjusted in place: after any entry or transfer mutation
// the affected account's balance column is rewritten from a full history
// replay, inside the same transaction where atomicity matters.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

// Repository is the SQLite-backed store for accounts, entries, obligations,
// plans and transfers.
type Repository struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx so replay queries can run
// inside or outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func dateStr(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func parseDate(s string) core.Date {
	if s == "" {
		return core.Date{}
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}
	}
	return core.Date{Time: t}
}

// CreateAccount persists a new account. The initial balance is always zero;
// it only ever changes through replay.
func (r *Repository) CreateAccount(ctx context.Context, a core.Account) (core.Account, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (name, kind, credit_limit_cents, total_debt_cents, monthly_payment_cents, remaining_months, next_payment_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.Name, string(a.Kind), a.CreditLimit.Cents, a.TotalDebt.Cents,
		a.MonthlyPayment.Cents, a.RemainingMonths, dateStr(a.NextPaymentDate))
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Account{}, fmt.Errorf("account id: %w", err)
	}

	slog.InfoContext(ctx, "Account created", "id", id, "name", a.Name, "kind", a.Kind)
	return r.GetAccount(ctx, id)
}

func scanAccount(row *sql.Row) (core.Account, error) {
	var a core.Account
	var kind, nextPayment string
	err := row.Scan(&a.ID, &a.Name, &kind, &a.Balance.Cents, &a.CreditLimit.Cents,
		&a.TotalDebt.Cents, &a.MonthlyPayment.Cents, &a.RemainingMonths, &nextPayment, &a.CreatedAt)
	if err != nil {
		return core.Account{}, err
	}
	a.Kind = core.AccountKind(kind)
	a.NextPaymentDate = parseDate(nextPayment)
	return a, nil
}

const accountColumns = `id, name, kind, balance_cents, credit_limit_cents, total_debt_cents, monthly_payment_cents, remaining_months, next_payment_date, created_at`

func (r *Repository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	return getAccount(ctx, r.db, id)
}

func getAccount(ctx context.Context, q querier, id int64) (core.Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND deleted_at IS NULL`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NotFound("account", id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		var kind, nextPayment string
		if err := rows.Scan(&a.ID, &a.Name, &kind, &a.Balance.Cents, &a.CreditLimit.Cents,
			&a.TotalDebt.Cents, &a.MonthlyPayment.Cents, &a.RemainingMonths, &nextPayment, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		a.Kind = core.AccountKind(kind)
		a.NextPaymentDate = parseDate(nextPayment)
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// UpdateAccount rewrites the editable account fields. The balance column is
// excluded on purpose: only replay writes it.
func (r *Repository) UpdateAccount(ctx context.Context, a core.Account) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET name = ?, credit_limit_cents = ?, total_debt_cents = ?, monthly_payment_cents = ?, remaining_months = ?, next_payment_date = ?
		WHERE id = ? AND deleted_at IS NULL`,
		a.Name, a.CreditLimit.Cents, a.TotalDebt.Cents, a.MonthlyPayment.Cents,
		a.RemainingMonths, dateStr(a.NextPaymentDate), a.ID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("account", a.ID)
	}
	return nil
}

func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("account", id)
	}
	slog.InfoContext(ctx, "Account deleted", "id", id)
	return nil
}

// RecomputeBalance replays the account's full history and writes the result
// to the balance column, returning the new balance.
func (r *Repository) RecomputeBalance(ctx context.Context, accountID int64) (core.Money, error) {
	return recomputeBalance(ctx, r.db, accountID)
}

func recomputeBalance(ctx context.Context, q querier, accountID int64) (core.Money, error) {
	account, err := getAccount(ctx, q, accountID)
	if err != nil {
		return core.Money{}, err
	}
	entries, err := listEntries(ctx, q, accountID)
	if err != nil {
		return core.Money{}, err
	}
	transfers, err := listTransfersFor(ctx, q, accountID)
	if err != nil {
		return core.Money{}, err
	}

	balance := core.RecomputeAccount(account, entries, transfers)
	if _, err := q.ExecContext(ctx,
		`UPDATE accounts SET balance_cents = ? WHERE id = ?`, balance.Cents, accountID); err != nil {
		return core.Money{}, fmt.Errorf("write balance: %w", err)
	}

	slog.DebugContext(ctx, "Balance recomputed",
		"account_id", accountID, "balance_cents", balance.Cents, "entries", len(entries))
	return balance, nil
}

// ApplyTransfer inserts the audit record and recomputes both account balances
// in one transaction. Observers never see only one side updated.
func (r *Repository) ApplyTransfer(ctx context.Context, t core.Transfer) (core.Transfer, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transfers (from_account_id, to_account_id, amount_cents, transfer_date, description)
		VALUES (?, ?, ?, ?, ?)`,
		t.FromAccountID, t.ToAccountID, t.Amount.Cents, dateStr(t.Date), t.Description)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("insert transfer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transfer{}, fmt.Errorf("transfer id: %w", err)
	}
	t.ID = id

	if _, err := recomputeBalance(ctx, tx, t.FromAccountID); err != nil {
		return core.Transfer{}, fmt.Errorf("recompute source: %w", err)
	}
	if _, err := recomputeBalance(ctx, tx, t.ToAccountID); err != nil {
		return core.Transfer{}, fmt.Errorf("recompute destination: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transfer{}, fmt.Errorf("commit transfer: %w", err)
	}
	return t, nil
}

func listTransfersFor(ctx context.Context, q querier, accountID int64) ([]core.Transfer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, from_account_id, to_account_id, amount_cents, transfer_date, description
		FROM transfers
		WHERE from_account_id = ? OR to_account_id = ?
		ORDER BY transfer_date, id`, accountID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []core.Transfer
	for rows.Next() {
		var t core.Transfer
		var date string
		if err := rows.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount.Cents, &date, &t.Description); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.Date = parseDate(date)
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// ListTransfers returns every transfer touching the account, oldest first.
func (r *Repository) ListTransfers(ctx context.Context, accountID int64) ([]core.Transfer, error) {
	return listTransfersFor(ctx, r.db, accountID)
}

// LoadUserLedger assembles the full snapshot handed to the read-side
// projections.
func (r *Repository) LoadUserLedger(ctx context.Context) (core.UserLedger, error) {
	accounts, err := r.ListAccounts(ctx)
	if err != nil {
		return core.UserLedger{}, err
	}
	obligations, err := r.ListObligations(ctx)
	if err != nil {
		return core.UserLedger{}, err
	}
	plans, err := r.ListPlans(ctx)
	if err != nil {
		return core.UserLedger{}, err
	}
	return core.UserLedger{Accounts: accounts, Obligations: obligations, Plans: plans}, nil
}
