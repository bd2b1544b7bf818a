package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

const entryColumns = `id, kind, amount_cents, entry_date, account_id, category, description, installment_plan_id`

// CreateEntry inserts a ledger entry. The caller is responsible for
// recomputing the account balance afterwards; entry writes never touch it.
func (r *Repository) CreateEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (kind, amount_cents, entry_date, account_id, category, description, installment_plan_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Amount.Cents, dateStr(e.Date), e.AccountID, e.Category, e.Description, e.InstallmentPlanID)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("create entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("entry id: %w", err)
	}
	e.ID = id
	e.Seq = id

	slog.InfoContext(ctx, "Ledger entry created",
		"id", id, "account_id", e.AccountID, "kind", e.Kind, "amount_cents", e.Amount.Cents)
	return e, nil
}

func (r *Repository) GetEntry(ctx context.Context, id int64) (core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ? AND deleted_at IS NULL`, id)
	var e core.LedgerEntry
	var kind, date string
	err := row.Scan(&e.ID, &kind, &e.Amount.Cents, &date, &e.AccountID, &e.Category, &e.Description, &e.InstallmentPlanID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.LedgerEntry{}, core.NotFound("entry", id)
	}
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("get entry: %w", err)
	}
	e.Seq = e.ID
	e.Kind = core.EntryKind(kind)
	e.Date = parseDate(date)
	return e, nil
}

// ListEntries returns the account's surviving entries ordered by date with
// insertion-order tiebreak, the order replay depends on.
func (r *Repository) ListEntries(ctx context.Context, accountID int64) ([]core.LedgerEntry, error) {
	return listEntries(ctx, r.db, accountID)
}

func listEntries(ctx context.Context, q querier, accountID int64) ([]core.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries
		WHERE account_id = ? AND deleted_at IS NULL
		ORDER BY entry_date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []core.LedgerEntry
	for rows.Next() {
		var e core.LedgerEntry
		var kind, date string
		if err := rows.Scan(&e.ID, &kind, &e.Amount.Cents, &date, &e.AccountID, &e.Category, &e.Description, &e.InstallmentPlanID); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Seq = e.ID
		e.Kind = core.EntryKind(kind)
		e.Date = parseDate(date)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateEntry rewrites an entry's mutable fields. Plan-derived entries are
// rejected at the service layer before this is reached.
func (r *Repository) UpdateEntry(ctx context.Context, e core.LedgerEntry) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET kind = ?, amount_cents = ?, entry_date = ?, category = ?, description = ?, synced = 0
		WHERE id = ? AND deleted_at IS NULL`,
		string(e.Kind), e.Amount.Cents, dateStr(e.Date), e.Category, e.Description, e.ID)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("entry", e.ID)
	}
	return nil
}

// SoftDeleteEntry hides the entry from replay without losing the row.
func (r *Repository) SoftDeleteEntry(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("entry", id)
	}
	slog.InfoContext(ctx, "Ledger entry deleted", "id", id)
	return nil
}

// PendingSyncEntry is the minimal row handed to the export worker.
type PendingSyncEntry struct {
	ID        int64
	AccountID int64
}

// GetPendingSyncEntries returns entries not yet mirrored to the export sheet.
func (r *Repository) GetPendingSyncEntries(ctx context.Context, limit int) ([]PendingSyncEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id FROM ledger_entries
		WHERE synced = 0 AND sync_error = 0 AND deleted_at IS NULL
		ORDER BY id LIMIT ?`, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync entries: %w", err)
	}
	defer rows.Close()

	var pending []PendingSyncEntry
	for rows.Next() {
		var p PendingSyncEntry
		if err := rows.Scan(&p.ID, &p.AccountID); err != nil {
			return nil, fmt.Errorf("scan pending entry: %w", err)
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// MarkSynced marks an entry as successfully mirrored.
func (r *Repository) MarkSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET synced = 1, sync_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark entry synced: %w", err)
	}
	return nil
}

// MarkSyncError flags an entry whose mirror attempt failed so the periodic
// sweep can retry or skip it.
func (r *Repository) MarkSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE ledger_entries SET sync_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark entry sync error: %w", err)
	}
	slog.WarnContext(ctx, "Entry marked with sync error", "id", id)
	return nil
}
