package worker

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/export"
	"bilancio/internal/storage"
)

// SyncWorker reacts to ledger-change messages: it replays the touched
// account's balance and mirrors materialized entries to the export sheet.
// Because balances are replayed from the full entry set, duplicate or
// out-of-order deliveries are harmless.
type SyncWorker struct {
	storage   *storage.Repository
	exporter  export.EntryWriter
	batchSize int
}

func NewSyncWorker(repo *storage.Repository, exporter export.EntryWriter, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   repo,
		exporter:  exporter,
		batchSize: batchSize,
	}
}

// HandleChangeMessage processes a single ledger-change message.
func (w *SyncWorker) HandleChangeMessage(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	slog.InfoContext(ctx, "Processing ledger change",
		"account_id", msg.AccountID,
		"change", msg.Change)

	balance, err := w.storage.RecomputeBalance(ctx, msg.AccountID)
	if err != nil {
		return fmt.Errorf("recompute account %d: %w", msg.AccountID, err)
	}
	slog.InfoContext(ctx, "Account balance replayed",
		"account_id", msg.AccountID,
		"balance_cents", balance.Cents)

	if msg.Change == amqp.ChangeEntryCreated && msg.EntryID != 0 {
		if err := w.mirrorEntry(ctx, msg.EntryID); err != nil {
			return fmt.Errorf("mirror entry %d: %w", msg.EntryID, err)
		}
	}
	return nil
}

// ProcessPendingEntries mirrors any entries the message path missed. Backup
// mechanism for lost AMQP messages or worker downtime.
func (w *SyncWorker) ProcessPendingEntries(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncEntries(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending entries: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending entries", "count", len(pending))
	for _, p := range pending {
		if err := w.mirrorEntry(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror entry", "id", p.ID, "error", err)
		}
	}
	return nil
}

// StartupSyncCheck sweeps a larger pending batch once at worker startup to
// recover from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncEntries(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending entries for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending entries found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending entries on startup, processing...",
		"count", len(pending))

	synced := 0
	failed := 0
	for _, p := range pending {
		if err := w.mirrorEntry(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror entry during startup",
				"id", p.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending), "synced", synced, "errors", failed)
	return nil
}

func (w *SyncWorker) mirrorEntry(ctx context.Context, id int64) error {
	if w.exporter == nil {
		// SQLite-only mode: mark as synced so the sweep stays quiet.
		return w.storage.MarkSynced(ctx, id)
	}

	entry, err := w.storage.GetEntry(ctx, id)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", markErr)
		}
		return fmt.Errorf("get entry: %w", err)
	}

	account, err := w.storage.GetAccount(ctx, entry.AccountID)
	if err != nil {
		// Entry points at a deleted account: log the inconsistency and move
		// on, the row cannot be mirrored meaningfully.
		slog.WarnContext(ctx, "Entry references a missing account, skipping mirror",
			"entry_id", id, "account_id", entry.AccountID)
		return w.storage.MarkSynced(ctx, id)
	}

	ref, err := w.exporter.Append(ctx, account.Name, entry)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", id, "error", err)
		// The mirror worked; don't fail the message over bookkeeping.
	}

	slog.InfoContext(ctx, "Entry mirrored",
		"id", id, "sheet_ref", ref, "amount_cents", entry.Amount.Cents)
	return nil
}
