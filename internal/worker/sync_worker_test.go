package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

type fakeExporter struct {
	appended []core.LedgerEntry
	fail     bool
}

func (f *fakeExporter) Append(_ context.Context, _ string, e core.LedgerEntry) (string, error) {
	if f.fail {
		return "", errors.New("sheet unavailable")
	}
	f.appended = append(f.appended, e)
	return "Foglio1!A2:F2", nil
}

func newWorkerFixture(t *testing.T, exporter *fakeExporter) (*SyncWorker, *storage.Repository, core.Account, core.LedgerEntry) {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	account, err := repo.CreateAccount(ctx, core.Account{Name: "Conto", Kind: core.AssetAccount})
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	entry, err := repo.CreateEntry(ctx, core.LedgerEntry{
		Kind: core.Income, Amount: core.Money{Cents: 50000},
		Date: core.NewDate(2025, 6, 1), AccountID: account.ID,
	})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	var w *SyncWorker
	if exporter != nil {
		w = NewSyncWorker(repo, exporter, 10)
	} else {
		w = NewSyncWorker(repo, nil, 10)
	}
	return w, repo, account, entry
}

func TestHandleChangeMessageReplaysAndMirrors(t *testing.T) {
	exporter := &fakeExporter{}
	w, repo, account, entry := newWorkerFixture(t, exporter)
	ctx := context.Background()

	msg := amqp.NewLedgerChangedMessage(account.ID, entry.ID, amqp.ChangeEntryCreated)
	if err := w.HandleChangeMessage(ctx, msg); err != nil {
		t.Fatalf("HandleChangeMessage: %v", err)
	}

	got, err := repo.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance.Cents != 50000 {
		t.Errorf("balance = %d, want 50000", got.Balance.Cents)
	}
	if len(exporter.appended) != 1 || exporter.appended[0].ID != entry.ID {
		t.Errorf("appended = %v, want entry %d mirrored once", exporter.appended, entry.ID)
	}

	pending, err := repo.GetPendingSyncEntries(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncEntries: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after mirror", len(pending))
	}
}

func TestHandleChangeMessageIsIdempotent(t *testing.T) {
	exporter := &fakeExporter{}
	w, repo, account, entry := newWorkerFixture(t, exporter)
	ctx := context.Background()

	msg := amqp.NewLedgerChangedMessage(account.ID, entry.ID, amqp.ChangeTransfer)
	if err := w.HandleChangeMessage(ctx, msg); err != nil {
		t.Fatalf("HandleChangeMessage: %v", err)
	}
	if err := w.HandleChangeMessage(ctx, msg); err != nil {
		t.Fatalf("HandleChangeMessage (redelivery): %v", err)
	}

	got, err := repo.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	// Replay from history, so double delivery never double-applies.
	if got.Balance.Cents != 50000 {
		t.Errorf("balance = %d, want 50000", got.Balance.Cents)
	}
}

func TestNilExporterMarksEntriesSynced(t *testing.T) {
	w, repo, _, _ := newWorkerFixture(t, nil)
	ctx := context.Background()

	if err := w.ProcessPendingEntries(ctx); err != nil {
		t.Fatalf("ProcessPendingEntries: %v", err)
	}
	pending, err := repo.GetPendingSyncEntries(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncEntries: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 in SQLite-only mode", len(pending))
	}
}

func TestFailedMirrorMarksSyncError(t *testing.T) {
	exporter := &fakeExporter{fail: true}
	w, repo, account, entry := newWorkerFixture(t, exporter)
	ctx := context.Background()

	msg := amqp.NewLedgerChangedMessage(account.ID, entry.ID, amqp.ChangeEntryCreated)
	if err := w.HandleChangeMessage(ctx, msg); err == nil {
		t.Fatal("expected error when exporter fails")
	}

	// Errored entries leave the pending sweep so one bad row cannot wedge it.
	pending, err := repo.GetPendingSyncEntries(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncEntries: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after sync error", len(pending))
	}
}

func TestStartupSyncCheckSweepsBacklog(t *testing.T) {
	exporter := &fakeExporter{}
	w, repo, account, _ := newWorkerFixture(t, exporter)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := repo.CreateEntry(ctx, core.LedgerEntry{
			Kind: core.Expense, Amount: core.Money{Cents: 1000},
			Date: core.NewDate(2025, 6, 2+i), AccountID: account.ID, Category: "Bar",
		}); err != nil {
			t.Fatalf("CreateEntry: %v", err)
		}
	}

	if err := w.StartupSyncCheck(ctx); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	// The fixture entry plus three backlog entries.
	if len(exporter.appended) != 4 {
		t.Errorf("appended = %d entries, want 4", len(exporter.appended))
	}
}
