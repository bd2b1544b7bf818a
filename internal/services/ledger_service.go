package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/storage"
	"bilancio/internal/stream"
)

// LedgerService orchestrates entry mutations: every create, edit or delete is
// followed by a balance replay for the touched account, then a change
// notification on AMQP (cross-process) and the in-process broker.
type LedgerService struct {
	storage    *storage.Repository
	amqpClient *amqp.Client
	broker     *stream.Broker
}

func NewLedgerService(repo *storage.Repository, amqpClient *amqp.Client, broker *stream.Broker) *LedgerService {
	return &LedgerService{
		storage:    repo,
		amqpClient: amqpClient,
		broker:     broker,
	}
}

// CreateEntry validates, persists and replays. The account must exist.
func (s *LedgerService) CreateEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	if err := e.Validate(); err != nil {
		return core.LedgerEntry{}, &core.ValidationError{Reason: err.Error()}
	}
	account, err := s.storage.GetAccount(ctx, e.AccountID)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	if account.Kind == core.RevolvingCredit && e.Kind == core.Income {
		return core.LedgerEntry{}, &core.ValidationError{Reason: "income entries cannot target a revolving credit account"}
	}

	created, err := s.storage.CreateEntry(ctx, e)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("save entry: %w", err)
	}
	if _, err := s.storage.RecomputeBalance(ctx, created.AccountID); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("recompute after create: %w", err)
	}

	s.notify(ctx, created.AccountID, created.ID, amqp.ChangeEntryCreated)
	return created, nil
}

// UpdateEntry rewrites a user entry and replays. Entries generated by an
// installment plan cannot be edited directly; cancel the plan instead.
func (s *LedgerService) UpdateEntry(ctx context.Context, e core.LedgerEntry) (core.LedgerEntry, error) {
	existing, err := s.storage.GetEntry(ctx, e.ID)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	if existing.FromPlan() {
		return core.LedgerEntry{}, &core.ValidationError{Reason: "installment-generated entries cannot be edited; cancel the plan instead"}
	}
	e.AccountID = existing.AccountID
	e.InstallmentPlanID = existing.InstallmentPlanID
	if err := e.Validate(); err != nil {
		return core.LedgerEntry{}, &core.ValidationError{Reason: err.Error()}
	}

	if err := s.storage.UpdateEntry(ctx, e); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("update entry: %w", err)
	}
	if _, err := s.storage.RecomputeBalance(ctx, e.AccountID); err != nil {
		return core.LedgerEntry{}, fmt.Errorf("recompute after update: %w", err)
	}

	s.notify(ctx, e.AccountID, e.ID, amqp.ChangeEntryUpdated)
	return s.storage.GetEntry(ctx, e.ID)
}

// DeleteEntry soft-deletes a user entry and replays the account without it.
func (s *LedgerService) DeleteEntry(ctx context.Context, id int64) error {
	existing, err := s.storage.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if existing.FromPlan() {
		return &core.ValidationError{Reason: "installment-generated entries cannot be deleted; cancel the plan instead"}
	}

	if err := s.storage.SoftDeleteEntry(ctx, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if _, err := s.storage.RecomputeBalance(ctx, existing.AccountID); err != nil {
		return fmt.Errorf("recompute after delete: %w", err)
	}

	s.notify(ctx, existing.AccountID, id, amqp.ChangeEntryDeleted)
	return nil
}

// notify pushes the change to both delivery mechanisms. Neither failure is
// fatal: the entry is already durable in SQLite.
func (s *LedgerService) notify(ctx context.Context, accountID, entryID int64, change string) {
	if s.broker != nil {
		s.broker.Publish(stream.Change{AccountID: accountID, Kind: change})
	}
	if s.amqpClient == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping change message")
		return
	}
	if err := s.amqpClient.PublishLedgerChanged(ctx, accountID, entryID, change); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"account_id", accountID, "entry_id", entryID, "error", err)
	}
}

// NotifyTransfer publishes the change events for both sides of an applied
// transfer.
func (s *LedgerService) NotifyTransfer(ctx context.Context, t core.Transfer) {
	s.notify(ctx, t.FromAccountID, 0, amqp.ChangeTransfer)
	s.notify(ctx, t.ToAccountID, 0, amqp.ChangeTransfer)
}

// Close closes storage and AMQP connections.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}
