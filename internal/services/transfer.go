package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// TransferCoordinator moves value between two accounts. The audit record and
// both balance updates commit in a single storage transaction, so observers
// never see only one side applied.
type TransferCoordinator struct {
	storage *storage.Repository
}

func NewTransferCoordinator(repo *storage.Repository) *TransferCoordinator {
	return &TransferCoordinator{storage: repo}
}

// ValidateTransfer checks the preconditions against the current balances.
func ValidateTransfer(from, to core.Account, amount core.Money) error {
	if from.ID == to.ID {
		return &core.ValidationError{Reason: "cannot transfer to the same account"}
	}
	if amount.Cents <= 0 {
		return &core.ValidationError{Reason: "amount must be positive"}
	}
	switch from.Kind {
	case core.AssetAccount:
		if from.Balance.Cents < amount.Cents {
			return core.Validationf("insufficient balance: have %s, need %s", from.Balance, amount)
		}
	case core.RevolvingCredit:
		if from.Headroom().Cents < amount.Cents {
			return core.Validationf("insufficient credit headroom: have %s, need %s", from.Headroom(), amount)
		}
	}
	return nil
}

// Transfer validates and applies a transfer, returning the persisted audit
// record. Failures roll back fully: either both accounts and the record
// commit, or nothing does.
func (c *TransferCoordinator) Transfer(ctx context.Context, fromID, toID int64, amount core.Money, description string, date core.Date) (core.Transfer, error) {
	from, err := c.storage.GetAccount(ctx, fromID)
	if err != nil {
		return core.Transfer{}, err
	}
	to, err := c.storage.GetAccount(ctx, toID)
	if err != nil {
		return core.Transfer{}, err
	}
	if err := ValidateTransfer(from, to, amount); err != nil {
		return core.Transfer{}, err
	}

	t := core.Transfer{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		Date:          date,
		Description:   description,
	}
	created, err := c.storage.ApplyTransfer(ctx, t)
	if err != nil {
		return core.Transfer{}, fmt.Errorf("apply transfer: %w", err)
	}

	slog.InfoContext(ctx, "Transfer applied",
		"transfer_id", created.ID,
		"from_account", fromID,
		"to_account", toID,
		"amount_cents", amount.Cents)
	return created, nil
}
