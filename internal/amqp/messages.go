package amqp

import (
	"encoding/json"
	"time"
)

const (
	ChangeEntryCreated = "entry_created"
	ChangeEntryUpdated = "entry_updated"
	ChangeEntryDeleted = "entry_deleted"
	ChangeTransfer     = "transfer"
)

// LedgerChangedMessage is the lightweight push notification published after a
// ledger mutation. Consumers fetch fresh state from the database; the message
// only says which account moved and why.
type LedgerChangedMessage struct {
	AccountID int64     `json:"account_id"`
	EntryID   int64     `json:"entry_id,omitempty"`
	Change    string    `json:"change"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage creates a change notification for one account.
func NewLedgerChangedMessage(accountID, entryID int64, change string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		AccountID: accountID,
		EntryID:   entryID,
		Change:    change,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON creates a message from JSON bytes
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
