package events

import (
	"encoding/json"
	"time"
)

// Ledger mutation actions carried by published events.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// LedgerEvent is a lightweight notification that an expense row changed.
// Consumers that need the row contents fetch them from the store.
type LedgerEvent struct {
	Action    string    `json:"action"`
	ExpenseID int64     `json:"expense_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(action string, expenseID int64, username string) *LedgerEvent {
	return &LedgerEvent{
		Action:    action,
		ExpenseID: expenseID,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
