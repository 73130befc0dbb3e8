package queue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StaleInvoicedMessage flags a payment session that reached the Invoiced
// state (an invoice was stored and the Lightning payment was attempted)
// but never observed a corresponding Paid transition within the
// reconciliation window. This is the residual state a client disconnect
// between the backend's pay_invoice call and the mark_paid write leaves
// behind: the core never retries or reverses it, so an operational
// consumer of this stream is the only way such a session gets resolved.
type StaleInvoicedMessage struct {
	PaymentID    int64  `json:"payment_id"`
	CardID       int64  `json:"card_id"`
	Invoice      string `json:"invoice"`
	AmountMsats  int64  `json:"amount_msats"`
	CreatedAtRFC string `json:"created_at"`
}

// ToJSON serializes the StaleInvoicedMessage to JSON bytes.
func (m *StaleInvoicedMessage) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stale invoiced message: %w", err)
	}
	return data, nil
}

// FromJSONStaleInvoiced deserializes JSON bytes into a StaleInvoicedMessage
// and validates it.
func FromJSONStaleInvoiced(data []byte) (*StaleInvoicedMessage, error) {
	msg := &StaleInvoicedMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stale invoiced message: %w", err)
	}

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

// Validate checks if the StaleInvoicedMessage has all required fields with
// valid values.
func (m *StaleInvoicedMessage) Validate() error {
	if m.PaymentID <= 0 {
		return errors.New("payment_id is required")
	}
	if m.CardID <= 0 {
		return errors.New("card_id is required")
	}
	if m.Invoice == "" {
		return errors.New("invoice is required")
	}
	if m.AmountMsats <= 0 {
		return errors.New("amount_msats must be greater than 0")
	}
	return nil
}
