package domain

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
)

var (
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrInvalidTransition = errors.New("invalid payment transition")
)

// Payment is a pending obligation created at order time and settled at most
// once by a matching inbound transfer.
type Payment struct {
	ID                    string
	OrderID               string
	PaymentCode           string
	AmountRequested       int64
	AmountReceived        int64
	Status                Status
	ProviderTransactionID string
	Metadata              json.RawMessage
	CompletedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Settle moves the payment from PENDING to SUCCESS. It is the only transition.
func (p *Payment) Settle(transactionID string, received int64, raw json.RawMessage, at time.Time) error {
	if p.Status != StatusPending {
		return ErrInvalidTransition
	}
	if received < p.AmountRequested {
		return ErrInvalidTransition
	}
	at = at.UTC()
	p.Status = StatusSuccess
	p.AmountReceived = received
	p.ProviderTransactionID = transactionID
	p.Metadata = raw
	p.CompletedAt = &at
	p.UpdatedAt = at
	return nil
}

// Shortfall is how much of the requested amount a transfer failed to cover.
func (p Payment) Shortfall(received int64) int64 {
	if received >= p.AmountRequested {
		return 0
	}
	return p.AmountRequested - received
}
