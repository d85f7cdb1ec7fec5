package domain

import "time"

type Outcome string

const (
	OutcomeAlreadyProcessed Outcome = "ALREADY_PROCESSED"
	OutcomeNotFound         Outcome = "NOT_FOUND"
	OutcomeAmountMismatch   Outcome = "AMOUNT_MISMATCH"
	OutcomeSuccess          Outcome = "SUCCESS"
)

const EventPaymentSettled = "PaymentSettled"

type PaymentSettled struct {
	PaymentID             string    `json:"paymentId"`
	OrderID               string    `json:"orderId"`
	PaymentCode           string    `json:"paymentCode"`
	AmountRequested       int64     `json:"amountRequested"`
	AmountReceived        int64     `json:"amountReceived"`
	ProviderTransactionID string    `json:"providerTransactionId"`
	Gateway               string    `json:"gateway"`
	CompletedAt           time.Time `json:"completedAt"`
}

func NewPaymentSettled(p Payment, gateway string) PaymentSettled {
	ev := PaymentSettled{
		PaymentID:             p.ID,
		OrderID:               p.OrderID,
		PaymentCode:           p.PaymentCode,
		AmountRequested:       p.AmountRequested,
		AmountReceived:        p.AmountReceived,
		ProviderTransactionID: p.ProviderTransactionID,
		Gateway:               gateway,
	}
	if p.CompletedAt != nil {
		ev.CompletedAt = *p.CompletedAt
	}
	return ev
}
