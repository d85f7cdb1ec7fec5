package application

import (
	"context"

	"github.com/dmehra2102/payment-reconciler/internal/payment/domain"
	"github.com/dmehra2102/payment-reconciler/pkg/outbox"
)

// Store runs fn as one isolated unit of work. Returning an error from fn rolls
// everything back. Implementations may call fn more than once when they detect
// a conflict, so fn must not keep state across calls.
type Store interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the Payment Store, Order Store and Audit Log Sink as seen from inside
// a transaction.
type Tx interface {
	FindByProviderTxnID(ctx context.Context, transactionID string) (domain.Payment, error)
	FindOnePendingByCode(ctx context.Context, paymentCode string) (domain.Payment, error)
	UpdatePayment(ctx context.Context, p domain.Payment) error
	UpdateOrder(ctx context.Context, orderID string, u domain.OrderUpdate) error
	AppendAudit(ctx context.Context, e domain.AuditEntry) error
	Enqueue(ctx context.Context, e outbox.Event) error
}

type DeliveryCache interface {
	Key(gateway, transactionID string) string
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}
