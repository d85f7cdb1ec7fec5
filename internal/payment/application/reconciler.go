package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-reconciler/internal/payment/domain"
	"github.com/dmehra2102/payment-reconciler/pkg/outbox"
	"github.com/dmehra2102/payment-reconciler/pkg/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const auditModule = "payment"

// Reconciler matches inbound transfers against pending payments and settles
// the payment and its order in one transaction.
type Reconciler struct {
	log    *slog.Logger
	store  Store
	cache  DeliveryCache
	now    func() time.Time
	tracer trace.Tracer
}

type Option func(*Reconciler)

// WithDeliveryCache adds a fast path for redelivered transaction ids.
func WithDeliveryCache(c DeliveryCache) Option {
	return func(r *Reconciler) { r.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(log *slog.Logger, store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		log:    log,
		store:  store,
		now:    time.Now,
		tracer: otel.Tracer("payment-reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Reconcile(ctx context.Context, t Transfer) (domain.Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "Reconcile", trace.WithAttributes(
		attribute.String("payment.transaction_id", t.TransactionID),
		attribute.String("payment.code", t.PaymentCode),
		attribute.Int64("payment.amount_received", t.AmountReceived),
	))
	defer span.End()

	log := r.log.With("transaction_id", t.TransactionID, "payment_code", t.PaymentCode)

	if r.seen(ctx, log, t) {
		log.Info("redelivery answered from delivery cache")
		span.SetAttributes(attribute.String("payment.outcome", string(domain.OutcomeAlreadyProcessed)))
		return domain.OutcomeAlreadyProcessed, nil
	}

	var outcome domain.Outcome
	err := r.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		outcome, err = r.reconcile(ctx, log, tx, t)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("reconcile transaction %s: %w", t.TransactionID, err)
	}
	span.SetAttributes(attribute.String("payment.outcome", string(outcome)))

	if outcome == domain.OutcomeSuccess || outcome == domain.OutcomeAlreadyProcessed {
		r.mark(ctx, log, t)
	}
	return outcome, nil
}

// reconcile is the body of one transaction attempt.
func (r *Reconciler) reconcile(ctx context.Context, log *slog.Logger, tx Tx, t Transfer) (domain.Outcome, error) {
	_, err := tx.FindByProviderTxnID(ctx, t.TransactionID)
	switch {
	case err == nil:
		log.Info("transaction already processed")
		return domain.OutcomeAlreadyProcessed, nil
	case !errors.Is(err, domain.ErrPaymentNotFound):
		return "", fmt.Errorf("idempotency check: %w", err)
	}

	p, err := tx.FindOnePendingByCode(ctx, t.PaymentCode)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		log.Warn("no pending payment for code", "amount_received", t.AmountReceived)
		return domain.OutcomeNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("find pending payment: %w", err)
	}

	now := r.now()

	if t.AmountReceived < p.AmountRequested {
		log.Warn("amount mismatch", "payment_id", p.ID, "amount_requested", p.AmountRequested, "amount_received", t.AmountReceived)
		r.audit(ctx, log, tx, domain.AuditEntry{
			Action:   "PAYMENT_AMOUNT_MISMATCH",
			Severity: domain.SeverityWarning,
			Detail: fmt.Sprintf("Transfer %s for payment code %s received %d, expected %d (short by %d); payment %s left pending",
				t.TransactionID, p.PaymentCode, t.AmountReceived, p.AmountRequested, p.Shortfall(t.AmountReceived), p.ID),
			Timestamp: now,
		})
		return domain.OutcomeAmountMismatch, nil
	}

	if err := p.Settle(t.TransactionID, t.AmountReceived, t.Raw, now); err != nil {
		return "", fmt.Errorf("settle payment %s: %w", p.ID, err)
	}
	if err := tx.UpdatePayment(ctx, p); err != nil {
		return "", fmt.Errorf("update payment %s: %w", p.ID, err)
	}
	if err := tx.UpdateOrder(ctx, p.OrderID, domain.PaidAndConfirmed()); err != nil {
		return "", fmt.Errorf("update order %s: %w", p.OrderID, err)
	}

	payload, err := json.Marshal(domain.NewPaymentSettled(p, t.Gateway))
	if err != nil {
		return "", err
	}
	if err := tx.Enqueue(ctx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   p.OrderID,
		Type:          domain.EventPaymentSettled,
		Payload:       payload,
		Headers:       map[string]string{"source": "payment-reconciler"},
		Traceparent:   tracing.Traceparent(ctx),
	}); err != nil {
		return "", fmt.Errorf("enqueue settlement event: %w", err)
	}

	r.audit(ctx, log, tx, domain.AuditEntry{
		Action:   "PAYMENT_SETTLED",
		Severity: domain.SeverityInfo,
		Detail: fmt.Sprintf("Payment %s (code %s) settled by transfer %s: received %d of %d; order %s marked paid",
			p.ID, p.PaymentCode, t.TransactionID, t.AmountReceived, p.AmountRequested, p.OrderID),
		Timestamp: now,
	})

	log.Info("payment settled", "payment_id", p.ID, "order_id", p.OrderID, "amount_received", t.AmountReceived)
	return domain.OutcomeSuccess, nil
}

// audit never fails the transaction.
func (r *Reconciler) audit(ctx context.Context, log *slog.Logger, tx Tx, e domain.AuditEntry) {
	e.Module = auditModule
	e.UserName = domain.WebhookActor
	if err := tx.AppendAudit(ctx, e); err != nil {
		log.Error("audit append failed", "action", e.Action, "detail", e.Detail, "err", err)
	}
}

func (r *Reconciler) seen(ctx context.Context, log *slog.Logger, t Transfer) bool {
	if r.cache == nil {
		return false
	}
	ok, err := r.cache.Seen(ctx, r.cache.Key(t.Gateway, t.TransactionID))
	if err != nil {
		log.Warn("delivery cache lookup failed", "err", err)
		return false
	}
	return ok
}

func (r *Reconciler) mark(ctx context.Context, log *slog.Logger, t Transfer) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Mark(ctx, r.cache.Key(t.Gateway, t.TransactionID)); err != nil {
		log.Warn("delivery cache mark failed", "err", err)
	}
}
