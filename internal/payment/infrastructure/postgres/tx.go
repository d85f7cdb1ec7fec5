package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-reconciler/internal/payment/domain"
	"github.com/dmehra2102/payment-reconciler/pkg/outbox"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id::text, order_id, payment_code, amount_requested, COALESCE(amount_received, 0), status,
	COALESCE(provider_transaction_id, ''), metadata, completed_at, created_at, updated_at`

type pgTx struct {
	log *slog.Logger
	tx  pgx.Tx
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	var metadata []byte
	err := row.Scan(&p.ID, &p.OrderID, &p.PaymentCode, &p.AmountRequested, &p.AmountReceived, &p.Status,
		&p.ProviderTransactionID, &metadata, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if err != nil {
		return domain.Payment{}, err
	}
	p.Metadata = metadata
	return p, nil
}

func (t *pgTx) FindByProviderTxnID(ctx context.Context, transactionID string) (domain.Payment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_transaction_id = $1 LIMIT 1`, transactionID)
	return scanPayment(row)
}

func (t *pgTx) FindOnePendingByCode(ctx context.Context, paymentCode string) (domain.Payment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE payment_code = $1 AND status = 'PENDING'
		ORDER BY created_at, id
		LIMIT 2
		FOR UPDATE`, paymentCode)
	if err != nil {
		return domain.Payment{}, err
	}
	defer rows.Close()

	var found []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return domain.Payment{}, err
		}
		found = append(found, p)
	}
	if err := rows.Err(); err != nil {
		return domain.Payment{}, err
	}
	if len(found) == 0 {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	if len(found) > 1 {
		t.log.Warn("payment code matches more than one pending payment, settling the oldest",
			"payment_code", paymentCode, "payment_id", found[0].ID)
	}
	return found[0], nil
}

func (t *pgTx) UpdatePayment(ctx context.Context, p domain.Payment) error {
	var metadata []byte
	if len(p.Metadata) > 0 {
		metadata = p.Metadata
	}
	ct, err := t.tx.Exec(ctx, `UPDATE payments
		SET status=$2, amount_received=$3, provider_transaction_id=$4, metadata=$5, completed_at=$6, updated_at=$7
		WHERE id=$1`,
		p.ID, p.Status, p.AmountReceived, p.ProviderTransactionID, metadata, p.CompletedAt, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, orderID string, u domain.OrderUpdate) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET payment_status=$2, status=$3, updated_at=$4 WHERE id=$1`,
		orderID, u.PaymentStatus, u.Status, time.Now().UTC())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// AppendAudit writes inside a savepoint so that a failed insert leaves the
// enclosing transaction usable.
func (t *pgTx) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = sp.Rollback(ctx)
	}()

	_, err = sp.Exec(ctx, `INSERT INTO audit_logs (action, module, severity, detail, user_name, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
		e.Action, e.Module, e.Severity, e.Detail, e.UserName, e.Timestamp.UTC())
	if err != nil {
		return err
	}
	return sp.Commit(ctx)
}

func (t *pgTx) Enqueue(ctx context.Context, e outbox.Event) error {
	headers := e.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status) VALUES ($1,$2,$3,$4,$5,$6,'pending')`,
		e.AggregateType, e.AggregateID, e.Type, e.Payload, headers, e.Traceparent)
	return err
}
