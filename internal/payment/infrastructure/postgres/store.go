package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/payment-reconciler/internal/payment/application"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateUniqueViolation      = "23505"

	providerTxnIndex = "payments_provider_transaction_id_key"
)

// Store runs reconciliation transactions at SERIALIZABLE isolation and retries
// them when Postgres reports a conflict.
type Store struct {
	log        *slog.Logger
	pool       *pgxpool.Pool
	maxRetries int
}

var _ application.Store = (*Store)(nil)

func NewStore(log *slog.Logger, pool *pgxpool.Pool, maxRetries int) *Store {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Store{log: log, pool: pool, maxRetries: maxRetries}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !retryable(err) {
			return err
		}
		if attempt == s.maxRetries {
			break
		}
		s.log.Warn("transaction conflict, retrying", "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return fmt.Errorf("transaction not committed after %d attempts: %w", s.maxRetries, err)
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{log: s.log, tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// retryable reports whether a fresh attempt may succeed. A unique violation on
// the provider transaction index means a concurrent delivery of the same
// transaction committed first; the retry then observes it as processed.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case sqlstateSerializationFailure, sqlstateDeadlockDetected:
		return true
	case sqlstateUniqueViolation:
		return pgErr.ConstraintName == providerTxnIndex
	}
	return false
}

func backoff(attempt int) time.Duration {
	d := time.Duration(attempt*attempt) * 10 * time.Millisecond
	if d > 500*time.Millisecond {
		d = 500 * time.Millisecond
	}
	return d
}
