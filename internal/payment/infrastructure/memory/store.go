// Package memory is a process-local store for local runs and tests. Every
// transaction holds one store-wide lock, which gives serializable isolation
// inside a single process only.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/payment-reconciler/internal/payment/application"
	"github.com/dmehra2102/payment-reconciler/internal/payment/domain"
	"github.com/dmehra2102/payment-reconciler/pkg/outbox"
	"github.com/google/uuid"
)

type state struct {
	payments map[string]domain.Payment
	orders   map[string]domain.Order
	audits   []domain.AuditEntry
	events   []outbox.Event
	seq      int64
}

func (s state) clone() state {
	c := state{
		payments: make(map[string]domain.Payment, len(s.payments)),
		orders:   make(map[string]domain.Order, len(s.orders)),
		audits:   append([]domain.AuditEntry(nil), s.audits...),
		events:   append([]outbox.Event(nil), s.events...),
		seq:      s.seq,
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state state

	// AuditErr, when set, is returned by every AppendAudit call.
	AuditErr error
	commits  int
}

var _ application.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{state: state{
		payments: map[string]domain.Payment{},
		orders:   map[string]domain.Order{},
	}}
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{state: &work, auditErr: s.AuditErr}); err != nil {
		return err
	}
	s.state = work
	s.commits++
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// AddOrder seeds an order as the order-creation flow would.
func (s *Store) AddOrder(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if o.PaymentStatus == "" {
		o.PaymentStatus = domain.PaymentUnpaid
	}
	if o.Status == "" {
		o.Status = domain.OrderDraft
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	s.state.orders[o.ID] = o
}

// AddPayment seeds a payment and returns it with its assigned id.
func (s *Store) AddPayment(p domain.Payment) domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.StatusPending
	}
	if p.CreatedAt.IsZero() {
		// strictly increasing so "oldest first" is deterministic
		s.state.seq++
		p.CreatedAt = time.Unix(0, 0).UTC().Add(time.Duration(s.state.seq) * time.Millisecond)
	}
	p.UpdatedAt = p.CreatedAt
	s.state.payments[p.ID] = p
	return p
}

func (s *Store) Payment(id string) (domain.Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[id]
	return p, ok
}

func (s *Store) Order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	return o, ok
}

func (s *Store) Audits() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.state.audits...)
}

func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.state.events...)
}

// Commits counts committed transactions, including read-only ones.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

type tx struct {
	state    *state
	auditErr error
}

func (t *tx) FindByProviderTxnID(ctx context.Context, transactionID string) (domain.Payment, error) {
	for _, p := range t.state.payments {
		if p.ProviderTransactionID != "" && p.ProviderTransactionID == transactionID {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (t *tx) FindOnePendingByCode(ctx context.Context, paymentCode string) (domain.Payment, error) {
	var matches []domain.Payment
	for _, p := range t.state.payments {
		if p.PaymentCode == paymentCode && p.Status == domain.StatusPending {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	return matches[0], nil
}

func (t *tx) UpdatePayment(ctx context.Context, p domain.Payment) error {
	if _, ok := t.state.payments[p.ID]; !ok {
		return domain.ErrPaymentNotFound
	}
	p.Metadata = append(json.RawMessage(nil), p.Metadata...)
	t.state.payments[p.ID] = p
	return nil
}

func (t *tx) UpdateOrder(ctx context.Context, orderID string, u domain.OrderUpdate) error {
	o, ok := t.state.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentStatus = u.PaymentStatus
	o.Status = u.Status
	o.UpdatedAt = time.Now().UTC()
	t.state.orders[orderID] = o
	return nil
}

func (t *tx) AppendAudit(ctx context.Context, e domain.AuditEntry) error {
	if t.auditErr != nil {
		return t.auditErr
	}
	t.state.audits = append(t.state.audits, e)
	return nil
}

func (t *tx) Enqueue(ctx context.Context, e outbox.Event) error {
	t.state.seq++
	e.ID = t.state.seq
	e.Status = outbox.StatusPending
	e.CreatedAt = time.Now().UTC()
	t.state.events = append(t.state.events, e)
	return nil
}
