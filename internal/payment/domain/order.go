package domain

import (
	"errors"
	"time"
)

type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "unpaid"
	PaymentPartiallyPaid PaymentStatus = "partially_paid"
	PaymentPaid          PaymentStatus = "paid"
)

type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCanceled  OrderStatus = "canceled"
)

var ErrOrderNotFound = errors.New("order not found")

type Order struct {
	ID            string
	PaymentStatus PaymentStatus
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderUpdate carries the fields the reconciler is allowed to write on an order.
type OrderUpdate struct {
	PaymentStatus PaymentStatus
	Status        OrderStatus
}

// PaidAndConfirmed is the order state written together with a settled payment.
func PaidAndConfirmed() OrderUpdate {
	return OrderUpdate{PaymentStatus: PaymentPaid, Status: OrderConfirmed}
}
