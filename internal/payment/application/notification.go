package application

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrIgnored marks traffic that shares the endpoint but is not an inbound payment.
	ErrIgnored        = errors.New("not an inbound payment")
	ErrInvalidPayload = errors.New("invalid payload")
)

const TransferIn = "in"

// Notification is the body the gateway posts for every account movement.
type Notification struct {
	ID              json.RawMessage `json:"id"`
	Content         *string         `json:"content"`
	TransferAmount  *json.Number    `json:"transferAmount"`
	TransferType    string          `json:"transferType"`
	Gateway         string          `json:"gateway"`
	TransactionDate string          `json:"transactionDate"`
	AccountNumber   string          `json:"accountNumber"`
}

// Transfer is a screened inbound payment ready for reconciliation.
type Transfer struct {
	TransactionID  string
	PaymentCode    string
	AmountReceived int64
	Gateway        string
	Raw            json.RawMessage
}

func DecodeNotification(body []byte) (Notification, error) {
	var n Notification
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return n, nil
}

// Normalize screens a decoded notification. It returns ErrIgnored for outbound
// transfers and for notifications without a payment code or amount.
func Normalize(n Notification, raw []byte) (Transfer, error) {
	if n.TransferType != TransferIn {
		return Transfer{}, ErrIgnored
	}
	if n.Content == nil || n.TransferAmount == nil {
		return Transfer{}, ErrIgnored
	}
	code := strings.TrimSpace(*n.Content)
	if code == "" {
		return Transfer{}, ErrIgnored
	}

	amount, err := minorUnits(*n.TransferAmount)
	if err != nil {
		return Transfer{}, err
	}
	if amount <= 0 {
		return Transfer{}, ErrIgnored
	}

	id, err := transactionID(n.ID)
	if err != nil {
		return Transfer{}, err
	}

	return Transfer{
		TransactionID:  id,
		PaymentCode:    code,
		AmountReceived: amount,
		Gateway:        n.Gateway,
		Raw:            json.RawMessage(raw),
	}, nil
}

func minorUnits(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: transferAmount %q is not a whole amount", ErrInvalidPayload, n.String())
	}
	return int64(f), nil
}

func transactionID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: id: %v", ErrInvalidPayload, err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", fmt.Errorf("%w: missing id", ErrInvalidPayload)
		}
		return s, nil
	}

	n := json.Number(raw)
	if v, err := n.Int64(); err == nil {
		return strconv.FormatInt(v, 10), nil
	}
	return "", fmt.Errorf("%w: id %s is not an integer or string", ErrInvalidPayload, raw)
}
