// Package payment holds the payment record kept by the event store and the
// decoding of PayPal webhook notifications into it.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalid marks a notification that has the right event type but cannot be
// turned into an Event.
var ErrInvalid = errors.New("invalid payment payload")

// Event is one completed payment.
// PaymentID is the provider's resource id and is unique across the store.
type Event struct {
	PaymentID  string
	Status     string
	Amount     decimal.Decimal
	Currency   string
	CreateTime time.Time
}

// Notification is the subset of a PayPal webhook body we read.
type Notification struct {
	EventType string   `json:"event_type"`
	Resource  Resource `json:"resource"`
}

type Resource struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	Amount     Amount `json:"amount"`
	CreateTime string `json:"create_time"`
}

type Amount struct {
	Total    decimal.NullDecimal `json:"total"`
	Currency string              `json:"currency"`
}

var reCurrency = regexp.MustCompile(`^[A-Z]{3}$`)

// maxAmount is the first value that no longer fits payments.amount DECIMAL(10,2).
var maxAmount = decimal.New(1, 8)

// Decode parses a webhook body. It only fails on malformed JSON; field
// checks happen in Event.
func Decode(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, err
	}
	return n, nil
}

// Event validates the resource and returns the record to store.
// Errors wrap ErrInvalid.
func (n Notification) Event() (Event, error) {
	r := n.Resource

	id := strings.TrimSpace(r.ID)
	if id == "" {
		return Event{}, fmt.Errorf("%w: resource.id is empty", ErrInvalid)
	}
	if !r.Amount.Total.Valid {
		return Event{}, fmt.Errorf("%w: resource.amount.total is missing", ErrInvalid)
	}
	amount := r.Amount.Total.Decimal
	if amount.IsNegative() {
		return Event{}, fmt.Errorf("%w: resource.amount.total is negative", ErrInvalid)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return Event{}, fmt.Errorf("%w: resource.amount.total %s has more than 2 decimals", ErrInvalid, amount)
	}
	if amount.Cmp(maxAmount) >= 0 {
		return Event{}, fmt.Errorf("%w: resource.amount.total %s is too large", ErrInvalid, amount)
	}
	cur := strings.ToUpper(strings.TrimSpace(r.Amount.Currency))
	if !reCurrency.MatchString(cur) {
		return Event{}, fmt.Errorf("%w: resource.amount.currency %q", ErrInvalid, r.Amount.Currency)
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(r.CreateTime))
	if err != nil {
		return Event{}, fmt.Errorf("%w: resource.create_time %q", ErrInvalid, r.CreateTime)
	}

	return Event{
		PaymentID:  id,
		Status:     strings.TrimSpace(r.State),
		Amount:     amount,
		Currency:   cur,
		CreateTime: ts.UTC(),
	}, nil
}
