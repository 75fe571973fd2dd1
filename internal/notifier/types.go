package notifier

import (
	"context"
	"errors"
	"time"
)

var ErrNoSender = errors.New("notifier: no sender configured")

// Sender posts one message. A nil error means the provider acknowledged it.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, text string) error

func (f SenderFunc) Send(ctx context.Context, text string) error { return f(ctx, text) }

// Config controls delivery.
//
// MaxAttempts and SendTimeout fall back to 3 and 10s when zero.
// A zero RetryInterval retries immediately; DefaultConfig uses 5s.
type Config struct {
	MaxAttempts   int
	RetryInterval time.Duration
	SendTimeout   time.Duration
}

// Delivery is the outcome of Deliver.
type Delivery struct {
	OK       bool
	Attempts int
	Err      error // last failure; nil when OK
	Took     time.Duration
}
