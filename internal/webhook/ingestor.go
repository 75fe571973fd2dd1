// Package webhook turns PayPal payment-completion notifications into stored payments.
package webhook

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"paydigest/internal/payment"
	logx "paydigest/pkg/logx"
)

const (
	MsgIrrelevant       = "No relevant webhook event"
	MsgInvalid          = "Invalid payment payload"
	MsgRecorded         = "Payment recorded successfully"
	MsgDuplicate        = "Payment already recorded"
	MsgStoreFailed      = "Failed to record payment"
)

// MethodNotAllowedMessage is the 405 body for an endpoint bound to method.
func MethodNotAllowedMessage(method string) string {
	return "This endpoint only accepts " + method + " requests"
}

// Outcome classifies a handled request for logs and tests.
type Outcome string

const (
	OutcomeMethodNotAllowed Outcome = "method_not_allowed"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeInvalid          Outcome = "invalid"
	OutcomeRecorded         Outcome = "recorded"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeStoreFailed      Outcome = "store_failed"
)

// Store is the event store as seen by the ingestor.
type Store interface {
	InsertPayment(ctx context.Context, ev payment.Event) (created bool, err error)
}

type Config struct {
	Method    string
	EventType string
}

// Response is what the transport should write back.
type Response struct {
	Status  int
	Body    string
	Outcome Outcome
	// Allow is set for 405 responses.
	Allow string
}

// Ingestor validates notifications and records payments. It keeps no
// per-request state and is safe for concurrent use.
type Ingestor struct {
	cfg   Config
	store Store
	log   logx.Logger
}

func NewIngestor(cfg Config, store Store, log logx.Logger) *Ingestor {
	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if strings.TrimSpace(cfg.EventType) == "" {
		cfg.EventType = "PAYMENT.SALE.COMPLETED"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ingestor{cfg: cfg, store: store, log: log}
}

// AcceptsMethod reports whether method is the configured webhook method.
func (in *Ingestor) AcceptsMethod(method string) bool {
	return strings.EqualFold(strings.TrimSpace(method), in.cfg.Method)
}

// Handle processes one request. The store is touched only for a well-formed
// event of the configured type.
func (in *Ingestor) Handle(ctx context.Context, method string, body []byte) Response {
	if !in.AcceptsMethod(method) {
		in.log.Info("webhook rejected", logx.String("reason", "method"), logx.String("method", method))
		return Response{Status: http.StatusMethodNotAllowed, Body: MethodNotAllowedMessage(in.cfg.Method), Outcome: OutcomeMethodNotAllowed, Allow: in.cfg.Method}
	}

	n, err := payment.Decode(body)
	if err != nil {
		in.log.Info("webhook rejected", logx.String("reason", "malformed json"), logx.Err(err))
		return Response{Status: http.StatusBadRequest, Body: MsgIrrelevant, Outcome: OutcomeMalformed}
	}
	if n.EventType != in.cfg.EventType {
		in.log.Info("webhook ignored", logx.String("event_type", n.EventType))
		return Response{Status: http.StatusOK, Body: MsgIrrelevant, Outcome: OutcomeIgnored}
	}

	ev, err := n.Event()
	if err != nil {
		in.log.Info("webhook rejected", logx.String("reason", "invalid payload"), logx.Err(err))
		return Response{Status: http.StatusBadRequest, Body: MsgInvalid, Outcome: OutcomeInvalid}
	}

	log := in.log.With(logx.String("payment_id", ev.PaymentID))
	created, err := in.store.InsertPayment(ctx, ev)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("payment not recorded: request cancelled", logx.Err(err))
		} else {
			log.Error("payment not recorded", logx.Err(err))
		}
		return Response{Status: http.StatusInternalServerError, Body: MsgStoreFailed, Outcome: OutcomeStoreFailed}
	}
	if !created {
		log.Info("payment already recorded")
		return Response{Status: http.StatusOK, Body: MsgDuplicate, Outcome: OutcomeDuplicate}
	}
	log.Info("payment recorded",
		logx.Stringer("amount", ev.Amount),
		logx.String("currency", ev.Currency),
		logx.Time("create_time", ev.CreateTime),
	)
	return Response{Status: http.StatusOK, Body: MsgRecorded, Outcome: OutcomeRecorded}
}
