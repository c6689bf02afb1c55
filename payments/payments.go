// Package payments is a thin service over the Stripe API: payment intent
// and customer creation, webhook verification, and a local ledger of
// payment activity in payment_records plus the group's audit trail.
package payments

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	stripeclient "github.com/stripe/stripe-go/v79/client"
	"go.uber.org/zap"

	"github.com/sixfold/sixfold/config"
	"github.com/sixfold/sixfold/errors"
	"github.com/sixfold/sixfold/ontology"
)

// paymentActor attributes payment mutations in the audit trail
const paymentActor = "stripe"

// Record is one row of the local payment ledger
type Record struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	StripeID  string    `json:"stripe_id"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Backend is the slice of the Stripe API the service calls. The real
// implementation wraps the Stripe client; tests substitute a stub.
type Backend interface {
	NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
}

type stripeBackend struct {
	api *stripeclient.API
}

func (b *stripeBackend) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return b.api.PaymentIntents.New(params)
}

func (b *stripeBackend) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return b.api.Customers.New(params)
}

// Service creates Stripe objects and mirrors their lifecycle into the
// local ledger and the group's event stream.
type Service struct {
	db            *sql.DB
	backend       Backend
	ontology      *ontology.Service
	webhookSecret string
	logger        *zap.SugaredLogger
}

func NewService(db *sql.DB, cfg *config.StripeConfig, svc *ontology.Service, logger *zap.SugaredLogger) *Service {
	api := &stripeclient.API{}
	api.Init(cfg.APIKey, nil)

	return &Service{
		db:            db,
		backend:       &stripeBackend{api: api},
		ontology:      svc,
		webhookSecret: cfg.WebhookSecret,
		logger:        logger,
	}
}

// CreatePaymentIntent creates an intent on Stripe and records it locally.
// Amount is in the currency's smallest unit.
func (s *Service) CreatePaymentIntent(ctx context.Context, groupID, actor string, amount int64, currency string) (*Record, error) {
	if amount <= 0 {
		return nil, errors.NewInvalidRequestError("amount must be positive, got %d", amount)
	}
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return nil, errors.NewInvalidRequestError("currency is required")
	}

	intent, err := s.backend.NewPaymentIntent(&stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		Metadata: map[string]string{"group_id": groupID},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create payment intent")
	}

	record, err := s.insertRecord(ctx, groupID, intent.ID, "payment_intent", amount, currency, string(intent.Status))
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, groupID, actor, "payment.intent_created", map[string]any{
		"stripe_id": intent.ID,
		"amount":    amount,
		"currency":  currency,
	})
	return record, nil
}

// CreateCustomer creates a customer on Stripe
func (s *Service) CreateCustomer(ctx context.Context, groupID, actor, email, name string) (*stripe.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.NewInvalidRequestError("email is required")
	}

	customer, err := s.backend.NewCustomer(&stripe.CustomerParams{
		Params:   stripe.Params{Context: ctx},
		Email:    stripe.String(email),
		Name:     stripe.String(name),
		Metadata: map[string]string{"group_id": groupID},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create customer")
	}

	s.recordEvent(ctx, groupID, actor, "payment.customer_created", map[string]any{
		"stripe_id": customer.ID,
		"email":     email,
	})
	return customer, nil
}

// ListRecords returns the group's payment ledger, newest first
func (s *Service) ListRecords(ctx context.Context, groupID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, stripe_id, kind, amount, currency, status, created_at
		FROM payment_records WHERE group_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, groupID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list payment records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.GroupID, &r.StripeID, &r.Kind, &r.Amount, &r.Currency, &r.Status, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan payment record")
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

func (s *Service) insertRecord(ctx context.Context, groupID, stripeID, kind string, amount int64, currency, status string) (*Record, error) {
	record := &Record{
		ID:        uuid.New().String(),
		GroupID:   groupID,
		StripeID:  stripeID,
		Kind:      kind,
		Amount:    amount,
		Currency:  currency,
		Status:    status,
		CreatedAt: time.Now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_records (id, group_id, stripe_id, kind, amount, currency, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.GroupID, record.StripeID, record.Kind, record.Amount, record.Currency, record.Status, record.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert payment record")
	}
	return record, nil
}

// recordEvent appends a payment event to the audit trail. Failures are
// logged, not propagated; the Stripe call already happened.
func (s *Service) recordEvent(ctx context.Context, groupID, actor, verb string, payload map[string]any) {
	if actor == "" {
		actor = paymentActor
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("{}")
	}
	if _, err := s.ontology.Events.Append(ctx, groupID, actor, verb, "", raw); err != nil {
		s.logger.Errorw("Failed to record payment event", "group_id", groupID, "verb", verb, "error", err)
	}
}
