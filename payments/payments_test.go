package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sixfold/sixfold/errors"
	qt "github.com/sixfold/sixfold/internal/testing"
	"github.com/sixfold/sixfold/ontology"
)

const signingSecret = "whsec_test"

// stubBackend returns canned Stripe objects and counts calls
type stubBackend struct {
	intents   int
	customers int
}

func (b *stubBackend) NewPaymentIntent(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	b.intents++
	return &stripe.PaymentIntent{
		ID:       fmt.Sprintf("pi_%d", b.intents),
		Amount:   *params.Amount,
		Currency: stripe.Currency(*params.Currency),
		Status:   stripe.PaymentIntentStatusRequiresPaymentMethod,
	}, nil
}

func (b *stubBackend) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	b.customers++
	return &stripe.Customer{
		ID:    fmt.Sprintf("cus_%d", b.customers),
		Email: *params.Email,
	}, nil
}

func newTestService(t *testing.T) (*Service, *stubBackend, *ontology.Service, string) {
	t.Helper()

	db := qt.CreateMigratedTestDB(t)
	ont := ontology.NewService(db, nil, zap.NewNop().Sugar())

	group, err := ont.Groups.CreateGroup(context.Background(), "acme", "Acme", nil)
	require.NoError(t, err)

	backend := &stubBackend{}
	svc := &Service{
		db:            db,
		backend:       backend,
		ontology:      ont,
		webhookSecret: signingSecret,
		logger:        zap.NewNop().Sugar(),
	}
	return svc, backend, ont, group.ID
}

func TestCreatePaymentIntentValidation(t *testing.T) {
	svc, backend, _, groupID := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreatePaymentIntent(ctx, groupID, "u1", 0, "usd")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = svc.CreatePaymentIntent(ctx, groupID, "u1", -500, "usd")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = svc.CreatePaymentIntent(ctx, groupID, "u1", 500, "  ")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	assert.Zero(t, backend.intents)
}

func TestCreatePaymentIntentRecordsLedger(t *testing.T) {
	svc, _, ont, groupID := newTestService(t)
	ctx := context.Background()

	record, err := svc.CreatePaymentIntent(ctx, groupID, "u1", 5000, "USD")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", record.StripeID)
	assert.Equal(t, int64(5000), record.Amount)
	assert.Equal(t, "usd", record.Currency)

	records, err := svc.ListRecords(ctx, groupID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "payment_intent", records[0].Kind)

	events, err := ont.Events.ListEvents(ctx, groupID, ontology.EventFilter{Verb: "payment.intent_created"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].Actor)
}

func TestCreateCustomer(t *testing.T) {
	svc, backend, ont, groupID := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCustomer(ctx, groupID, "u1", "  ", "Ada")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Zero(t, backend.customers)

	customer, err := svc.CreateCustomer(ctx, groupID, "u1", "Ada@Example.com", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", customer.Email)

	events, err := ont.Events.ListEvents(ctx, groupID, ontology.EventFilter{Verb: "payment.customer_created"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

// signPayload builds a Stripe-Signature header for the payload
func signPayload(payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(signingSecret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func intentEvent(eventType, intentID, status string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"api_version": %q,
		"type": %q,
		"data": {"object": {"id": %q, "amount": %d, "currency": "usd", "status": %q}}
	}`, stripe.APIVersion, eventType, intentID, amount, status))
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc, _, _, groupID := newTestService(t)
	payload := intentEvent("payment_intent.succeeded", "pi_1", "succeeded", 5000)

	err := svc.HandleWebhook(context.Background(), groupID, payload, "t=1,v1=deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestHandleWebhookUpdatesLedger(t *testing.T) {
	svc, _, ont, groupID := newTestService(t)
	ctx := context.Background()

	record, err := svc.CreatePaymentIntent(ctx, groupID, "u1", 5000, "usd")
	require.NoError(t, err)

	payload := intentEvent("payment_intent.succeeded", record.StripeID, "succeeded", 5000)
	err = svc.HandleWebhook(ctx, groupID, payload, signPayload(payload, time.Now()))
	require.NoError(t, err)

	records, err := svc.ListRecords(ctx, groupID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "succeeded", records[0].Status)

	events, err := ont.Events.ListEvents(ctx, groupID, ontology.EventFilter{Verb: "payment.succeeded"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestHandleWebhookRecordsUnknownIntent(t *testing.T) {
	svc, _, _, groupID := newTestService(t)
	ctx := context.Background()

	// An intent created outside this service still lands in the ledger
	payload := intentEvent("payment_intent.payment_failed", "pi_external", "requires_payment_method", 900)
	err := svc.HandleWebhook(ctx, groupID, payload, signPayload(payload, time.Now()))
	require.NoError(t, err)

	records, err := svc.ListRecords(ctx, groupID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "pi_external", records[0].StripeID)
	assert.Equal(t, int64(900), records[0].Amount)
}

func TestHandleWebhookIgnoresUnhandledTypes(t *testing.T) {
	svc, _, _, groupID := newTestService(t)
	ctx := context.Background()

	payload := []byte(fmt.Sprintf(`{"id": "evt_2", "api_version": %q, "type": "invoice.paid", "data": {"object": {}}}`, stripe.APIVersion))
	err := svc.HandleWebhook(ctx, groupID, payload, signPayload(payload, time.Now()))
	require.NoError(t, err)

	records, err := svc.ListRecords(ctx, groupID, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}
