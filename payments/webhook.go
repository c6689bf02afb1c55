package payments

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/sixfold/sixfold/errors"
)

// HandleWebhook verifies a Stripe webhook delivery against the signing
// secret and applies it to the local ledger. Event types the service does
// not track are acknowledged and dropped.
func (s *Service) HandleWebhook(ctx context.Context, groupID string, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return errors.Wrap(errors.ErrUnauthorized, "invalid webhook signature")
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		return s.applyIntentEvent(ctx, groupID, &event)
	default:
		s.logger.Debugw("ignoring unhandled stripe event", "type", event.Type)
		return nil
	}
}

// applyIntentEvent updates the intent's ledger row to the status Stripe
// reports. Out-of-band intents (created outside this service) get a row
// on first sight so the ledger stays complete.
func (s *Service) applyIntentEvent(ctx context.Context, groupID string, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return errors.Wrap(err, "failed to decode payment intent event")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_records SET status = ? WHERE stripe_id = ?
	`, string(intent.Status), intent.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update payment record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check payment record update")
	}
	if rows == 0 {
		if _, err := s.insertRecord(ctx, groupID, intent.ID, "payment_intent",
			intent.Amount, string(intent.Currency), string(intent.Status)); err != nil {
			return err
		}
	}

	s.recordEvent(ctx, groupID, paymentActor, "payment."+verbFor(event.Type), map[string]any{
		"stripe_id": intent.ID,
		"status":    string(intent.Status),
	})

	s.logger.Infow("stripe event applied",
		"type", event.Type, "stripe_id", intent.ID, "status", intent.Status)
	return nil
}

func verbFor(eventType stripe.EventType) string {
	switch eventType {
	case "payment_intent.succeeded":
		return "succeeded"
	case "payment_intent.payment_failed":
		return "failed"
	case "payment_intent.canceled":
		return "canceled"
	default:
		return "updated"
	}
}
