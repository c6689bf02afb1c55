package shopify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sixfold/sixfold/errors"
	"github.com/sixfold/sixfold/jobs"
)

// WebhookJobName is the handler jobs are enqueued under when a new
// webhook delivery is accepted.
const WebhookJobName = "shopify.webhook"

// WebhookPayload is the job payload for an accepted delivery
type WebhookPayload struct {
	GroupID   string          `json:"group_id"`
	WebhookID string          `json:"webhook_id"`
	Topic     string          `json:"topic"`
	Body      json.RawMessage `json:"body"`
}

// WebhookVerifier checks Shopify's webhook signature
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify checks the X-Shopify-Hmac-Sha256 header against the raw request
// body. The comparison is constant-time.
func (v *WebhookVerifier) Verify(body []byte, signature string) bool {
	if len(v.secret) == 0 || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookProcessor records deliveries and hands them to the job queue.
// Each delivery ID is processed at most once; Shopify redelivers on slow
// or failed acknowledgement, so duplicates are expected and dropped.
type WebhookProcessor struct {
	db       *sql.DB
	queue    *jobs.Queue
	verifier *WebhookVerifier
	logger   *zap.SugaredLogger
}

func NewWebhookProcessor(db *sql.DB, queue *jobs.Queue, verifier *WebhookVerifier, logger *zap.SugaredLogger) *WebhookProcessor {
	return &WebhookProcessor{db: db, queue: queue, verifier: verifier, logger: logger}
}

// Process verifies the delivery, records it, and enqueues a processing
// job. Returns false without error for a duplicate delivery.
func (p *WebhookProcessor) Process(ctx context.Context, groupID, webhookID, topic, signature string, body []byte) (bool, error) {
	if !p.verifier.Verify(body, signature) {
		return false, errors.Wrap(errors.ErrUnauthorized, "invalid webhook signature")
	}
	if webhookID == "" {
		return false, errors.NewInvalidRequestError("webhook ID is required")
	}

	payload, err := json.Marshal(WebhookPayload{
		GroupID:   groupID,
		WebhookID: webhookID,
		Topic:     topic,
		Body:      body,
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to marshal webhook payload")
	}

	// The delivery record and the job commit together: a failed enqueue
	// must not leave the delivery ID claimed, or Shopify's redelivery
	// would be dropped as a duplicate and the webhook lost.
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, errors.Wrap(err, "failed to begin webhook transaction")
	}
	defer tx.Rollback()

	fresh, err := p.recordDelivery(ctx, tx, webhookID, topic)
	if err != nil {
		return false, err
	}
	if !fresh {
		p.logger.Debugw("duplicate webhook delivery dropped",
			"webhook_id", webhookID, "topic", topic)
		return false, nil
	}

	if _, err := p.queue.EnqueueTx(ctx, tx, WebhookJobName, payload); err != nil {
		return false, errors.Wrap(err, "failed to enqueue webhook job")
	}
	if err := tx.Commit(); err != nil {
		return false, errors.Wrap(err, "failed to commit webhook delivery")
	}

	p.logger.Infow("webhook delivery accepted", "webhook_id", webhookID, "topic", topic)
	return true, nil
}

// recordDelivery inserts the delivery ID, reporting false when another
// delivery with the same ID already claimed it.
func (p *WebhookProcessor) recordDelivery(ctx context.Context, tx *sql.Tx, webhookID, topic string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO webhook_events (id, provider, external_id, topic)
		VALUES (?, 'shopify', ?, ?)
		ON CONFLICT (provider, external_id) DO NOTHING
	`, uuid.New().String(), webhookID, topic)
	if err != nil {
		return false, errors.Wrap(err, "failed to record webhook delivery")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to check webhook delivery")
	}
	return rows > 0, nil
}
