package auth

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/sixfold/sixfold/errors"
)

// Mailer delivers magic-link emails. Tests swap in a capture implementation.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// ResendMailer sends email through the Resend API.
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewResendMailer creates a mailer. from is the sender address, e.g.
// "Sixfold <login@sixfold.example>".
func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// SendMagicLink emails a single-use login link
func (m *ResendMailer) SendMagicLink(ctx context.Context, email, link string) error {
	_, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{email},
		Subject: "Your sign-in link",
		Html: fmt.Sprintf(
			`<p>Click the link below to sign in. It expires in 15 minutes and works once.</p>
<p><a href="%s">Sign in</a></p>
<p>If you did not request this, you can ignore this email.</p>`, link),
	})
	if err != nil {
		return errors.Wrap(err, "failed to send magic link email")
	}
	return nil
}
