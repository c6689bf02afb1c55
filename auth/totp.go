package auth

import (
	"context"

	"github.com/pquerna/otp/totp"

	"github.com/sixfold/sixfold/errors"
)

// TOTPSetup is returned when provisioning a second factor. The otpauth URL
// is rendered as a QR code by the client.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// SetupTOTP provisions a new TOTP secret for a user. The secret stays
// unconfirmed until the user verifies a code; only confirmed secrets gate
// login.
func (s *Service) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "sixfold",
		AccountName: user.Email,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate totp secret")
	}

	if err := s.store.SaveTOTPSecret(ctx, userID, key.Secret()); err != nil {
		return nil, err
	}

	return &TOTPSetup{Secret: key.Secret(), URL: key.URL()}, nil
}

// VerifyTOTP checks a code against the user's provisioned secret and, on
// first success, confirms the secret and enables 2FA for the account.
func (s *Service) VerifyTOTP(ctx context.Context, userID, code string) error {
	secret, confirmed, err := s.store.GetTOTPSecret(ctx, userID)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return errors.Wrap(errors.ErrInvalidRequest, "2FA is not set up")
		}
		return err
	}

	if !totp.Validate(code, secret) {
		return errors.Wrap(errors.ErrUnauthorized, "invalid 2FA code")
	}

	if !confirmed {
		if err := s.store.ConfirmTOTPSecret(ctx, userID); err != nil {
			return err
		}
		if err := s.store.SetTOTPEnabled(ctx, userID, true); err != nil {
			return err
		}
	}
	return nil
}

// checkSecondFactor enforces TOTP at login for accounts that enabled it
func (s *Service) checkSecondFactor(ctx context.Context, user *User, code string) error {
	if !user.TOTPEnabled {
		return nil
	}
	if code == "" {
		return errors.Wrap(errors.ErrUnauthorized, "2FA code required")
	}
	secret, confirmed, err := s.store.GetTOTPSecret(ctx, user.ID)
	if err != nil || !confirmed {
		return errors.Wrap(errors.ErrUnauthorized, "2FA misconfigured")
	}
	if !totp.Validate(code, secret) {
		return errors.Wrap(errors.ErrUnauthorized, "invalid 2FA code")
	}
	return nil
}
