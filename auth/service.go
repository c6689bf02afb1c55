package auth

import (
	"context"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sixfold/sixfold/config"
	"github.com/sixfold/sixfold/errors"
)

// Service implements the auth flows over the store, JWT manager and mailer
type Service struct {
	store  *Store
	jwt    *JWTManager
	mailer Mailer
	cfg    *config.AuthConfig
	logger *zap.SugaredLogger
}

// NewService creates the auth service. mailer may be nil; magic links are
// then rejected as unavailable.
func NewService(store *Store, jwtManager *JWTManager, mailer Mailer, cfg *config.AuthConfig, logger *zap.SugaredLogger) *Service {
	return &Service{
		store:  store,
		jwt:    jwtManager,
		mailer: mailer,
		cfg:    cfg,
		logger: logger,
	}
}

// Store exposes the underlying store for membership checks in middleware
func (s *Service) Store() *Store { return s.store }

// JWT exposes the token manager
func (s *Service) JWT() *JWTManager { return s.jwt }

// CleanupExpiredSessions removes sessions past their expiry, returning the
// number removed
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return s.store.CleanupExpiredSessions(ctx)
}

// Signup registers a new account and opens a session
func (s *Service) Signup(ctx context.Context, email, password, displayName, userAgent, ipAddress string) (*User, *TokenPair, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, nil, err
	}
	if err := ValidatePassword(password, s.cfg.MinPasswordLen); err != nil {
		return nil, nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.CreateUser(ctx, email, hash, displayName)
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.openSession(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.Infow("User signed up", "user_id", user.ID)
	}
	return user, pair, nil
}

// Login authenticates email/password (and TOTP when enabled) and opens a
// session. Wrong email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password, totpCode, userAgent, ipAddress string) (*User, *TokenPair, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a bcrypt comparison so unknown emails take as long as
		// wrong passwords
		CheckPassword("$2a$12$000000000000000000000uGyUtpLpmW0JRM2QmOsBdEhGBKnm1q6", password)
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
	}

	if user.PasswordHash == "" || !CheckPassword(user.PasswordHash, password) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
	}

	if err := s.checkSecondFactor(ctx, user, totpCode); err != nil {
		return nil, nil, err
	}

	pair, err := s.openSession(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.Infow("User logged in", "user_id", user.ID)
	}
	return user, pair, nil
}

// openSession creates a session and mints a token pair
func (s *Service) openSession(ctx context.Context, user *User, userAgent, ipAddress string) (*TokenPair, error) {
	refreshToken, err := s.jwt.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	session, err := s.store.CreateSession(ctx, user.ID, refreshToken, userAgent, ipAddress,
		time.Now().Add(s.jwt.RefreshExpiry()))
	if err != nil {
		return nil, err
	}

	accessToken, err := s.jwt.GenerateToken(&Claims{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate access token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(s.jwt.TokenExpiry()),
		SessionID:    session.ID,
	}, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The refresh
// token is rotated; the old one stops working.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	session, err := s.store.GetSessionByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, "invalid refresh token")
	}
	if !session.Valid() {
		return nil, errors.Wrap(errors.ErrUnauthorized, "session expired or revoked")
	}

	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrUnauthorized, "user no longer exists")
	}

	newRefresh, err := s.jwt.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateRefreshToken(ctx, session.ID, newRefresh,
		time.Now().Add(s.jwt.RefreshExpiry())); err != nil {
		return nil, err
	}

	accessToken, err := s.jwt.GenerateToken(&Claims{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate access token")
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    time.Now().Add(s.jwt.TokenExpiry()),
		SessionID:    session.ID,
	}, nil
}

// Logout revokes the session behind the given claims
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	return s.store.RevokeSession(ctx, claims.UserID, claims.SessionID)
}

// RequestMagicLink issues a single-use login link for the given email.
// Unknown emails succeed silently so the endpoint does not leak accounts.
func (s *Service) RequestMagicLink(ctx context.Context, email string) error {
	if s.mailer == nil {
		return errors.Wrap(errors.ErrServiceUnavailable, "magic links are not configured")
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFoundError(err) {
			if s.logger != nil {
				s.logger.Debugw("Magic link requested for unknown email")
			}
			return nil
		}
		return err
	}

	token, err := generateSecureSecret(32)
	if err != nil {
		return err
	}

	ttl, err := time.ParseDuration(s.cfg.MagicLinkExpiry)
	if err != nil {
		ttl = 15 * time.Minute
	}
	if _, err := s.store.CreateMagicLink(ctx, user.ID, token, time.Now().Add(ttl)); err != nil {
		return err
	}

	link := s.cfg.MagicLinkBaseURL + "?token=" + url.QueryEscape(token)
	return s.mailer.SendMagicLink(ctx, user.Email, link)
}

// RedeemMagicLink consumes a magic link and opens a session. A link works
// exactly once.
func (s *Service) RedeemMagicLink(ctx context.Context, token, userAgent, ipAddress string) (*User, *TokenPair, error) {
	link, err := s.store.RedeemMagicLink(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.store.GetUserByID(ctx, link.UserID)
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "user no longer exists")
	}

	pair, err := s.openSession(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.Infow("Magic link redeemed", "user_id", user.ID)
	}
	return user, pair, nil
}

// ListSessions returns the caller's sessions
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	return s.store.ListSessions(ctx, userID)
}

// RevokeSession revokes one of the caller's sessions
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	return s.store.RevokeSession(ctx, userID, sessionID)
}
