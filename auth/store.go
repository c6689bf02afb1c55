package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sixfold/sixfold/errors"
)

// Store handles persistence of users, sessions, magic links and TOTP secrets
type Store struct {
	db *sql.DB
}

// NewStore creates a new auth store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// hashToken hashes a token with SHA-256 for storage. Raw tokens never touch
// the database.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateUser creates a user account. Duplicate email is a conflict.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, displayName string) (*User, error) {
	user := &User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.DisplayName, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil, errors.NewConflictError("email already registered")
		}
		return nil, errors.Wrap(err, "failed to create user")
	}
	return user, nil
}

// GetUserByEmail finds a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, display_name, totp_enabled, created_at, updated_at
		 FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email))))
}

// GetUserByID finds a user by internal ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, display_name, totp_enabled, created_at, updated_at
		 FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName,
		&user.TOTPEnabled, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("user not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	return user, nil
}

// SetTOTPEnabled flips the user's second-factor flag
func (s *Store) SetTOTPEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET totp_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now(), userID)
	if err != nil {
		return errors.Wrap(err, "failed to update totp flag")
	}
	return nil
}

// CreateSession creates a session, storing the refresh token hashed
func (s *Store) CreateSession(ctx context.Context, userID, refreshToken, userAgent, ipAddress string, expiresAt time.Time) (*Session, error) {
	session := &Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		RefreshTokenHash: hashToken(refreshToken),
		UserAgent:        userAgent,
		IPAddress:        ipAddress,
		CreatedAt:        time.Now(),
		LastActiveAt:     time.Now(),
		ExpiresAt:        expiresAt,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, refresh_token_hash, user_agent, ip_address, created_at, last_active_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.RefreshTokenHash, session.UserAgent,
		session.IPAddress, session.CreatedAt, session.LastActiveAt, session.ExpiresAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	return session, nil
}

// GetSession finds a session by ID
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, refresh_token_hash, user_agent, ip_address, created_at, last_active_at, expires_at, revoked_at
		 FROM sessions WHERE id = ?`, id))
}

// GetSessionByRefreshToken finds a session by the raw refresh token
func (s *Store) GetSessionByRefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, refresh_token_hash, user_agent, ip_address, created_at, last_active_at, expires_at, revoked_at
		 FROM sessions WHERE refresh_token_hash = ?`, hashToken(refreshToken)))
}

func (s *Store) scanSession(row *sql.Row) (*Session, error) {
	session := &Session{}
	var revokedAt sql.NullTime
	err := row.Scan(&session.ID, &session.UserID, &session.RefreshTokenHash,
		&session.UserAgent, &session.IPAddress, &session.CreatedAt,
		&session.LastActiveAt, &session.ExpiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("session not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get session")
	}
	if revokedAt.Valid {
		session.RevokedAt = &revokedAt.Time
	}
	return session, nil
}

// RotateRefreshToken replaces a session's refresh token and extends expiry
func (s *Store) RotateRefreshToken(ctx context.Context, sessionID, newToken string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET refresh_token_hash = ?, expires_at = ?, last_active_at = ? WHERE id = ?`,
		hashToken(newToken), expiresAt, time.Now(), sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to rotate refresh token")
	}
	return nil
}

// UpdateSessionActivity bumps last_active_at
func (s *Store) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE id = ?`, time.Now(), sessionID)
	if err != nil {
		return errors.Wrap(err, "failed to update session activity")
	}
	return nil
}

// RevokeSession marks a session revoked. Scoped to the owning user.
func (s *Store) RevokeSession(ctx context.Context, userID, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND user_id = ? AND revoked_at IS NULL`,
		time.Now(), sessionID, userID)
	if err != nil {
		return errors.Wrap(err, "failed to revoke session")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check revoke result")
	}
	if affected == 0 {
		return errors.NewNotFoundError("session not found")
	}
	return nil
}

// ListSessions returns a user's sessions, newest first
func (s *Store) ListSessions(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, refresh_token_hash, user_agent, ip_address, created_at, last_active_at, expires_at, revoked_at
		 FROM sessions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session := &Session{}
		var revokedAt sql.NullTime
		if err := rows.Scan(&session.ID, &session.UserID, &session.RefreshTokenHash,
			&session.UserAgent, &session.IPAddress, &session.CreatedAt,
			&session.LastActiveAt, &session.ExpiresAt, &revokedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		if revokedAt.Valid {
			session.RevokedAt = &revokedAt.Time
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CleanupExpiredSessions removes sessions past their expiry
func (s *Store) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, time.Now())
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup sessions")
	}
	return result.RowsAffected()
}

// CreateMagicLink stores a hashed single-use login token
func (s *Store) CreateMagicLink(ctx context.Context, userID, token string, expiresAt time.Time) (*MagicLink, error) {
	link := &MagicLink{
		ID:        uuid.New().String(),
		UserID:    userID,
		TokenHash: hashToken(token),
		CreatedAt: time.Now(),
		ExpiresAt: expiresAt,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO magic_links (id, user_id, token_hash, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)`,
		link.ID, link.UserID, link.TokenHash, link.CreatedAt, link.ExpiresAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create magic link")
	}
	return link, nil
}

// RedeemMagicLink consumes a magic link atomically. A second redemption, an
// expired link, or an unknown token all fail the same way.
func (s *Store) RedeemMagicLink(ctx context.Context, token string) (*MagicLink, error) {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE magic_links SET redeemed_at = ?
		 WHERE token_hash = ? AND redeemed_at IS NULL AND expires_at > ?`,
		now, hashToken(token), now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to redeem magic link")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "failed to check redeem result")
	}
	if affected == 0 {
		return nil, errors.Wrap(errors.ErrUnauthorized, "magic link invalid, expired, or already used")
	}

	link := &MagicLink{}
	var redeemedAt sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, redeemed_at
		 FROM magic_links WHERE token_hash = ?`, hashToken(token),
	).Scan(&link.ID, &link.UserID, &link.TokenHash, &link.CreatedAt, &link.ExpiresAt, &redeemedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load redeemed magic link")
	}
	if redeemedAt.Valid {
		link.RedeemedAt = &redeemedAt.Time
	}
	return link, nil
}

// SaveTOTPSecret stores a provisional TOTP secret for a user
func (s *Store) SaveTOTPSecret(ctx context.Context, userID, secret string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO totp_secrets (user_id, secret, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET secret = excluded.secret, confirmed_at = NULL, created_at = excluded.created_at`,
		userID, secret, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to save totp secret")
	}
	return nil
}

// GetTOTPSecret returns a user's TOTP secret and whether it is confirmed
func (s *Store) GetTOTPSecret(ctx context.Context, userID string) (string, bool, error) {
	var secret string
	var confirmedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT secret, confirmed_at FROM totp_secrets WHERE user_id = ?`, userID,
	).Scan(&secret, &confirmedAt)
	if err == sql.ErrNoRows {
		return "", false, errors.NewNotFoundError("totp secret not found")
	}
	if err != nil {
		return "", false, errors.Wrap(err, "failed to get totp secret")
	}
	return secret, confirmedAt.Valid, nil
}

// ConfirmTOTPSecret marks a TOTP secret verified
func (s *Store) ConfirmTOTPSecret(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE totp_secrets SET confirmed_at = ? WHERE user_id = ?`, time.Now(), userID)
	if err != nil {
		return errors.Wrap(err, "failed to confirm totp secret")
	}
	return nil
}

// AddGroupMember adds a user to a group
func (s *Store) AddGroupMember(ctx context.Context, groupID, userID, role string) error {
	if role == "" {
		role = "member"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(group_id, user_id) DO UPDATE SET role = excluded.role`,
		groupID, userID, role, time.Now())
	if err != nil {
		return errors.Wrap(err, "failed to add group member")
	}
	return nil
}

// IsGroupMember reports whether a user belongs to a group
func (s *Store) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?)`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check group membership")
	}
	return exists, nil
}
