package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/sixfold/sixfold/errors"
)

const bcryptCost = 12

// HashPassword hashes a password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash password")
	}
	return string(hash), nil
}

// CheckPassword compares a password against its hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateEmail performs a shape check, not full RFC validation
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at+1:], ".") {
		return errors.NewInvalidRequestError("invalid email address")
	}
	return nil
}

// ValidatePassword enforces the configured minimum length
func ValidatePassword(password string, minLen int) error {
	if minLen <= 0 {
		minLen = 10
	}
	if len(password) < minLen {
		return errors.NewInvalidRequestError("password must be at least %d characters", minLen)
	}
	return nil
}
