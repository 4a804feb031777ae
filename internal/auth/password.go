package auth

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/bcrypt"
)

var (
	hasDigit  = regexp.MustCompile(`[0-9]`)
	hasLower  = regexp.MustCompile(`[a-z]`)
	hasUpper  = regexp.MustCompile(`[A-Z]`)
	hasSymbol = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// passwordHashCost is lowered by tests.
var passwordHashCost = bcrypt.DefaultCost

func validatePasswordPolicy(password string) error {
	return validation.Validate(password,
		validation.Required,
		validation.Length(6, 0).Error("must be at least 6 characters"),
		validation.Match(hasDigit).Error("must contain a digit"),
		validation.Match(hasLower).Error("must contain a lowercase letter"),
		validation.Match(hasUpper).Error("must contain an uppercase letter"),
		validation.Match(hasSymbol).Error("must contain a non-alphanumeric character"),
	)
}

// hashPassword enforces the password policy before hashing. Rejections are
// reported as ErrUserCreationFailed.
func hashPassword(password string) (string, error) {
	if err := validatePasswordPolicy(password); err != nil {
		return "", fmt.Errorf("%w: password %v", ErrUserCreationFailed, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password is too long", ErrUserCreationFailed)
		}
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

func comparePassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("compare password: %w", err)
}

var (
	decoyOnce sync.Once
	decoyHash string
)

// decoyPasswordHash gives unknown-user logins a real hash to compare against
// so they cost the same as a wrong password.
func decoyPasswordHash() string {
	decoyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("decoy-password-never-matches"), passwordHashCost)
		if err == nil {
			decoyHash = string(hash)
		}
	})
	return decoyHash
}
