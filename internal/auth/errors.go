package auth

import (
	"errors"
	"time"
)

var (
	// ErrUnauthorized covers unknown users and wrong passwords alike.
	ErrUnauthorized       = errors.New("unauthorized")
	ErrDuplicateUser      = errors.New("user already exists")
	ErrUserCreationFailed = errors.New("user creation failed")
	ErrIdentityNotFound   = errors.New("identity not found")

	ErrMissingSigningSecret    = errors.New("token signing secret is not configured")
	ErrMissingIssuerOrAudience = errors.New("token issuer and audience must be configured")
	ErrInvalidSignature        = errors.New("invalid token signature")
	ErrTokenExpired            = errors.New("token expired")
	ErrIssuerMismatch          = errors.New("token issuer or audience mismatch")
)

type ErrLoginLocked struct {
	Until time.Time
}

func (e ErrLoginLocked) Error() string {
	return "login temporarily locked"
}
