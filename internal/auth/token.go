package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = 3 * time.Hour

type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// TokenVerifier is what the access guard needs from the issuer.
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// TokenIssuer signs and verifies HS256 tokens. Its configuration is fixed at
// construction.
type TokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrMissingSigningSecret
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, ErrMissingIssuerOrAudience
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &TokenIssuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (t *TokenIssuer) Issue(claims Claims) (Token, error) {
	issuedAt := t.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(t.ttl)

	tokenID := claims.TokenID
	if tokenID == "" {
		tokenID = uuid.NewString()
	}

	payload := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID,
		},
		Name:  claims.Name,
		Roles: claims.Roles,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(t.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign jwt: %w", err)
	}

	return Token{Value: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Verify accepts a token up to and including the second it expires. The
// parser is given one second of leeway and the inclusive bound is checked
// after parsing.
func (t *TokenIssuer) Verify(token string) (Claims, error) {
	payload := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, payload, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(t.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(time.Second),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return Claims{}, ErrIssuerMismatch
		default:
			return Claims{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrInvalidSignature
	}
	if t.now().After(payload.ExpiresAt.Time) {
		return Claims{}, ErrTokenExpired
	}

	return Claims{
		Name:    payload.Name,
		TokenID: payload.ID,
		Roles:   payload.Roles,
	}, nil
}
