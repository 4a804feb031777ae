package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultLockWindow = 15 * time.Minute

// Issuer mints tokens for a claim set.
type Issuer interface {
	Issue(claims Claims) (Token, error)
}

type Service struct {
	store        CredentialStore
	issuer       Issuer
	maxAttempts  int
	lockDuration time.Duration
	now          func() time.Time
}

func NewService(store CredentialStore, issuer Issuer) *Service {
	return &Service{
		store:        store,
		issuer:       issuer,
		lockDuration: defaultLockWindow,
		now:          time.Now,
	}
}

// WithLockout enables account lockout after maxAttempts consecutive failed
// logins. maxAttempts of zero keeps lockout disabled.
func (s *Service) WithLockout(maxAttempts int, lockDuration time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
}

func (s *Service) lockoutEnabled() bool {
	return s.maxAttempts > 0
}

func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, ErrUnauthorized
	}

	identity, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			_, _ = comparePassword(decoyPasswordHash(), password)
			return LoginResult{}, ErrUnauthorized
		}
		return LoginResult{}, err
	}

	now := s.now().UTC()
	if s.lockoutEnabled() && identity.LockedAt(now) {
		return LoginResult{}, ErrLoginLocked{Until: *identity.LockoutEnd}
	}

	ok, err := s.store.CheckPassword(ctx, identity, password)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		if !s.lockoutEnabled() {
			return LoginResult{}, ErrUnauthorized
		}
		lockedUntil, err := s.store.RecordAccessFailure(ctx, identity, s.maxAttempts, s.lockDuration, now)
		if err != nil {
			return LoginResult{}, err
		}
		if lockedUntil != nil {
			return LoginResult{}, ErrLoginLocked{Until: *lockedUntil}
		}
		return LoginResult{}, ErrUnauthorized
	}

	if s.lockoutEnabled() {
		if err := s.store.ResetAccessFailures(ctx, identity); err != nil {
			return LoginResult{}, err
		}
	}

	roles, err := s.store.GetRoles(ctx, identity)
	if err != nil {
		return LoginResult{}, err
	}

	token, err := s.issuer.Issue(Claims{
		Name:    identity.Username,
		TokenID: uuid.NewString(),
		Roles:   roles,
	})
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Token: token.Value, Expiration: token.ExpiresAt}, nil
}

// Register creates an identity and binds it to role, creating the role on
// first use.
func (s *Service) Register(ctx context.Context, input RegisterInput, role Role) error {
	if !role.IsValid() {
		return fmt.Errorf("register: unknown role %d", role)
	}

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrUserCreationFailed)
	}

	_, err := s.store.FindByUsername(ctx, username)
	if err == nil {
		return ErrDuplicateUser
	}
	if !errors.Is(err, ErrIdentityNotFound) {
		return err
	}

	identity, err := s.store.CreateUser(ctx, Identity{
		Username:      username,
		Email:         strings.TrimSpace(input.Email),
		SecurityStamp: uuid.NewString(),
	}, input.Password)
	if err != nil {
		return err
	}

	roleName := role.String()
	exists, err := s.store.RoleExists(ctx, roleName)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.store.CreateRole(ctx, roleName); err != nil {
			return err
		}
	}

	if err := s.store.AddUserToRole(ctx, identity, roleName); err != nil {
		return fmt.Errorf("grant role %s: %w", roleName, err)
	}

	return nil
}

// EnsureAdmin registers an Admin identity unless the username is taken.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	if username == "" && password == "" {
		return nil
	}
	if username == "" || password == "" {
		return errors.New("ADMIN_USERNAME and ADMIN_PASSWORD are required together")
	}

	err := s.Register(ctx, RegisterInput{Username: username, Email: email, Password: password}, RoleAdmin)
	if errors.Is(err, ErrDuplicateUser) {
		return nil
	}

	return err
}
