package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *memoryStore, *TokenIssuer) {
	t.Helper()
	store := newMemoryStore()
	issuer := newTestIssuer(t)
	return NewService(store, issuer), store, issuer
}

func TestRegisterThenLogin_Member(t *testing.T) {
	svc, _, issuer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}, RoleMember))

	result, err := svc.Login(ctx, "alice", "P@ssw0rd!")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	assert.True(t, result.Expiration.After(time.Now()))

	claims, err := issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Name)
	assert.Equal(t, []string{"Member"}, claims.Roles)
	assert.NotEmpty(t, claims.TokenID)

	_, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRegisterAdmin_HasOnlyAdminRole(t *testing.T) {
	svc, _, issuer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "root", Email: "r@x.com", Password: "Secr3t!"}, RoleAdmin))

	result, err := svc.Login(ctx, "root", "Secr3t!")
	require.NoError(t, err)

	claims, err := issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, claims.Roles)
	assert.True(t, claims.HasRole(RoleAdmin))
	assert.False(t, claims.HasRole(RoleMember))
}

func TestLogin_ClaimsReflectCurrentRoles(t *testing.T) {
	svc, store, issuer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "bob", Email: "b@x.com", Password: "B0b!pass"}, RoleMember))

	identity, err := store.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, store.CreateRole(ctx, RoleAdmin.String()))
	require.NoError(t, store.AddUserToRole(ctx, identity, RoleAdmin.String()))

	result, err := svc.Login(ctx, "bob", "B0b!pass")
	require.NoError(t, err)
	claims, err := issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Admin", "Member"}, claims.Roles)
}

func TestLogin_UsernameLookupIsCaseInsensitive(t *testing.T) {
	svc, _, issuer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "Alice", Email: "a@x.com", Password: "P@ssw0rd!"}, RoleMember))

	result, err := svc.Login(ctx, "  alice ", "P@ssw0rd!")
	require.NoError(t, err)

	claims, err := issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", claims.Name)
}

func TestLogin_UnknownUserMatchesWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}, RoleMember))

	_, unknownErr := svc.Login(ctx, "ghost", "P@ssw0rd!")
	_, wrongErr := svc.Login(ctx, "alice", "nope")

	require.ErrorIs(t, unknownErr, ErrUnauthorized)
	require.ErrorIs(t, wrongErr, ErrUnauthorized)
	assert.Equal(t, unknownErr, wrongErr)
}

func TestLogin_EmptyCredentials(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "", "x")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Login(context.Background(), "alice", "")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogin_StoreErrorIsNotUnauthorized(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}, RoleMember))

	store.failRoles = errors.New("db down")
	_, err := svc.Login(ctx, "alice", "P@ssw0rd!")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestRegister_DuplicateUser(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	input := RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}
	require.NoError(t, svc.Register(ctx, input, RoleMember))

	err := svc.Register(ctx, input, RoleMember)
	require.ErrorIs(t, err, ErrDuplicateUser)

	err = svc.Register(ctx, RegisterInput{Username: "ALICE", Email: "other@x.com", Password: "P@ssw0rd!"}, RoleAdmin)
	require.ErrorIs(t, err, ErrDuplicateUser)

	assert.Equal(t, 1, store.count())
}

func TestRegister_RaceCaughtByStoreUniqueness(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	input := RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}
	require.NoError(t, svc.Register(ctx, input, RoleMember))

	store.hideOnLookup = true
	err := svc.Register(ctx, input, RoleMember)
	require.ErrorIs(t, err, ErrDuplicateUser)
	assert.Equal(t, 1, store.count())
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}, RoleMember)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, ErrDuplicateUser)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, store.count())
}

func TestRegister_PasswordPolicyRejected(t *testing.T) {
	svc, store, _ := newTestService(t)

	for _, password := range []string{"short", "alllowercase1!", "ALLUPPER1!", "NoDigits!", "NoSymbol1a"} {
		err := svc.Register(context.Background(), RegisterInput{Username: "weak", Email: "w@x.com", Password: password}, RoleMember)
		require.ErrorIs(t, err, ErrUserCreationFailed, password)
	}
	assert.Equal(t, 0, store.count())
}

func TestRegister_CreatesRoleOnce(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	exists, err := store.RoleExists(ctx, "Member")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "a1", Email: "a1@x.com", Password: "P@ssw0rd!"}, RoleMember))
	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "a2", Email: "a2@x.com", Password: "P@ssw0rd!"}, RoleMember))

	exists, err = store.RoleExists(ctx, "Member")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Len(t, store.roles, 1)
}

func TestRegister_UnknownRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Register(context.Background(), RegisterInput{Username: "a", Email: "a@x.com", Password: "P@ssw0rd!"}, Role(99))
	require.Error(t, err)
}

func TestLogin_LockoutAfterMaxAttempts(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.WithLockout(3, time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}, RoleMember))

	for i := 0; i < 2; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err := svc.Login(ctx, "alice", "wrong")
	var locked ErrLoginLocked
	require.ErrorAs(t, err, &locked)
	assert.True(t, locked.Until.After(time.Now()))

	_, err = svc.Login(ctx, "alice", "P@ssw0rd!")
	require.ErrorAs(t, err, &locked)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = svc.Login(ctx, "alice", "P@ssw0rd!")
	require.NoError(t, err)
}

func TestLogin_LockoutDisabledByDefault(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, RegisterInput{Username: "alice", Email: "a@x.com", Password: "P@ssw0rd!"}, RoleMember))
	for i := 0; i < 10; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err := svc.Login(ctx, "alice", "P@ssw0rd!")
	require.NoError(t, err)
}

func TestEnsureAdmin(t *testing.T) {
	svc, store, issuer := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "", "", ""))
	assert.Equal(t, 0, store.count())

	require.Error(t, svc.EnsureAdmin(ctx, "root", "", ""))

	require.NoError(t, svc.EnsureAdmin(ctx, "root", "r@x.com", "Secr3t!"))
	require.NoError(t, svc.EnsureAdmin(ctx, "root", "r@x.com", "Secr3t!"))
	assert.Equal(t, 1, store.count())

	result, err := svc.Login(ctx, "root", "Secr3t!")
	require.NoError(t, err)
	claims, err := issuer.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"Admin"}, claims.Roles)
}

func TestEnsureAdmin_PasswordUsedVerbatim(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx, "root", "r@x.com", " Secr3t! "))

	_, err := svc.Login(ctx, "root", " Secr3t! ")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "root", "Secr3t!")
	require.ErrorIs(t, err, ErrUnauthorized)
}
