package auth

import (
	"context"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	passwordHashCost = bcrypt.MinCost
	os.Exit(m.Run())
}

// memoryStore is a CredentialStore with the same uniqueness rules as the
// Postgres schema.
type memoryStore struct {
	mu         sync.Mutex
	users      map[string]Identity
	roles      map[string]string
	bindings   map[string]map[string]bool
	failCreate error
	failRoles  error

	// hideOnLookup makes FindByUsername miss, simulating a registration race.
	hideOnLookup bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:    make(map[string]Identity),
		roles:    make(map[string]string),
		bindings: make(map[string]map[string]bool),
	}
}

func (m *memoryStore) FindByUsername(_ context.Context, username string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hideOnLookup {
		return Identity{}, ErrIdentityNotFound
	}
	identity, ok := m.users[normalizeName(username)]
	if !ok {
		return Identity{}, ErrIdentityNotFound
	}
	return identity, nil
}

func (m *memoryStore) CreateUser(_ context.Context, identity Identity, password string) (Identity, error) {
	if m.failCreate != nil {
		return Identity{}, m.failCreate
	}
	hash, err := hashPassword(password)
	if err != nil {
		return Identity{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeName(identity.Username)
	if _, ok := m.users[key]; ok {
		return Identity{}, ErrDuplicateUser
	}
	identity.ID = uuid.NewString()
	identity.PasswordHash = hash
	m.users[key] = identity
	return identity, nil
}

func (m *memoryStore) CheckPassword(_ context.Context, identity Identity, password string) (bool, error) {
	return comparePassword(identity.PasswordHash, password)
}

func (m *memoryStore) GetRoles(_ context.Context, identity Identity) ([]string, error) {
	if m.failRoles != nil {
		return nil, m.failRoles
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	roles := make([]string, 0)
	for key := range m.bindings[identity.ID] {
		roles = append(roles, m.roles[key])
	}
	sort.Strings(roles)
	return roles, nil
}

func (m *memoryStore) RoleExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.roles[normalizeName(name)]
	return ok, nil
}

func (m *memoryStore) CreateRole(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roles[normalizeName(name)]; !ok {
		m.roles[normalizeName(name)] = name
	}
	return nil
}

func (m *memoryStore) AddUserToRole(_ context.Context, identity Identity, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.bindings[identity.ID] == nil {
		m.bindings[identity.ID] = make(map[string]bool)
	}
	m.bindings[identity.ID][normalizeName(name)] = true
	return nil
}

func (m *memoryStore) RecordAccessFailure(_ context.Context, identity Identity, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeName(identity.Username)
	stored := m.users[key]
	if stored.LockedAt(now) {
		until := *stored.LockoutEnd
		return &until, nil
	}

	stored.AccessFailedCount++
	var lock *time.Time
	if stored.AccessFailedCount >= maxAttempts {
		until := now.Add(lockDuration)
		stored.LockoutEnd = &until
		stored.AccessFailedCount = 0
		lock = &until
	}
	m.users[key] = stored
	return lock, nil
}

func (m *memoryStore) ResetAccessFailures(_ context.Context, identity Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := normalizeName(identity.Username)
	stored := m.users[key]
	stored.AccessFailedCount = 0
	stored.LockoutEnd = nil
	m.users[key] = stored
	return nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}
