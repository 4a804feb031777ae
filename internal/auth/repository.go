package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"booking-api/internal/db"
)

const uniqueViolation = "23505"

// CredentialStore persists identities and role bindings.
type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (Identity, error)
	CreateUser(ctx context.Context, identity Identity, password string) (Identity, error)
	CheckPassword(ctx context.Context, identity Identity, password string) (bool, error)
	GetRoles(ctx context.Context, identity Identity) ([]string, error)
	RoleExists(ctx context.Context, name string) (bool, error)
	CreateRole(ctx context.Context, name string) error
	AddUserToRole(ctx context.Context, identity Identity, name string) error

	RecordAccessFailure(ctx context.Context, identity Identity, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetAccessFailures(ctx context.Context, identity Identity) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(database *sql.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (Identity, error) {
	var identity Identity
	var lockoutEnd sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, security_stamp, access_failed_count, lockout_end, created_at, updated_at
		FROM users
		WHERE normalized_username = $1
	`, normalizeName(username)).Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.PasswordHash,
		&identity.SecurityStamp,
		&identity.AccessFailedCount,
		&lockoutEnd,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("query user by username: %w", err)
	}
	if lockoutEnd.Valid {
		value := lockoutEnd.Time.UTC()
		identity.LockoutEnd = &value
	}

	return identity, nil
}

// CreateUser hashes password and inserts the identity in a single statement.
// A unique violation on the username maps to ErrDuplicateUser.
func (r *Repository) CreateUser(ctx context.Context, identity Identity, password string) (Identity, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return Identity{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Identity{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	identity.ID = id.String()
	identity.PasswordHash = hash
	identity.CreatedAt = now
	identity.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, normalized_username, email, normalized_email, password_hash, security_stamp, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, identity.ID, identity.Username, normalizeName(identity.Username), identity.Email, normalizeName(identity.Email), identity.PasswordHash, identity.SecurityStamp, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Identity{}, ErrDuplicateUser
		}
		return Identity{}, fmt.Errorf("insert user: %w", err)
	}

	return identity, nil
}

func (r *Repository) CheckPassword(_ context.Context, identity Identity, password string) (bool, error) {
	return comparePassword(identity.PasswordHash, password)
}

func (r *Repository) GetRoles(ctx context.Context, identity Identity) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.name
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("query user roles: %w", err)
	}
	defer rows.Close()

	roles := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user roles: %w", err)
	}

	return roles, nil
}

func (r *Repository) RoleExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM roles WHERE normalized_name = $1)
	`, normalizeName(name)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query role exists: %w", err)
	}

	return exists, nil
}

// CreateRole is idempotent so concurrent first registrations do not fail.
func (r *Repository) CreateRole(ctx context.Context, name string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate role id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, normalized_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (normalized_name) DO NOTHING
	`, id.String(), name, normalizeName(name))
	if err != nil {
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

func (r *Repository) AddUserToRole(ctx context.Context, identity Identity, name string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE normalized_name = $2
		ON CONFLICT (user_id, role_id) DO NOTHING
	`, identity.ID, normalizeName(name))
	if err != nil {
		return fmt.Errorf("insert user role: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user role rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.RoleExists(ctx, name)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("role %q does not exist", name)
		}
	}

	return nil
}

// RecordAccessFailure increments the failure counter under a row lock and
// starts a lockout once maxAttempts is reached. It returns the lockout end
// when the identity is (or becomes) locked.
func (r *Repository) RecordAccessFailure(ctx context.Context, identity Identity, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	var nextLock *time.Time

	err := db.WithTx(ctx, r.db, func(ctx context.Context, tx db.DBTX) error {
		var failed int
		var lockedUntil sql.NullTime
		err := tx.QueryRowContext(ctx, `
			SELECT access_failed_count, lockout_end
			FROM users
			WHERE id = $1
			FOR UPDATE
		`, identity.ID).Scan(&failed, &lockedUntil)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrIdentityNotFound
			}
			return fmt.Errorf("lock user row: %w", err)
		}

		if lockedUntil.Valid && now.Before(lockedUntil.Time) {
			until := lockedUntil.Time.UTC()
			nextLock = &until
			return nil
		}

		failed++
		var lockValue any
		if failed >= maxAttempts {
			until := now.UTC().Add(lockDuration)
			nextLock = &until
			lockValue = until
			failed = 0
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users
			SET access_failed_count = $2, lockout_end = $3, updated_at = $4
			WHERE id = $1
		`, identity.ID, failed, lockValue, now.UTC())
		if err != nil {
			return fmt.Errorf("update access failures: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return nextLock, nil
}

func (r *Repository) ResetAccessFailures(ctx context.Context, identity Identity) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET access_failed_count = 0, lockout_end = NULL, updated_at = $2
		WHERE id = $1 AND (access_failed_count <> 0 OR lockout_end IS NOT NULL)
	`, identity.ID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset access failures: %w", err)
	}

	return nil
}

// ClearExpiredLockouts resets counters on at most batchSize identities whose
// lockout has ended.
func (r *Repository) ClearExpiredLockouts(ctx context.Context, now time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := r.db.ExecContext(ctx, `
		WITH expired AS (
			SELECT id
			FROM users
			WHERE lockout_end IS NOT NULL AND lockout_end < $1
			ORDER BY lockout_end ASC
			LIMIT $2
		)
		UPDATE users u
		SET access_failed_count = 0, lockout_end = NULL, updated_at = $1
		FROM expired
		WHERE u.id = expired.id
	`, now.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear expired lockouts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired lockouts rows affected: %w", err)
	}

	return affected, nil
}
