package auth

import "time"

// Identity is a stored account.
type Identity struct {
	ID                string
	Username          string
	Email             string
	PasswordHash      string
	SecurityStamp     string
	AccessFailedCount int
	LockoutEnd        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (i Identity) LockedAt(now time.Time) bool {
	return i.LockoutEnd != nil && now.Before(*i.LockoutEnd)
}

// Claims is the claim set carried by an issued token.
type Claims struct {
	Name    string
	TokenID string
	Roles   []string
}

func (c Claims) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if r == role.String() {
			return true
		}
	}
	return false
}

type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type LoginResult struct {
	Token      string    `json:"token"`
	Expiration time.Time `json:"expiration"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}
