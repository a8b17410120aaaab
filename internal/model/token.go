package model

import "time"

// RefreshState is derived from a record's revocation and successor fields.
type RefreshState string

const (
	RefreshActive  RefreshState = "ACTIVE"
	RefreshRotated RefreshState = "ROTATED"
	RefreshRevoked RefreshState = "REVOKED"
)

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the raw token is stored. Records form a chain per login:
// every rotated record is pointed at by exactly one successor through
// ReplacesID.
type RefreshToken struct {
	ID           string     // refresh_tokens.id (uuid)
	UserID       uint64     // refresh_tokens.user_id
	TokenHash    string     // refresh_tokens.token_hash
	ReplacesID   *string    // refresh_tokens.replaces_id (nullable)
	IssuedAt     time.Time  // refresh_tokens.issued_at
	ExpiresAt    time.Time  // refresh_tokens.expires_at
	RevokedAt    *time.Time // refresh_tokens.revoked_at (nullable)
	HasSuccessor bool       // computed: another record replaces this one
}

// State reports ACTIVE, ROTATED or REVOKED.
func (t RefreshToken) State() RefreshState {
	switch {
	case t.RevokedAt == nil:
		return RefreshActive
	case t.HasSuccessor:
		return RefreshRotated
	default:
		return RefreshRevoked
	}
}

// TokenPair is what a successful login or refresh hands to the client.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
