package domain

import "time"

// SessionTokens is what a successful login or refresh hands back.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	SessionID    string
}

// RefreshToken is the stored record behind an opaque refresh token. Only
// the fingerprint of the token is persisted.
type RefreshToken struct {
	ID          string
	UserAddress string
	TokenHash   string
	SessionID   string // shared by every token in one rotation chain
	DID         string
	Role        string
	ExpiresAt   time.Time
	Revoked     bool
	RevokedAt   *time.Time
	ReplacedBy  string // ID of the token this one was rotated into
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
}

// Active reports whether the token may still be exchanged at now.
func (t RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
