package model

import "time"

// RefreshToken models an entry in the `refresh_tokens` table. Each refresh
// token belongs to a user and carries metadata for expiry and revocation.
// The plain token is never stored; only its SHA-256 hash. Tokens are
// revoked, never deleted.
//
// Fields:
//
//	ID          – UUID primary key, exposed for targeted revocation.
//	UserID      – owner of the token.
//	TokenHash   – SHA-256 hex digest of the token value.
//	CreatedByIP – client IP at issue time.
//	UserAgent   – client user agent at issue time.
//	Provider    – credential used to obtain the session (phone, email).
//	ExpiresAt   – expiration timestamp.
//	RevokedAt   – when the token was revoked (null if still active).
//	Reason      – why the token was revoked (null if still active).
type RefreshToken struct {
	ID          string     // refresh_tokens.id (uuid)
	UserID      uint64     // refresh_tokens.user_id
	TokenHash   string     // refresh_tokens.token_hash
	CreatedByIP string     // refresh_tokens.created_by_ip
	UserAgent   string     // refresh_tokens.user_agent
	Provider    string     // refresh_tokens.provider
	ExpiresAt   time.Time  // refresh_tokens.expires_at
	RevokedAt   *time.Time // refresh_tokens.revoked_at (nullable)
	Reason      *string    // refresh_tokens.reason (nullable)
	CreatedAt   time.Time  // refresh_tokens.created_at
}

// IsActive reports whether the token can still be exchanged.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// SearchHistory upserts on (UserID, Query, Type); Count increments on each
// repeat search and feeds the personalized recommendation signal.
type SearchHistory struct {
	UserID         uint64    // search_history.user_id
	Query          string    // search_history.query
	Type           string    // search_history.type (product, job, project)
	Count          int       // search_history.count
	LastSearchedAt time.Time // search_history.last_searched_at
}
