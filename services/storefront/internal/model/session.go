package model

import "time"

// Session represents one browser context. AccountID is a weak reference: the account may be
// deleted or changed while the session still points at it.
type Session struct {
	ID              string    `bson:"_id"`
	AccountID       string    `bson:"account_id,omitempty"`
	IsAuthenticated bool      `bson:"is_authenticated"`
	ExpiresAt       time.Time `bson:"expires_at"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`

	persisted bool
}

// NewAnonymousSession creates an empty, not yet persisted session.
func NewAnonymousSession(id string, ttl time.Duration) Session {
	now := time.Now()
	return Session{
		ID:        id,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsPersisted reports whether the session was loaded from or written to the store.
func (s Session) IsPersisted() bool {
	return s.persisted
}

// MarkPersisted returns a copy of the session flagged as stored.
func (s Session) MarkPersisted() Session {
	s.persisted = true
	return s
}
