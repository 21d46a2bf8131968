// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents an account in EveryPoll.
//
// Users are ANONYMOUS-FIRST: the server creates a User row with NULL email
// and name the first time a browser shows up without a session. Linking a
// Google account later fills in email/name IN PLACE — the ID never changes,
// so every poll and vote the anonymous user made stays attached.
//
// WHY *string AND NOT string?
// Email carries a UNIQUE constraint in the database. With plain strings,
// every anonymous user would hold the same empty-string email and the second
// anonymous signup would violate the constraint. SQL NULLs are exempt from
// UNIQUE, so nullable columns map to pointers here: nil = never linked.
type User struct {
	ID        string    `json:"id"`
	Email     *string   `json:"email"` // NULL until a Google account is linked
	Name      *string   `json:"name"`  // NULL until a Google account is linked
	CreatedAt time.Time `json:"createdAt"`
}

// Anonymous reports whether the user has not linked an external identity yet.
func (u *User) Anonymous() bool {
	return u.Email == nil
}

// Session is the server-side half of a login session. The browser holds only
// a signed token naming the session ID; this row is the source of truth, so
// deleting it is a complete, all-or-nothing logout.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session has passed its fixed TTL.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
