package models

import "time"

// Entitlement records that a user owns access to a book. One row per
// (user, book) pair; granting the same pair again is absorbed by the store.
type Entitlement struct {
	UserID    string
	BookID    string
	GrantedAt time.Time
}
