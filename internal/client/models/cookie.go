package models

import "time"

// StoredCookie is a persisted HTTP cookie. Only cookies that must outlive the
// process (the refresh cookie) are stored.
type StoredCookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HttpOnly bool

	// ExpiresAt is zero for cookies without an explicit expiry.
	ExpiresAt time.Time
}

// Expired reports whether the cookie has a deadline that lies before now.
func (c StoredCookie) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}
