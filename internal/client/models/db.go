// Package models defines the records the CLI keeps in its local database.
package models

import "time"

// Identity is the display identity of the signed-in user.
type Identity struct {
	Email       string `json:"email"`
	DisplayName string `json:"first_name"`
}

// SessionSnapshot is the durable part of a session. The credential itself is
// never part of it.
type SessionSnapshot struct {
	Identity        *Identity `json:"identity"`
	IsAuthenticated bool      `json:"is_authenticated"`
	SavedAt         time.Time `json:"saved_at"`
}
