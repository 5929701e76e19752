package session

import (
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/models"
)

// Session is a point-in-time view of the store.
type Session struct {
	// HasCredential is the authenticated flag. It may be true while
	// Credential is empty right after Hydrate.
	HasCredential bool
	Credential    string
	// ExpiresAt is taken from the credential's exp claim when it is a JWT.
	ExpiresAt time.Time

	IsHydrated            bool
	IsAuthCheckInProgress bool

	Identity *models.Identity
}

// IsReady reports whether both start-up phases have completed.
func (s Session) IsReady() bool {
	return s.IsHydrated && !s.IsAuthCheckInProgress
}
