package cookies

import (
	"context"

	"github.com/dmitrijs2005/vidloader/internal/client/models"
)

// Repository stores durable cookies.
type Repository interface {
	// Save inserts a cookie or replaces the one with the same name, domain and path.
	Save(ctx context.Context, c models.StoredCookie) error

	// GetAll returns every stored cookie ordered by domain and name.
	GetAll(ctx context.Context) ([]models.StoredCookie, error)

	// DeleteByName removes the cookie with the given name on every domain and path.
	DeleteByName(ctx context.Context, name string) error

	// Clear removes all cookies.
	Clear(ctx context.Context) error
}
