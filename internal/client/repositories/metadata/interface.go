// Package metadata is a small key/value store on top of the client database.
// It holds the session snapshot and other single-record settings.
package metadata

import (
	"context"
)

type Repository interface {
	// Get returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// Keys used by the client.
const (
	KeySession = "session"
)
