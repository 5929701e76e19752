package cookies

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/models"
	"github.com/dmitrijs2005/vidloader/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, c models.StoredCookie) error {
	path := c.Path
	if path == "" {
		path = "/"
	}

	var expires sql.NullTime
	if !c.ExpiresAt.IsZero() {
		expires = sql.NullTime{Time: c.ExpiresAt.UTC(), Valid: true}
	}

	query := `
		INSERT INTO cookies (name, domain, path, value, expires_at, secure, http_only)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, domain, path) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			secure = excluded.secure,
			http_only = excluded.http_only
	`
	_, err := r.db.ExecContext(ctx, query, c.Name, c.Domain, path, c.Value, expires, c.Secure, c.HttpOnly)
	if err != nil {
		return fmt.Errorf("failed to save cookie %s: %w", c.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.StoredCookie, error) {
	query := `SELECT name, domain, path, value, expires_at, secure, http_only FROM cookies ORDER BY domain, name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select cookies: %w", err)
	}
	defer rows.Close()

	var result []models.StoredCookie
	for rows.Next() {
		var (
			item    models.StoredCookie
			expires sql.NullTime
		)
		if err := rows.Scan(&item.Name, &item.Domain, &item.Path, &item.Value, &expires, &item.Secure, &item.HttpOnly); err != nil {
			return nil, fmt.Errorf("failed to scan cookie row: %w", err)
		}
		if expires.Valid {
			item.ExpiresAt = expires.Time.In(time.UTC)
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cookie rows: %w", err)
	}

	return result, nil
}

func (r *SQLiteRepository) DeleteByName(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cookies WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete cookie %s: %w", name, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cookies`)
	if err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}
