// Package cookies persists the HTTP cookies that must survive a restart of
// the CLI, such as the refresh cookie set by the backend on login.
//
// The SQLite implementation works over dbx.DBTX, so callers may run it on
// the database handle or inside a transaction. Rows are keyed by
// (name, domain, path), the same identity a cookie jar uses.
//
// Typical usage
//
//	repo := cookies.NewSQLiteRepository(db)
//	_ = repo.Save(ctx, c)
//	all, _ := repo.GetAll(ctx)
//	_ = repo.DeleteByName(ctx, "refresh_token")
package cookies
