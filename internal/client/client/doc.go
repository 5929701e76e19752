// Package client talks to the video backend over HTTP.
//
// # Pipeline
//
// Every call goes through a fixed list of middlewares, outermost first:
//
//  1. normalizeErrors      converts every failure into *apierr.Error
//  2. renewOnUnauthorized  on 401 renews the credential once and replays
//  3. retryOnAntiForgery   on a CSRF 403 drops the token once and replays
//  4. attachCredential     sets "Authorization: Bearer <credential>"
//  5. attachAntiForgery    sets X-CSRF-Token on state-changing methods,
//     fetching a token first when the cookie jar has none
//  6. transport            net/http with the client's cookie jar
//
// Retry flags are stored on the Request, so each retry path fires at most
// once per call and a 403 followed by a 401 is handled in that order.
//
// When renewal fails the session is logged out and, unless the Navigator
// already points at an auth page, the user is sent to the login surface.
//
// # Local storage
//
// InitDatabase and RunMigrations open the SQLite database used for the
// session snapshot and durable cookies and apply the embedded goose
// migrations.
package client
