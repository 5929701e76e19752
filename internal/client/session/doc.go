// Package session holds the client's credential store.
//
// The Store keeps the short-lived access credential in memory only. The
// identity of the signed-in user and an "authenticated" flag are persisted
// in the local database so a restarted CLI can show who was signed in, but
// that flag is never trusted on its own: CheckAuth reconciles it by running
// the renewal protocol before any protected action.
//
// Start-up is two-phase. Hydrate loads the durable snapshot, then CheckAuth
// validates it. Callers must not render an auth decision before both finish.
//
// Renewal is shared. However many goroutines ask for it at once, one request
// goes to the backend and every caller receives its outcome. A renewal that
// has started is not cancelled when the caller that triggered it goes away.
package session
