// Package cli provides the interactive vidloader command-line client.
//
// It wires configuration, local storage, the request pipeline and the
// application services, then runs a REPL. Start up is two-phase: the saved
// session is loaded and re-validated before the prompt shows any sign-in
// state.
//
// Key features:
//   - Login / Logout / WhoAmI
//   - Validate a local video without uploading it
//   - Upload a file in the background, with progress and cancel
//   - Import a video from a URL and follow the server side job
//   - Show server capacity
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
