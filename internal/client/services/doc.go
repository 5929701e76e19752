// Package services contains the application services used by the CLI:
// authentication, file upload and URL import. Each service owns the state
// of its job and is safe for concurrent use; the composition root creates
// one instance of each.
package services
