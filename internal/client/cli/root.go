package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

func (a *App) getStatus() string {
	var parts []string
	if a.session != nil {
		if s := a.session.Snapshot(); s.HasCredential && s.Identity != nil {
			parts = append(parts, s.Identity.Email)
		} else if s.HasCredential {
			parts = append(parts, "signed in")
		}
	}
	a.mu.Lock()
	expired := a.expired
	a.mu.Unlock()
	if expired {
		parts = append(parts, "session expired")
	}
	if a.uploads != nil {
		if job := a.uploads.Job(); job.Active() {
			parts = append(parts, fmt.Sprintf("upload %.0f%%", job.ProgressPercent))
		}
	}
	if a.imports != nil {
		if job := a.imports.Job(); job.Polling {
			parts = append(parts, "import "+job.Stage)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}

// Root restores the session, then runs the REPL on stdin. Nothing about the
// sign-in state is shown before the restore has finished.
func (a *App) Root(ctx context.Context) {
	a.printf("Welcome to vidloader CLI (type 'help' for commands)\n")

	a.printf("Checking session...\n")
	snap, err := a.auth.Restore(ctx)
	if err != nil {
		a.log.Warn(ctx, "session restore failed", "error", err)
	}
	if snap.HasCredential && snap.Identity != nil {
		a.printf("Signed in as %s\n", snap.Identity.Email)
	} else {
		_ = a.Login(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartProgressWatcher(ctx, progressInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}
