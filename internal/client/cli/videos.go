package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/client/services"
	"github.com/dmitrijs2005/vidloader/internal/client/validation"
)

var errUsage = errors.New("missing argument")

// describe turns any error into the message shown to the user.
func describe(err error) string {
	if errors.Is(err, errUsage) {
		return err.Error()
	}
	_, msg := apierr.Describe(err)
	return msg
}

func usage(format string) error {
	return fmt.Errorf("%w, usage: %s", errUsage, format)
}

func (a *App) Validate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("validate <file>")
	}
	in, err := validation.FileFromPath(strings.Join(args, " "))
	if err != nil {
		return apierr.Validation("%s", validation.MsgNoFile)
	}

	res := a.validator.Validate(ctx, in)
	if !res.IsValid {
		a.printf("%s is not valid:\n", in.Name)
		for _, e := range res.Errors {
			a.printf("  - %s\n", e)
		}
		return nil
	}

	m := res.Metadata
	a.printf("%s is valid: %dx%d, %.1fs, %.1f MB, %s\n", m.FileName, m.Width, m.Height, m.Duration, m.SizeInMB, m.Format)
	return nil
}

// Upload starts an upload in the background; progress is reported by the
// watcher and the outcome printed when it ends. A running upload is
// superseded: it is not cancelled, but only the new one is tracked.
func (a *App) Upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("upload <file>")
	}
	in, err := validation.FileFromPath(strings.Join(args, " "))
	if err != nil {
		return apierr.Validation("%s", validation.MsgNoFile)
	}
	if prev := a.uploads.Job(); prev.Active() {
		a.printf("Replacing the upload of %s; it finishes in the background.\n", prev.FileName)
	}

	a.printf("Uploading %s (%.1f MB)...\n", in.Name, float64(in.Size)/(1<<20))
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		job, err := a.uploads.Upload(ctx, in)
		if err != nil {
			a.printf("Upload failed: %s\n", describe(err))
			return
		}
		a.printf("Upload complete: %s (video %s)\n", job.FileName, job.RemoteObjectID)
	}()
	return nil
}

func (a *App) Cancel(context.Context) error {
	if a.uploads.Cancel() {
		a.printf("Cancelling upload...\n")
	} else {
		a.printf("No upload in progress.\n")
	}
	return nil
}

func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("import <url> [file name]")
	}
	job, err := a.imports.Submit(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	a.printf("Import started (task %s): %s\n", job.TaskID, job.Stage)
	return nil
}

func (a *App) Status(context.Context) error {
	up := a.uploads.Job()
	switch up.Phase {
	case "", services.PhaseIdle:
		a.printf("Upload: none\n")
	default:
		a.printf("Upload: %s %s %.0f%%", up.FileName, up.Phase, up.ProgressPercent)
		if up.ErrorMessage != "" {
			a.printf(" (%s)", up.ErrorMessage)
		}
		a.printf("\n")
	}

	im := a.imports.Job()
	switch {
	case im.TaskID == "" && im.ErrorMessage == "":
		a.printf("Import: none\n")
	case im.TaskID == "":
		a.printf("Import: %s\n", im.ErrorMessage)
	default:
		a.printf("Import: task %s %s %.0f%%", im.TaskID, im.Stage, im.ProgressPercent)
		if im.CurrentStep != "" {
			a.printf(" - %s", im.CurrentStep)
		}
		if im.ErrorMessage != "" {
			a.printf(" (%s)", im.ErrorMessage)
		}
		a.printf("\n")
	}
	return nil
}

func (a *App) Reset(context.Context) error {
	a.imports.Reset()
	if err := a.uploads.Reset(); err != nil {
		return apierr.Validation("Cancel the running upload first.")
	}
	a.mu.Lock()
	a.last = progressState{}
	a.mu.Unlock()
	a.printf("Cleared.\n")
	return nil
}

func (a *App) Stats(ctx context.Context) error {
	st, err := a.imports.ServerStats(ctx)
	if err != nil {
		return err
	}
	a.printf("Server: %d active uploads, %d of %d slots available\n", st.ActiveUploads, st.AvailableSlots, st.MaxConcurrent)
	return nil
}
