package cli

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/services"
)

// progressState is what the watcher printed last.
type progressState struct {
	uploadID      string
	uploadPercent int
	importTask    string
	importStatus  string
	importPercent int
}

// StartProgressWatcher prints upload and import progress whenever it
// changes, until ctx is done.
func (a *App) StartProgressWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.reportProgress()
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) reportProgress() {
	up := a.uploads.Job()
	im := a.imports.Job()

	a.mu.Lock()
	last := a.last
	next := last
	var lines []string

	if up.Phase == services.PhaseUploading {
		p := int(math.Floor(up.ProgressPercent))
		if up.FileID != last.uploadID || p != last.uploadPercent {
			next.uploadID, next.uploadPercent = up.FileID, p
			lines = append(lines, formatUpload(up))
		}
	}

	if im.TaskID != "" {
		p := int(math.Floor(im.ProgressPercent))
		if im.TaskID != last.importTask || im.Status != last.importStatus || p != last.importPercent {
			next.importTask, next.importStatus, next.importPercent = im.TaskID, im.Status, p
			lines = append(lines, formatImport(im))
		}
	}

	a.last = next
	a.mu.Unlock()

	for _, l := range lines {
		a.printf("%s\n", l)
	}
}

func formatUpload(j services.UploadJob) string {
	return "[upload] " + j.FileName + " " + percentText(j.ProgressPercent)
}

func formatImport(j services.ImportJob) string {
	s := "[import] " + j.Stage + " " + percentText(j.ProgressPercent)
	if j.CurrentStep != "" {
		s += " - " + j.CurrentStep
	}
	return s
}

const barWidth = 20

// percentText renders p as "[#####.....] 25%".
func percentText(p float64) string {
	p = min(max(p, 0), 100)
	filled := int(p * barWidth / 100)
	return fmt.Sprintf("[%s%s] %d%%", strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), int(math.Floor(p)))
}
