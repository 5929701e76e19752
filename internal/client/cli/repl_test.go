package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn  bool
	calls     []string
	args      map[string][]string
	locations []string
	failWith  error
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	if f.args == nil {
		f.args = map[string][]string{}
	}
	f.args[name] = args
	return f.failWith
}

func (f *fakeExec) isLoggedIn() bool             { return f.loggedIn }
func (f *fakeExec) setLocation(loc string)       { f.locations = append(f.locations, loc) }
func (f *fakeExec) WhoAmI(context.Context) error { return f.record("whoami", nil) }
func (f *fakeExec) Cancel(context.Context) error { return f.record("cancel", nil) }
func (f *fakeExec) Status(context.Context) error { return f.record("status", nil) }
func (f *fakeExec) Reset(context.Context) error  { return f.record("reset", nil) }
func (f *fakeExec) Stats(context.Context) error  { return f.record("stats", nil) }
func (f *fakeExec) Login(context.Context) error {
	f.loggedIn = true
	return f.record("login", nil)
}
func (f *fakeExec) Logout(context.Context) error {
	f.loggedIn = false
	return f.record("logout", nil)
}
func (f *fakeExec) Validate(_ context.Context, args []string) error {
	return f.record("validate", args)
}
func (f *fakeExec) Upload(_ context.Context, args []string) error { return f.record("upload", args) }
func (f *fakeExec) Import(_ context.Context, args []string) error { return f.record("import", args) }

func capturePrintln(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_DispatchesCommands(t *testing.T) {
	out := capturePrintln(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"login",
		"help",
		"",
		"validate /tmp/my clip.mp4",
		"upload a.mp4",
		"cancel",
		"import https://example.com/v.mp4 My Video",
		"status",
		"reset",
		"stats",
		"whoami",
		"foobar",
		"logout",
		"exit",
		"status",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewScanner(input))

	assert.Equal(t, []string{"login", "validate", "upload", "cancel", "import", "status", "reset", "stats", "whoami", "logout"}, exec.calls)
	assert.Equal(t, []string{"/tmp/my", "clip.mp4"}, exec.args["validate"])
	assert.Equal(t, []string{"https://example.com/v.mp4", "My", "Video"}, exec.args["import"])
	assert.Equal(t, "/help", exec.locations[0])
	assert.Equal(t, "/login", exec.locations[1])

	assert.Contains(t, *out, "Available commands: login, validate, exit")
	assert.Contains(t, *out, "Available commands: whoami, validate, upload, cancel, import, status, reset, stats, logout, exit")
	assert.Contains(t, *out, "Unknown command: foobar")
	assert.Contains(t, *out, "Bye!")
	assert.Contains(t, *out, "vl status> ")
}

func TestRunREPL_ReportsErrors(t *testing.T) {
	out := capturePrintln(t)

	exec := &fakeExec{loggedIn: true, failWith: errors.New("disk on fire")}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("stats\n")))

	assert.Equal(t, []string{"stats"}, exec.calls)
	assert.Contains(t, *out, "stats: disk on fire")
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	capturePrintln(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("")))
	assert.Empty(t, exec.calls)
}
