package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	setLocation(loc string)
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Validate(ctx context.Context, args []string) error
	Upload(ctx context.Context, args []string) error
	Cancel(ctx context.Context) error
	Import(ctx context.Context, args []string) error
	Status(ctx context.Context) error
	Reset(ctx context.Context) error
	Stats(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the vidloader CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
//	Not logged in:
//	  - help                 show available commands
//	  - login                authenticate
//	  - validate <file>      check a local video
//	  - exit | quit          leave the program
//
//	Logged in, additionally:
//	  - whoami               show the signed-in user
//	  - upload <file>        upload a video in the background
//	  - cancel               cancel the running upload
//	  - import <url> [name]  import a video from a URL
//	  - status               show upload and import progress
//	  - reset                forget finished jobs
//	  - stats                show server capacity
//	  - logout               log out
//
// Command handlers print their own results; errors returned here are
// reported with the command name only when the handler did not.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("vl %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]
		a.setLocation("/" + cmd)

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, validate, upload, cancel, import, status, reset, stats, logout, exit")
			} else {
				printlnFn("Available commands: login, validate, exit")
			}

		case "login":
			err = a.Login(ctx)
		case "logout":
			err = a.Logout(ctx)
		case "whoami":
			err = a.WhoAmI(ctx)
		case "validate":
			err = a.Validate(ctx, args)
		case "upload":
			err = a.Upload(ctx, args)
		case "cancel":
			err = a.Cancel(ctx)
		case "import":
			err = a.Import(ctx, args)
		case "status":
			err = a.Status(ctx)
		case "reset":
			err = a.Reset(ctx)
		case "stats":
			err = a.Stats(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn(fmt.Sprintf("%s: %s", cmd, describe(err)))
		}
	}
}
