package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   backend base URL
//	-i int      poll interval in seconds
//	-d string   database path
//	-l string   log level
//
// Note: args are filtered with flagx.FilterArgs first so flags owned by
// other components do not cause parse errors.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-i", "-d", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BackendURL, "a", cfg.BackendURL, "backend base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path of the local database")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	pollInterval := fs.Int("i", int(cfg.PollInterval.Seconds()), "import poll interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	// -i only wins when given; the file may hold a sub-second interval
	var err error
	fs.Visit(func(f *flag.Flag) {
		if f.Name != "i" {
			return
		}
		if *pollInterval <= 0 {
			err = fmt.Errorf("poll interval must be positive, got %d", *pollInterval)
			return
		}
		cfg.PollInterval = time.Duration(*pollInterval) * time.Second
	})
	return err
}
