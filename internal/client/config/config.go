package config

import (
	"os"
	"time"

	"github.com/dmitrijs2005/vidloader/internal/client/validation"
)

// Config holds runtime settings for the vidloader CLI.
type Config struct {
	BackendURL   string
	DatabasePath string
	LogLevel     string
	LogFormat    string

	RequestTimeout time.Duration

	PollInterval         time.Duration
	PollTimeout          time.Duration
	ImportCompleteStatus string
	FormatSelector       string

	BlockSizeMB       int
	UploadConcurrency int

	Validation  validation.Config
	FFProbePath string

	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:8000"
	c.DatabasePath = "vidloader.db"
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.RequestTimeout = 30 * time.Second
	c.PollInterval = 2 * time.Second
	c.PollTimeout = 10 * time.Second
	c.ImportCompleteStatus = "ready"
	c.FormatSelector = "best[ext=mp4]/best[height<=720]"
	c.BlockSizeMB = 4
	c.UploadConcurrency = 4
	c.Validation = validation.DefaultConfig()
	c.FFProbePath = "ffprobe"
	c.S3Region = "us-east-1"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the config file (if any) and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
