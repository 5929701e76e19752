package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/vidloader/internal/client/validation"
	"github.com/dmitrijs2005/vidloader/internal/flagx"
	"github.com/dmitrijs2005/vidloader/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is a DTO used exclusively for decoding the config file. Zero
// values leave the corresponding setting untouched.
type fileConfig struct {
	BackendURL   string `json:"backend_url" yaml:"backend_url"`
	DatabasePath string `json:"database_path" yaml:"database_path"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	LogFormat    string `json:"log_format" yaml:"log_format"`

	RequestTimeout timex.Duration `json:"request_timeout" yaml:"request_timeout"`

	PollInterval         timex.Duration `json:"poll_interval" yaml:"poll_interval"`
	PollTimeout          timex.Duration `json:"poll_timeout" yaml:"poll_timeout"`
	ImportCompleteStatus string         `json:"import_complete_status" yaml:"import_complete_status"`
	FormatSelector       string         `json:"format_selector" yaml:"format_selector"`

	BlockSizeMB       int `json:"block_size_mb" yaml:"block_size_mb"`
	UploadConcurrency int `json:"upload_concurrency" yaml:"upload_concurrency"`

	Validation  *validation.Config `json:"validation" yaml:"validation"`
	FFProbePath string             `json:"ffprobe_path" yaml:"ffprobe_path"`

	S3 struct {
		Region    string `json:"region" yaml:"region"`
		Endpoint  string `json:"endpoint" yaml:"endpoint"`
		AccessKey string `json:"access_key" yaml:"access_key"`
		SecretKey string `json:"secret_key" yaml:"secret_key"`
	} `json:"s3" yaml:"s3"`
}

// parseFile overlays cfg with the file named by -c or -config. Without
// either flag it does nothing.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.BackendURL, fc.BackendURL)
	setString(&cfg.DatabasePath, fc.DatabasePath)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.LogFormat, fc.LogFormat)
	setString(&cfg.ImportCompleteStatus, fc.ImportCompleteStatus)
	setString(&cfg.FormatSelector, fc.FormatSelector)
	setString(&cfg.FFProbePath, fc.FFProbePath)
	setString(&cfg.S3Region, fc.S3.Region)
	setString(&cfg.S3Endpoint, fc.S3.Endpoint)
	setString(&cfg.S3AccessKey, fc.S3.AccessKey)
	setString(&cfg.S3SecretKey, fc.S3.SecretKey)

	if fc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = fc.RequestTimeout.Duration
	}
	if fc.PollInterval.Duration > 0 {
		cfg.PollInterval = fc.PollInterval.Duration
	}
	if fc.PollTimeout.Duration > 0 {
		cfg.PollTimeout = fc.PollTimeout.Duration
	}
	if fc.BlockSizeMB > 0 {
		cfg.BlockSizeMB = fc.BlockSizeMB
	}
	if fc.UploadConcurrency > 0 {
		cfg.UploadConcurrency = fc.UploadConcurrency
	}
	if v := fc.Validation; v != nil {
		overlayValidation(&cfg.Validation, *v)
	}
}

func overlayValidation(dst *validation.Config, src validation.Config) {
	if src.MaxSizeInMB > 0 {
		dst.MaxSizeInMB = src.MaxSizeInMB
	}
	if src.MaxDurationInSeconds > 0 {
		dst.MaxDurationInSeconds = src.MaxDurationInSeconds
	}
	if len(src.AllowedFormats) > 0 {
		dst.AllowedFormats = src.AllowedFormats
	}
	if src.MinWidth > 0 {
		dst.MinWidth = src.MinWidth
	}
	if src.MinHeight > 0 {
		dst.MinHeight = src.MinHeight
	}
	if src.MaxWidth > 0 {
		dst.MaxWidth = src.MaxWidth
	}
	if src.MaxHeight > 0 {
		dst.MaxHeight = src.MaxHeight
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
