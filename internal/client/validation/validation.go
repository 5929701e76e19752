// Package validation checks a local video file before any network activity:
// size, extension, duration and resolution. All failing checks are reported
// together.
package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/vidloader/internal/client/apierr"
	"github.com/dmitrijs2005/vidloader/internal/logging"
)

const bytesPerMB = 1024 * 1024

const (
	MsgNoFile          = "No file provided"
	MsgNoMetadata      = "Could not retrieve video metadata"
	msgTooLarge        = "File is too large. Maximum size is %gMB"
	msgBadFormat       = "Invalid file format. Allowed formats are: %s"
	msgTooLong         = "Video duration exceeds the maximum limit of %g seconds"
	msgBelowResolution = "Minimum resolution: %dx%d"
	msgAboveResolution = "Maximum resolution: %dx%d"
)

type Config struct {
	MaxSizeInMB          float64  `json:"max_size_mb" yaml:"max_size_mb"`
	MaxDurationInSeconds float64  `json:"max_duration_seconds" yaml:"max_duration_seconds"`
	AllowedFormats       []string `json:"allowed_formats" yaml:"allowed_formats"`
	MinWidth             int      `json:"min_width" yaml:"min_width"`
	MinHeight            int      `json:"min_height" yaml:"min_height"`
	MaxWidth             int      `json:"max_width" yaml:"max_width"`
	MaxHeight            int      `json:"max_height" yaml:"max_height"`
}

func DefaultConfig() Config {
	return Config{
		MaxSizeInMB:          100,
		MaxDurationInSeconds: 300,
		AllowedFormats:       []string{"mp4", "mov", "avi", "webm"},
		MinWidth:             320,
		MinHeight:            240,
		MaxWidth:             1920,
		MaxHeight:            1080,
	}
}

// withDefaults replaces unset limits with the defaults.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSizeInMB <= 0 {
		c.MaxSizeInMB = d.MaxSizeInMB
	}
	if c.MaxDurationInSeconds <= 0 {
		c.MaxDurationInSeconds = d.MaxDurationInSeconds
	}
	if len(c.AllowedFormats) == 0 {
		c.AllowedFormats = d.AllowedFormats
	}
	if c.MinWidth <= 0 {
		c.MinWidth = d.MinWidth
	}
	if c.MinHeight <= 0 {
		c.MinHeight = d.MinHeight
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = d.MaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = d.MaxHeight
	}
	return c
}

// FileInput identifies the file to check. Name defaults to the base name of
// Path.
type FileInput struct {
	Path string
	Name string
	Size int64
}

// FileFromPath stats path and returns the matching input.
func FileFromPath(path string) (*FileInput, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &FileInput{Path: path, Name: filepath.Base(path), Size: st.Size()}, nil
}

type Metadata struct {
	Duration float64
	Width    int
	Height   int
	SizeInMB float64
	Format   string
	FileName string
}

type Result struct {
	IsValid  bool
	Errors   []string
	Metadata *Metadata
}

// Err returns the failures as a validation error, or nil when valid.
func (r Result) Err() error {
	if r.IsValid {
		return nil
	}
	return apierr.Validation("%s", strings.Join(r.Errors, "; "))
}

type Validator struct {
	cfg    Config
	prober Prober
	log    logging.Logger
}

func New(cfg Config, prober Prober, log logging.Logger) *Validator {
	return &Validator{cfg: cfg.withDefaults(), prober: prober, log: log.With("component", "validator")}
}

func (v *Validator) Config() Config {
	return v.cfg
}

// Validate runs every check on in. A file over the size limit is not probed.
func (v *Validator) Validate(ctx context.Context, in *FileInput) Result {
	if in == nil || (in.Path == "" && in.Name == "") {
		return Result{Errors: []string{MsgNoFile}}
	}

	name := in.Name
	if name == "" {
		name = filepath.Base(in.Path)
	}

	var errs []string

	oversize := float64(in.Size) > v.cfg.MaxSizeInMB*bytesPerMB
	if oversize {
		errs = append(errs, fmt.Sprintf(msgTooLarge, v.cfg.MaxSizeInMB))
	}

	ext := Extension(name)
	if !v.allowed(ext) {
		errs = append(errs, fmt.Sprintf(msgBadFormat, strings.Join(v.cfg.AllowedFormats, ", ")))
	}

	if oversize {
		return Result{Errors: errs}
	}

	probe, err := v.probe(ctx, in.Path)
	if err != nil {
		v.log.Debug(ctx, "probe failed", "file", name, "error", err)
		return Result{Errors: append(errs, MsgNoMetadata)}
	}

	if probe.Duration > v.cfg.MaxDurationInSeconds {
		errs = append(errs, fmt.Sprintf(msgTooLong, v.cfg.MaxDurationInSeconds))
	}
	if probe.Width < v.cfg.MinWidth || probe.Height < v.cfg.MinHeight {
		errs = append(errs, fmt.Sprintf(msgBelowResolution, v.cfg.MinWidth, v.cfg.MinHeight))
	}
	if probe.Width > v.cfg.MaxWidth || probe.Height > v.cfg.MaxHeight {
		errs = append(errs, fmt.Sprintf(msgAboveResolution, v.cfg.MaxWidth, v.cfg.MaxHeight))
	}

	format := ContentType(name)
	if format == "application/octet-stream" && probe.FormatName != "" {
		format = probe.FormatName
	}

	return Result{
		IsValid: len(errs) == 0,
		Errors:  errs,
		Metadata: &Metadata{
			Duration: probe.Duration,
			Width:    probe.Width,
			Height:   probe.Height,
			SizeInMB: float64(in.Size) / bytesPerMB,
			Format:   format,
			FileName: name,
		},
	}
}

func (v *Validator) probe(ctx context.Context, path string) (*ProbeResult, error) {
	if v.prober == nil {
		return nil, ErrNoProber
	}
	if path == "" {
		return nil, ErrNoProber
	}
	return v.prober.Probe(ctx, path)
}

func (v *Validator) allowed(ext string) bool {
	if ext == "" {
		return false
	}
	for _, f := range v.cfg.AllowedFormats {
		if strings.EqualFold(f, ext) {
			return true
		}
	}
	return false
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"m4v":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
}

// ContentType maps a file name to the MIME type sent to object storage.
func ContentType(name string) string {
	if ct, ok := contentTypes[Extension(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}
