// Package config loads runtime configuration for the vidloader CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected via flags: -c or -config. Files
//     ending in .yaml or .yml are read as YAML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   backend base URL
//	-i int      import status poll interval (seconds)
//	-d string   path of the local SQLite database
//	-l string   log level (debug, info, warn, error)
//
// # File schema
//
// Durations use timex.Duration, so values can be either strings like "2s"
// or integer nanoseconds:
//
//	{
//	  "backend_url": "https://api.example.com",
//	  "poll_interval": "2s",
//	  "block_size_mb": 4,
//	  "validation": {"max_size_mb": 2000}
//	}
//
// Note: This package does not read environment variables directly; use the
// config file or flags to configure values.
package config
