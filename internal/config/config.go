// Package config holds the application options shared by all
// subcommands, filled from flags and environment variables.
package config

import (
	"fmt"
	"log/slog"
)

// Options is embedded in the CLI parser; go-flags fills it from the
// tagged environment variables when the flag is absent.
type Options struct {
	DatabasePath string `long:"db" env:"DATABASE_PATH" default:"./data/pinloop.db" description:"SQLite database path"`
	LogLevel     string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log verbosity"`
	ExportDir    string `long:"export-dir" env:"EXPORT_DIR" default:"./exports" description:"Directory for export files and dry-run snapshots"`

	OpenAIKey     string `long:"openai-key" env:"OPENAI_API_KEY" description:"OpenAI API key for hook generation"`
	OpenAIBaseURL string `long:"openai-base-url" env:"OPENAI_BASE_URL" description:"Override the OpenAI API base URL"`
	OpenAIModel   string `long:"openai-model" env:"OPENAI_MODEL" default:"gpt-4.1-mini" description:"Chat model used for hook generation"`
}

// SlogLevel maps the configured level name to a slog level.
func (o *Options) SlogLevel() slog.Level {
	switch o.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RequireOpenAI reports whether hook generation can run.
func (o *Options) RequireOpenAI() error {
	if o.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for hook generation")
	}
	return nil
}
