package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/vigil/pkg/vigil/config"
	"github.com/jamesainslie/vigil/pkg/vigil/logging"
	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

const defaultLogMaxSize = 10 * types.MiB

// ensureDirectories creates the XDG directories vigil writes to.
func ensureDirectories() error {
	configDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{configDir, config.DataDir(), config.StateDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// parseRotationConfig converts the configured rotation settings, falling
// back to a 10MB limit when max_size is empty or invalid.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	maxSize := int64(defaultLogMaxSize)
	if rc.MaxSize != "" {
		if n, err := types.ParseSize(rc.MaxSize); err == nil && n > 0 {
			maxSize = n
		}
	}
	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}

// consoleLevel picks the stderr log level from the verbosity flags.
func consoleLevel(cmd *cobra.Command) string {
	switch {
	case getQuiet(cmd):
		return ""
	case getVerbose(cmd):
		return "debug"
	default:
		return "warn"
	}
}

// progressEnabled reports whether cmd should render the progress view.
func progressEnabled(cmd *cobra.Command) bool {
	if cmd == nil || cmd.Annotations[annotationProgress] == "" {
		return false
	}
	if getQuiet(cmd) || getVerbose(cmd) || flagBool(cmd, "no-progress") {
		return false
	}
	return isatty.IsTerminal(os.Stderr.Fd())
}

// initializeLogging is the PersistentPreRunE logging hook. It creates the
// vigil directories and starts file logging with the configured levels.
func initializeLogging(cmd *cobra.Command, args []string) error {
	if err := ensureDirectories(); err != nil {
		return err
	}

	c := currentConfig()
	path := c.Logging.Path
	if path == "" {
		path = config.DefaultLogPath()
	}

	return logging.Init(logging.Config{
		Level:        c.Logging.Level,
		Path:         path,
		Rotation:     parseRotationConfig(c.Logging.Rotation),
		Components:   c.Logging.Components,
		ConsoleLevel: consoleLevel(cmd),
		TUIMode:      progressEnabled(cmd),
	})
}
