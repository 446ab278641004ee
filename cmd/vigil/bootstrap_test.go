package main

import (
	"os"
	"testing"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/vigil/pkg/vigil/config"
	"github.com/jamesainslie/vigil/pkg/vigil/logging"
)

func TestParseRotationConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    config.RotationConfig
		expected logging.RotationConfig
	}{
		{
			name: "default values",
			input: config.RotationConfig{
				MaxSize:    "10MB",
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024, // 10MB
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
		},
		{
			name: "custom size in gigabytes",
			input: config.RotationConfig{
				MaxSize:    "1G",
				MaxAge:     7,
				MaxBackups: 3,
			},
			expected: logging.RotationConfig{
				MaxSize:    1024 * 1024 * 1024, // 1GB
				MaxAge:     7,
				MaxBackups: 3,
			},
		},
		{
			name: "empty max_size uses default",
			input: config.RotationConfig{
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024, // 10MB default
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
		},
		{
			name: "invalid max_size uses default",
			input: config.RotationConfig{
				MaxSize:    "invalid",
				MaxAge:     21,
				MaxBackups: 4,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024, // 10MB default
				MaxAge:     21,
				MaxBackups: 4,
			},
		},
		{
			name:     "zero max_size uses default",
			input:    config.RotationConfig{MaxSize: "0"},
			expected: logging.RotationConfig{MaxSize: 10 * 1024 * 1024},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseRotationConfig(tt.input)

			if result.MaxSize != tt.expected.MaxSize {
				t.Errorf("MaxSize = %d, want %d", result.MaxSize, tt.expected.MaxSize)
			}
			if result.MaxAge != tt.expected.MaxAge {
				t.Errorf("MaxAge = %d, want %d", result.MaxAge, tt.expected.MaxAge)
			}
			if result.MaxBackups != tt.expected.MaxBackups {
				t.Errorf("MaxBackups = %d, want %d", result.MaxBackups, tt.expected.MaxBackups)
			}
			if result.Daily != tt.expected.Daily {
				t.Errorf("Daily = %v, want %v", result.Daily, tt.expected.Daily)
			}
		})
	}
}

func TestInitializeLoggingEnsuresDirectories(t *testing.T) {
	// XDG data and state paths are resolved once at package init, so only
	// the config directory can be redirected here.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("VIGIL_LOGGING_PATH", "")
	resetCommandState(t)

	if err := initializeLogging(nil, nil); err != nil {
		t.Fatalf("initializeLogging() returned error: %v", err)
	}
	t.Cleanup(func() { _ = logging.Close() })

	configDir, err := config.ConfigDir()
	if err != nil {
		t.Fatalf("failed to get config dir: %v", err)
	}
	for _, dir := range []string{configDir, config.DataDir(), config.StateDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Errorf("directory was not created: %s", dir)
		}
	}
}

func TestConsoleLevel(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default", nil, "warn"},
		{"verbose", []string{"--verbose"}, "debug"},
		{"quiet", []string{"-q"}, ""},
		{"quiet wins", []string{"-q", "-v"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "test"}
			cmd.Flags().BoolP("quiet", "q", false, "")
			cmd.Flags().BoolP("verbose", "v", false, "")
			if err := cmd.Flags().Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			if got := consoleLevel(cmd); got != tt.want {
				t.Errorf("consoleLevel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProgressEnabled(t *testing.T) {
	if progressEnabled(nil) {
		t.Error("progressEnabled(nil) = true")
	}

	plain := &cobra.Command{Use: "history"}
	if progressEnabled(plain) {
		t.Error("commands without the progress annotation must not show progress")
	}

	annotated := &cobra.Command{Use: "check", Annotations: map[string]string{annotationProgress: "true"}}
	annotated.Flags().Bool("no-progress", false, "")
	if err := annotated.Flags().Parse([]string{"--no-progress"}); err != nil {
		t.Fatal(err)
	}
	if progressEnabled(annotated) {
		t.Error("--no-progress must disable progress")
	}
}
