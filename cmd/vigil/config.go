package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/vigil/pkg/vigil/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit vigil settings",
	Long: `Inspect and edit vigil settings.

Settings are read from the first file found of:
  1. $XDG_CONFIG_HOME/vigil/config.yaml (if set)
  2. ~/.config/vigil/config.yaml

Environment variables can override config file settings using the VIGIL_ prefix:
  VIGIL_MANIFEST_PATH=/var/lib/vigil/etc.json
  VIGIL_WORKERS=8
  VIGIL_REPORT_FORMAT=json`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long:  `Print the settings after defaults, the config file, VIGIL_ variables and flags are merged.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open the config file in an editor",
	Long: `Open the config file in $VISUAL, else $EDITOR, else vi.

A commented default file is written first when none exists.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Long:  `Write a commented default config file. An existing file is left untouched.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where the config file lives",
	Long:  `Print the config file path, honouring --config.`,
	RunE:  runConfigPath,
}

func init() {
	// Only show needs the configuration; the other subcommands must work
	// while the file is missing or broken.
	configCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd == configShowCmd {
			return preRun(cmd, args)
		}
		return nil
	}

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configFilePath returns --config when given, else the default location.
func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigFile()
}

// runConfigShow displays the effective configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	return showConfig(cmd.OutOrStdout())
}

func showConfig(w io.Writer) error {
	if v == nil {
		return fmt.Errorf("configuration not loaded")
	}

	if used := v.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "Config file: %s\n\n", used)
	} else {
		fmt.Fprintf(w, "Config file: (using defaults, no file found)\n\n")
	}

	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}
	if _, err := w.Write(out); err != nil {
		return err
	}

	fmt.Fprintln(w, "\nEnvironment Overrides:")
	fmt.Fprintln(w, "----------------------")
	overrides := envOverrides()
	if len(overrides) == 0 {
		fmt.Fprintln(w, "(none)")
	}
	for _, kv := range overrides {
		fmt.Fprintln(w, kv)
	}
	return nil
}

// envOverrides returns the VIGIL_ variables present in the environment,
// sorted by name.
func envOverrides() []string {
	var out []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix+"_") {
			out = append(out, kv)
		}
	}
	slices.Sort(out)
	return out
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(cmd *cobra.Command, args []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if _, err := config.WriteDefault(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}
	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	written, err := config.WriteDefault(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if !written {
		printInfo(cmd, "Config file already exists: %s", configPath)
		printInfo(cmd, "Use 'vigil config edit' to modify it.")
		return nil
	}

	printInfo(cmd, "Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), configPath)
	return nil
}
