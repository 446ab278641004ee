package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jamesainslie/vigil/pkg/vigil/config"
)

// errChangesDetected is returned by check when the tree differs from the
// manifest. main turns it into exit status 2 without printing it.
var errChangesDetected = errors.New("changes detected")

// annotationProgress marks commands that may show the progress view.
const annotationProgress = "vigil/progress"

var (
	cfgFile string

	// v and cfg hold the configuration of the running command. They are
	// set by loadConfig before any RunE executes.
	v   *viper.Viper
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "vigil",
		Short: "Detect unexpected changes to files",
		Long: `Vigil records a manifest of file digests for a directory tree and later
reports which files were modified, removed or added.

Examples:
  vigil init /etc                 # Record the current state of /etc
  vigil check /etc                # Compare /etc against the manifest
  vigil check /etc --report r.txt # Also write the text report to r.txt
  vigil update /etc               # Accept the current state
  vigil check -o json /srv        # Machine readable output
  vigil history                   # Past runs`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: preRun,
	}
)

// flagBindings maps persistent flags onto configuration keys.
var flagBindings = map[string]string{
	"manifest":     "manifest.path",
	"output":       "report.format",
	"workers":      "workers",
	"symlinks":     "walker.symlinks",
	"strict":       "report.strict",
	"metrics-file": "metrics.file",
}

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/vigil/config.yaml)")
	flags.StringP("manifest", "m", config.DefaultManifestPath, "manifest file")
	flags.StringP("output", "o", config.DefaultReportFormat, "report format (text, plain, json, yaml, pretty)")
	flags.IntP("workers", "w", 0, "override worker count (0=auto)")
	flags.StringSliceP("exclude", "e", nil, "exclude patterns (can be specified multiple times)")
	flags.String("symlinks", config.DefaultSymlinks, "symlink policy: skip, follow or hash")
	flags.Bool("strict", false, "count missing and untracked files as changes")
	flags.String("metrics-file", "", "write Prometheus textfile metrics to this file")
	flags.Bool("no-history", false, "do not record this run in the history database")
	flags.Bool("no-progress", false, "disable the progress display")
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.BoolP("verbose", "v", false, "debug output")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// preRun loads configuration and starts logging for every subcommand.
func preRun(cmd *cobra.Command, args []string) error {
	if err := loadConfig(cmd); err != nil {
		return err
	}
	return initializeLogging(cmd, args)
}

// loadConfig builds the effective configuration from defaults, the config
// file, the environment and the command line, in increasing precedence.
func loadConfig(cmd *cobra.Command) error {
	nv, err := config.NewViper(cfgFile)
	if err != nil {
		return err
	}
	if err := bindFlags(nv, cmd.Flags()); err != nil {
		return err
	}

	c, err := config.Decode(nv)
	if err != nil {
		return err
	}

	// --exclude adds to the configured patterns instead of replacing them.
	if extra, err := cmd.Flags().GetStringSlice("exclude"); err == nil && len(extra) > 0 {
		c.Walker.Exclude = append(c.Walker.Exclude, extra...)
	}
	if noHistory, _ := cmd.Flags().GetBool("no-history"); noHistory {
		c.History.Enabled = false
	}

	v, cfg = nv, c
	return nil
}

func bindFlags(vp *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagBindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := vp.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// currentConfig returns the loaded configuration, falling back to the
// defaults when no command has loaded one.
func currentConfig() *config.Config {
	if cfg != nil {
		return cfg
	}
	c, err := config.Load(cfgFile)
	if err != nil {
		nv := viper.New()
		config.Defaults(nv)
		c, _ = config.Decode(nv)
	}
	cfg = c
	return cfg
}

func flagBool(cmd *cobra.Command, name string) bool {
	if cmd == nil {
		return false
	}
	b, _ := cmd.Flags().GetBool(name)
	return b
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose(cmd *cobra.Command) bool {
	return flagBool(cmd, "verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet(cmd *cobra.Command) bool {
	return flagBool(cmd, "quiet")
}

// printInfo prints a message to stderr unless quiet mode is enabled.
func printInfo(cmd *cobra.Command, format string, args ...interface{}) {
	if !getQuiet(cmd) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
