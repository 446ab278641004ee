package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/vigil/pkg/vigil/report"
)

var initCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Record the current state of a directory tree",
	Long: `Digest every file under path and store the results in the manifest.

If a manifest already exists it is replaced; the previous generation is
kept next to it with the backup suffix (default .bak).`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationProgress: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, report.CommandInit, args[0], "")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
