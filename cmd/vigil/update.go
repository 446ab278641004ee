package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/vigil/pkg/vigil/report"
)

var updateCmd = &cobra.Command{
	Use:   "update <path>",
	Short: "Accept the current state of a directory tree",
	Long: `Re-digest every file under path and replace the manifest with the result.

Use update after intended changes so later checks compare against them.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationProgress: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, report.CommandUpdate, args[0], "")
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
