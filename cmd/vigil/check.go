package main

import (
	"github.com/spf13/cobra"

	"github.com/jamesainslie/vigil/pkg/vigil/report"
)

var checkCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Compare a directory tree against the manifest",
	Long: `Digest the files recorded in the manifest and report which were modified.

Files that have disappeared and files that are not in the manifest are
listed separately. With --strict they also count as changes.

Exit status is 0 when nothing changed, 2 when changes were found and 1 when
the check could not run, e.g. because the manifest was never initialized.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationProgress: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, report.CommandCheck, args[0], checkReportFile)
	},
}

var checkReportFile string

func init() {
	checkCmd.Flags().StringVar(&checkReportFile, "report", "", "also write the text report to this file")
	rootCmd.AddCommand(checkCmd)
}
