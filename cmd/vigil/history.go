package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/vigil/pkg/vigil/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View run history",
	Long: `View the history of init, check and update runs.

Each run records when it happened, which tree and manifest it used, how
many files it looked at and whether it completed.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific run",
	Long:  `Display a run by its ID. A unique prefix of the ID is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*history.Store, error) {
	store, err := history.Open(currentConfig().HistoryPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return store, nil
}

// runHistory lists recent runs.
func runHistory(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(records) == 0 {
		printInfo(cmd, "No history entries found.")
		printInfo(cmd, "Run 'vigil init <path>' to record a manifest.")
		return nil
	}

	printHistoryTable(cmd.OutOrStdout(), records)
	printInfo(cmd, "\nShowing %d entries. Use --limit to see more.", len(records))
	printInfo(cmd, "Use 'vigil history show <id>' for details on a specific entry.")
	return nil
}

func printHistoryTable(w io.Writer, records []history.Record) {
	fmt.Fprintf(w, "\n%-8s  %-19s  %-7s  %-8s  %-8s  %s\n", "ID", "TIME", "COMMAND", "FILES", "CHANGES", "ROOT")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, rec := range records {
		changes := "-"
		switch {
		case !rec.Succeeded():
			changes = "failed"
		case rec.Command == "check":
			changes = fmt.Sprintf("%d", rec.Modified+rec.Missing+rec.Untracked)
		}
		fmt.Fprintf(w, "%-8s  %-19s  %-7s  %-8d  %-8s  %s\n",
			shortID(rec.ID),
			rec.Time.Local().Format("2006-01-02 15:04:05"),
			rec.Command,
			files(rec),
			changes,
			truncateString(rec.Root, 40),
		)
	}

	fmt.Fprintln(w, strings.Repeat("-", 80))
}

// files is the number of files a run looked at.
func files(rec history.Record) int {
	if rec.Command == "check" {
		return rec.Checked
	}
	return rec.Recorded
}

// runHistoryShow displays details of a specific run.
func runHistoryShow(cmd *cobra.Command, args []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	rec, err := store.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	printHistoryRecord(cmd.OutOrStdout(), rec)
	return nil
}

func printHistoryRecord(w io.Writer, rec history.Record) {
	fmt.Fprintln(w, "\nRun Details")
	fmt.Fprintln(w, strings.Repeat("=", 60))
	fmt.Fprintf(w, "ID:         %s\n", rec.ID)
	fmt.Fprintf(w, "Timestamp:  %s (%s)\n", rec.Time.Local().Format("2006-01-02 15:04:05 MST"), humanize.Time(rec.Time))
	fmt.Fprintf(w, "Command:    %s\n", rec.Command)
	fmt.Fprintf(w, "Root:       %s\n", rec.Root)
	fmt.Fprintf(w, "Manifest:   %s\n", rec.Manifest)
	fmt.Fprintf(w, "Duration:   %s\n", rec.Duration.Round(time.Millisecond))

	if !rec.Succeeded() {
		fmt.Fprintf(w, "Status:     failed\n")
		fmt.Fprintf(w, "Error:      %s\n", rec.Error)
		return
	}

	fmt.Fprintf(w, "Status:     completed\n")
	if rec.Command == "check" {
		fmt.Fprintf(w, "Checked:    %d\n", rec.Checked)
		fmt.Fprintf(w, "Modified:   %d\n", rec.Modified)
		fmt.Fprintf(w, "Missing:    %d\n", rec.Missing)
		fmt.Fprintf(w, "Untracked:  %d\n", rec.Untracked)
	} else {
		fmt.Fprintf(w, "Recorded:   %d\n", rec.Recorded)
	}
	fmt.Fprintf(w, "Skipped:    %d\n", rec.Skipped)
}

// runHistoryClean removes old history entries.
func runHistoryClean(cmd *cobra.Command, args []string) error {
	c := currentConfig()
	days := c.History.RetentionDays
	if days <= 0 {
		days = history.DefaultRetentionDays
	}

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	printInfo(cmd, "Cleaning history entries older than %d days...", days)

	n, err := store.Clean(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo(cmd, "Removed %d entries.", n)
	return nil
}

// shortID returns the leading part of id accepted by history show.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
