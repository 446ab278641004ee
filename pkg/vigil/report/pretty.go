package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// PrettyFormatter renders the report with lipgloss styling for terminals.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Report) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	if r.IsCheck() {
		w.WriteString(f.formatResults(r))
	}
	w.WriteString(f.formatList("Missing", ErrorStyle, r.Missing))
	w.WriteString(f.formatList("Untracked", WarningStyle, r.Untracked))

	if len(r.Skipped) > 0 {
		lines := make([]string, 0, len(r.Skipped))
		for _, s := range r.Skipped {
			lines = append(lines, fmt.Sprintf("%s %s", s.Path, MutedStyle.Render("("+s.Kind.String()+")")))
		}
		w.WriteString(f.formatList("Skipped", WarningStyle, lines))
	}

	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Report) string {
	title := "Integrity check"
	if !r.IsCheck() {
		title = "Manifest " + string(r.Command)
	}
	lines := []string{
		TitleStyle.Render(title),
		fmt.Sprintf("%s %s", LabelStyle.Render("Root:"), ValueStyle.Render(r.Root)),
		fmt.Sprintf("%s %s", LabelStyle.Render("Manifest:"), ValueStyle.Render(r.Manifest)),
		fmt.Sprintf("%s %s  %s %s",
			LabelStyle.Render("Generated:"), ValueStyle.Render(r.GeneratedAt.Format(time.RFC3339)),
			LabelStyle.Render("Took:"), ValueStyle.Render(formatDuration(r.Duration))),
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatResults(r *Report) string {
	if len(r.Results) == 0 {
		return MutedStyle.Render("  No tracked files under this root") + "\n"
	}

	var sb strings.Builder
	for _, res := range r.Results {
		if !res.Modified {
			sb.WriteString(fmt.Sprintf("  %s  %s\n", SuccessStyle.Render("ok      "), PathStyle.Render(res.Path)))
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s  %s\n", ErrorStyle.Bold(true).Render("modified"), PathStyle.Render(res.Path)))
		if res.SizeChanged {
			sb.WriteString(fmt.Sprintf("            %s %s -> %s\n", LabelStyle.Render("size"),
				SizeStyle.Render(humanize.IBytes(uint64(res.Stored.Size))),
				SizeStyle.Render(humanize.IBytes(uint64(res.Current.Size)))))
		}
		if res.MtimeChanged {
			sb.WriteString(fmt.Sprintf("            %s %s -> %s\n", LabelStyle.Render("mtime"),
				ValueStyle.Render(res.Stored.ModifiedTime.Format(time.RFC3339)),
				ValueStyle.Render(res.Current.ModifiedTime.Format(time.RFC3339))))
		}
		sb.WriteString(fmt.Sprintf("            %s %s\n", LabelStyle.Render("was"), DigestStyle.Render(res.Stored.Digest)))
		sb.WriteString(fmt.Sprintf("            %s %s\n", LabelStyle.Render("now"), DigestStyle.Render(res.Current.Digest)))
	}
	return sb.String()
}

func (f *PrettyFormatter) formatList(title string, style lipgloss.Style, items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(SectionHeader.Render(fmt.Sprintf("%s (%d)", title, len(items))))
	sb.WriteString("\n")
	for _, item := range items {
		sb.WriteString("  ")
		sb.WriteString(style.Render(item))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Report) string {
	var parts []string
	if r.IsCheck() {
		modified := r.ModifiedCount()
		modifiedValue := SuccessStyle.Render("0")
		if modified > 0 {
			modifiedValue = ErrorStyle.Bold(true).Render(fmt.Sprintf("%d", modified))
		}
		parts = append(parts,
			fmt.Sprintf("%s %s", LabelStyle.Render("Checked:"), ValueStyle.Render(humanize.Comma(int64(r.Checked())))),
			fmt.Sprintf("%s %s", LabelStyle.Render("Modified:"), modifiedValue),
		)
	} else {
		parts = append(parts,
			fmt.Sprintf("%s %s", LabelStyle.Render("Recorded:"), ValueStyle.Render(humanize.Comma(int64(r.Recorded)))),
			fmt.Sprintf("%s %s", LabelStyle.Render("Total:"), SizeStyle.Render(humanize.IBytes(uint64(r.RecordedSize)))),
		)
	}
	if len(r.Skipped) > 0 {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Skipped:"), WarningStyle.Render(fmt.Sprintf("%d", len(r.Skipped)))))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

var _ Formatter = (*PrettyFormatter)(nil)
