package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/interest-enricher/internal/model"
)

const (
	timeLayout = "2006-01-02 15:04"
	cellGap    = 2
)

// table lays out rows in aligned columns. Cells may carry ANSI styling.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render() string {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style.Width(widths[i] + cellGap).Render(cell)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	var b strings.Builder
	b.WriteString(line(t.header, BoldStyle))
	b.WriteString("\n")
	total := 0
	for _, w := range widths {
		total += w + cellGap
	}
	b.WriteString(SubtleStyle.Render(strings.Repeat("─", total)))
	for _, row := range t.rows {
		b.WriteString("\n")
		b.WriteString(line(row, lipgloss.NewStyle()))
	}
	return b.String()
}

// RenderJobs writes a job listing.
func RenderJobs(w io.Writer, jobs []model.Job) error {
	if len(jobs) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No jobs found"))
		return err
	}

	t := &table{header: []string{"ID", "NAME", "KIND", "STATUS", "CREATED"}}
	for _, j := range jobs {
		t.add(j.ID, j.Name, string(j.Kind),
			JobStatusStyle(j.Status).Render(string(j.Status)),
			j.CreatedAt.Local().Format(timeLayout))
	}
	_, err := fmt.Fprintln(w, t.render())
	return err
}

// RenderItems writes the items of a job.
func RenderItems(w io.Writer, items []model.Item) error {
	t := &table{header: []string{"#", "ID", "LABEL", "STATUS", "RETRIES"}}
	for _, it := range items {
		t.add(fmt.Sprintf("%d", it.Position), it.ID, it.Label,
			ItemStatusStyle(it.Status).Render(string(it.Status)),
			fmt.Sprintf("%d", it.RetryCount))
	}
	_, err := fmt.Fprintln(w, t.render())
	return err
}

// RenderSuggestions writes the ranked suggestions of an item.
func RenderSuggestions(w io.Writer, suggestions []model.Suggestion) error {
	if len(suggestions) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No suggestions"))
		return err
	}

	t := &table{header: []string{"", "ID", "LABEL", "PATH", "AUDIENCE", "SCORE"}}
	for _, s := range suggestions {
		mark := ""
		switch {
		case s.IsSelectedByUser:
			mark = SuccessStyle.Render(SuccessIcon)
		case s.IsBestMatch:
			mark = WarningStyle.Render(StarIcon)
		}
		t.add(mark, s.ID, s.Label, s.Path,
			fmt.Sprintf("%d", s.Audience),
			fmt.Sprintf("%.2f", s.SimilarityScore))
	}
	_, err := fmt.Fprintln(w, t.render())
	return err
}

// RenderProgress writes a progress summary box.
func RenderProgress(w io.Writer, p *model.Progress) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Status:      %s\n", JobStatusStyle(p.Status).Render(string(p.Status)))
	fmt.Fprintf(&b, "Progress:    %d/%d (%s)\n", p.Current, p.Total, FormatPercent(p.Percentage))
	fmt.Fprintf(&b, "Processed:   %d\n", p.Metrics.Processed)
	fmt.Fprintf(&b, "Failed:      %d\n", p.Metrics.Failed)
	fmt.Fprintf(&b, "Pending:     %d\n", p.Metrics.Pending)
	fmt.Fprintf(&b, "In progress: %d\n", p.Metrics.InProgress)
	fmt.Fprintf(&b, "Suggested:   %d", p.Metrics.WithSuggestions)
	if p.CurrentLabel != nil {
		fmt.Fprintf(&b, "\nCurrent:     %s", *p.CurrentLabel)
	}
	if p.PausedAt != nil {
		fmt.Fprintf(&b, "\nPaused at:   %s", p.PausedAt.Local().Format(timeLayout))
	}

	_, err := fmt.Fprintln(w, RenderBox("Job "+p.JobID, b.String()))
	return err
}
