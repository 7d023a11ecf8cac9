package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/dqcheck/internal/models"
	"github.com/xhad/dqcheck/pkg/audit"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stageBar renders pipeline progress. On a terminal it draws a bar;
// otherwise it prints one line per stage change.
type stageBar struct {
	w         io.Writer
	bar       *progressbar.ProgressBar
	lastStage models.Stage
}

func newStageBar(w io.Writer) *stageBar {
	b := &stageBar{w: w}
	if isTerminal(w) {
		b.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(color.BlueString("Starting...")),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	return b
}

func (b *stageBar) OnStageChanged(state models.PipelineState) {
	if b.bar == nil {
		if state.Stage != b.lastStage {
			fmt.Fprintf(b.w, "[%3.0f%%] %s\n", state.Progress, state.Stage)
		}
		b.lastStage = state.Stage
		return
	}
	b.bar.Describe(color.BlueString("%-13s", state.Stage))
	_ = b.bar.Set(int(state.Progress))
}

func (b *stageBar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
		fmt.Fprintln(b.w)
	}
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range r {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft, WidthMax: 60})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 80:
		return color.New(color.FgGreen, color.Bold)
	case score >= 50:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func statusText(status models.Status) string {
	switch status {
	case models.StatusPass:
		return color.GreenString(string(status))
	case models.StatusFail:
		return color.RedString(string(status))
	default:
		return color.YellowString(string(status))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func printReport(w io.Writer, rep *models.ComplianceReport, reportDir string) {
	oc := rep.OverallCompliance
	fmt.Fprintf(w, "\n%s %s\n", color.New(color.Bold).Sprint("Document:"), rep.Document.Filename)
	fmt.Fprintf(w, "%s %s  (%d passed, %d failed, %d partial of %d)\n",
		color.New(color.Bold).Sprint("Score:"),
		scoreColor(oc.Score).Sprintf("%.1f%%", oc.Score),
		oc.Passed, oc.Failed, oc.Partial, oc.TotalItems)
	fmt.Fprintf(w, "\n%s\n\n", rep.ExecutiveSummary)

	rows := make([][]string, 0, len(rep.Findings))
	for _, f := range rep.Findings {
		rows = append(rows, []string{
			f.ItemID,
			statusText(f.Status),
			string(f.RiskLevel),
			fmt.Sprintf("%.2f", f.Confidence),
			truncate(f.Justification, 80),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Item", "Status", "Risk", "Confidence", "Justification"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))

	if len(rep.Recommendations) > 0 {
		fmt.Fprintln(w, color.New(color.Bold).Sprint("\nRecommendations"))
		for _, r := range rep.Recommendations {
			fmt.Fprintf(w, "  %d. [%s] %s: %s\n", r.Priority, r.RiskImpact, r.ItemID, r.Action)
		}
	}

	a := rep.Audit
	fmt.Fprintf(w, "\nReport %s  mode=%s  tokens=%d  time=%.2fs\n",
		rep.ReportID, a.EvaluationMode, a.TotalTokensUsed, a.ProcessingTimeSeconds)
	if reportDir != "" {
		fmt.Fprintf(w, "Saved to %s\n", reportDir)
	}
}

func printAuditEntries(w io.Writer, entries []audit.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No audit records.")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			e.EvaluationID,
			truncate(e.Filename, 40),
			e.DocID,
			fmt.Sprintf("%.1f%%", e.Score),
			fmt.Sprintf("%d/%d/%d", e.Passed, e.Failed, e.Partial),
			e.UserID,
			fmt.Sprintf("%d", e.TotalTokens),
		})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"Time", "Report", "File", "Doc", "Score", "P/F/Part", "User", "Tokens"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignRight},
	))
}
