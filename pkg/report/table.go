package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/dispatch"
)

// SuiteTable renders one row per test of a suite.
func SuiteTable(s *core.SuiteResult) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle(s.Name)
	t.AppendHeader(table.Row{"Test", "Status", "Category", "Actions", "Duration"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Actions", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, r := range s.Tests {
		category := ""
		if r.Category != core.ErrCategoryNone {
			category = r.Category.String()
		}
		t.AppendRow(table.Row{
			r.Name,
			statusString(r.Status),
			category,
			fmt.Sprintf("%d/%d", r.ActionsRun, r.ActionsTotal),
			formatDuration(r.Duration),
		})
	}

	t.SetStyle(styleFor(s.AggregateStatus()))
	t.AppendFooter(table.Row{
		"TOTAL",
		statusString(s.AggregateStatus()),
		fmt.Sprintf("%d passed, %d failed", s.PassedTests, s.FailedTests),
		s.TotalTests,
		formatDuration(s.Duration),
	})
	t.Render()
	return buf.String()
}

// DispatchTable renders one row per worker of a dispatch.
func DispatchTable(s *dispatch.Summary) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("Dispatch " + s.CorrelationID)
	t.AppendHeader(table.Row{"Item", "Iteration", "Exit", "Duration", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Item", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Iteration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, r := range s.Results {
		status := "PASS"
		if r.ExitCode != 0 {
			status = "FAIL"
		}
		t.AppendRow(table.Row{
			itemName(r.Assignment),
			r.Assignment.Iteration,
			r.ExitCode,
			formatDuration(r.Duration),
			status,
		})
	}

	overall := core.StatusPassed
	if s.Failed() > 0 {
		overall = core.StatusFailed
	}
	t.SetStyle(styleFor(overall))
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		fmt.Sprintf("%d failed", s.Failed()),
		formatDuration(s.Duration),
		statusString(overall),
	})
	t.Render()
	return buf.String()
}

func styleFor(status core.TestStatus) table.Style {
	switch status {
	case core.StatusPassed:
		return table.StyleColoredBlackOnGreenWhite
	case core.StatusWarned:
		return table.StyleColoredBlackOnYellowWhite
	default:
		return table.StyleColoredBlackOnRedWhite
	}
}

func statusString(s core.TestStatus) string {
	switch s {
	case core.StatusPassed:
		return "PASS"
	case core.StatusWarned:
		return "WARN"
	case core.StatusSkipped:
		return "SKIP"
	case core.StatusErrored:
		return "ERROR"
	default:
		return "FAIL"
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
