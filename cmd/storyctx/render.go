package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	agentctx "github.com/easyops/storyctx/pkg/context"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	partialStyle = cellStyle.Foreground(lipgloss.Color("214"))
	droppedStyle = cellStyle.Foreground(lipgloss.Color("241"))
	errorStyle   = cellStyle.Foreground(lipgloss.Color("196"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	totalsStyle  = lipgloss.NewStyle().Bold(true)
)

// 分配表中每个组件的状态
const (
	statusFull     = "full"
	statusPartial  = "partial"
	statusDropped  = "dropped"
	statusEmpty    = "empty"
	statusDisabled = "disabled"
	statusFailed   = "failed"
)

// renderTable 渲染带表头的表格
func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// componentStatus 归纳一个组件在本次运行中的结果
func componentStatus(cfg agentctx.BudgetConfig, o agentctx.Output) string {
	switch {
	case !cfg.Component(o.Name).Enabled:
		return statusDisabled
	case o.PredictErr != nil:
		return statusFailed
	case o.Predicted == 0:
		return statusEmpty
	case o.Allowance == 0:
		return statusDropped
	case o.Partial:
		return statusPartial
	default:
		return statusFull
	}
}

// renderAllocation 渲染一次运行的分配表和汇总行
func renderAllocation(cfg agentctx.BudgetConfig, report *agentctx.RunReport) string {
	headers := []string{"COMPONENT", "SLOT", "STICKY", "MAX", "PREDICTED", "ALLOWANCE", "STATUS"}
	rows := make([][]string, 0, len(report.Outputs))
	statuses := make([]string, 0, len(report.Outputs))
	for _, o := range report.Outputs {
		cc := cfg.Component(o.Name)
		status := componentStatus(cfg, o)
		statuses = append(statuses, status)

		detail := status
		if o.PredictErr != nil {
			detail = status + ": " + o.PredictErr.Error()
		} else if o.PublishErr != nil {
			detail = status + " (publish: " + o.PublishErr.Error() + ")"
		}
		sticky := ""
		if cc.Sticky {
			sticky = "yes"
		}
		rows = append(rows, []string{
			string(o.Name),
			fmt.Sprintf("%s@%s", o.Slot.Key, slotPlacement(o.Slot)),
			sticky,
			strconv.Itoa(cc.MaxTokens),
			strconv.Itoa(o.Predicted),
			strconv.Itoa(o.Allowance),
			detail,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(statuses) {
				return cellStyle
			}
			switch statuses[row] {
			case statusPartial:
				return partialStyle
			case statusDropped, statusDisabled, statusEmpty:
				return droppedStyle
			case statusFailed:
				return errorStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	var b strings.Builder
	b.WriteString(t.String())
	b.WriteString("\n")
	b.WriteString(totalsStyle.Render(fmt.Sprintf("limit %d  allocated %d  remaining %d",
		report.Allocation.Limit, report.Allocation.TotalAllocated, report.Allocation.Remaining)))
	return b.String()
}

func slotPlacement(slot agentctx.Slot) string {
	if slot.Position == agentctx.PositionInChat {
		return fmt.Sprintf("%s:%d", slot.Position, slot.Depth)
	}
	return string(slot.Position)
}
