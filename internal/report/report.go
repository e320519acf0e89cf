// Package report exports initiative data as xlsx workbooks.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/kingrea/opex/internal/domain"
)

const (
	MonitoringSheet = "Monitoring"
	TimelineSheet   = "Timeline"
	defaultSheet    = "Sheet1"
)

// MonitoringHeaders are the columns of the monitoring sheet.
var MonitoringHeaders = []string{
	"Month", "KPI", "Target", "Achieved", "Deviation", "Deviation %",
	"Finalized", "F&A Approved", "F&A Comments", "Remarks",
}

// TimelineHeaders are the columns of the timeline sheet.
var TimelineHeaders = []string{
	"Task", "Planned Start", "Planned End", "Actual Start", "Actual End",
	"Status", "Responsible", "Completed", "Remarks",
}

// WriteMonitoring writes a workbook with one row per monitoring entry and
// a totals row.
func WriteMonitoring(w io.Writer, entries []domain.MonitoringEntry) error {
	rows := make([][]any, 0, len(entries)+1)
	var target, achieved, deviation float64
	for _, entry := range entries {
		target += entry.TargetValue
		achieved += entry.AchievedValue
		deviation += entry.DeviationValue()
		rows = append(rows, []any{
			entry.MonitoringMonth,
			entry.KPIDescription,
			entry.TargetValue,
			entry.AchievedValue,
			entry.DeviationValue(),
			entry.DeviationPct(),
			entry.IsFinalized.Wire(),
			entry.FAApproval.Wire(),
			entry.FAComments,
			entry.Remarks,
		})
	}
	rows = append(rows, []any{"Total", "", target, achieved, deviation, domain.Percent(deviation, target)})
	return write(w, MonitoringSheet, MonitoringHeaders, rows, true)
}

// WriteTimeline writes a workbook with one row per timeline entry.
func WriteTimeline(w io.Writer, entries []domain.TimelineEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, entry := range entries {
		completed := domain.YesNo(entry.Done())
		rows = append(rows, []any{
			entry.StageName,
			entry.PlannedStartDate.String(),
			entry.PlannedEndDate.String(),
			entry.ActualStartDate.String(),
			entry.ActualEndDate.String(),
			entry.Status,
			entry.ResponsiblePerson,
			completed.Wire(),
			entry.Remarks,
		})
	}
	return write(w, TimelineSheet, TimelineHeaders, rows, false)
}

func write(w io.Writer, sheet string, headers []string, rows [][]any, totals bool) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("report: create sheet %s: %w", sheet, err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("report: remove default sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, toAny(headers)); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6E6FA"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("report: header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("report: apply header style: %w", err)
	}

	for i, values := range rows {
		if err := setRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}
	if totals && len(rows) > 0 {
		last := len(rows) + 1
		totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return fmt.Errorf("report: totals style: %w", err)
		}
		if err := f.SetRowStyle(sheet, last, last, totalStyle); err != nil {
			return fmt.Errorf("report: apply totals style: %w", err)
		}
	}

	last, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return fmt.Errorf("report: column name: %w", err)
	}
	if err := f.SetColWidth(sheet, "A", last, 16); err != nil {
		return fmt.Errorf("report: column width: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("report: cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("report: set %s: %w", cell, err)
		}
	}
	return nil
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = value
	}
	return out
}
