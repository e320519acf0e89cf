package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kingrea/opex/internal/domain"
)

func open(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestWriteMonitoringAddsTotals(t *testing.T) {
	entries := []domain.MonitoringEntry{
		{MonitoringMonth: "2026-07", KPIDescription: "Savings", TargetValue: 100, AchievedValue: 80, IsFinalized: true, FAApproval: true, FAComments: "ok"},
		{MonitoringMonth: "2026-08", KPIDescription: "Savings", TargetValue: 100, AchievedValue: 110, IsFinalized: true},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMonitoring(&buf, entries))

	f := open(t, &buf)
	assert.Equal(t, []string{MonitoringSheet}, f.GetSheetList())
	rows, err := f.GetRows(MonitoringSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, MonitoringHeaders, rows[0])
	assert.Equal(t, []string{"2026-07", "Savings", "100", "80", "-20", "-20", "Y", "Y", "ok"}, rows[1])
	assert.Equal(t, []string{"Total", "", "200", "190", "-10", "-5"}, rows[3])

	styleID, err := f.GetCellStyle(MonitoringSheet, "A1")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	require.NotNil(t, style.Font)
	assert.True(t, style.Font.Bold)
}

func TestWriteTimeline(t *testing.T) {
	entries := []domain.TimelineEntry{
		{StageName: "Procurement", PlannedStartDate: domain.NewDate(2026, 7, 1), PlannedEndDate: domain.NewDate(2026, 7, 8), Status: domain.TimelineCompleted},
		{StageName: "Installation", Status: domain.TimelineInProgress, ResponsiblePerson: "Asha"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTimeline(&buf, entries))

	rows, err := open(t, &buf).GetRows(TimelineSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Procurement", "2026-07-01", "2026-07-08", "", "", domain.TimelineCompleted, "", "Y"}, rows[1])
	assert.Equal(t, "N", rows[2][7])
}

func TestWriteMonitoringEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMonitoring(&buf, nil))
	rows, err := open(t, &buf).GetRows(MonitoringSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Total", rows[1][0])
}
