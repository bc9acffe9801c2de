package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
)

func sampleRows(n int) []attendance.ReportRow {
	base := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	rows := make([]attendance.ReportRow, 0, n)
	for i := 0; i < n; i++ {
		in := base.Add(time.Duration(i) * time.Minute)
		out := in.Add(9 * time.Hour)
		rows = append(rows, attendance.ReportRow{
			EmployeeID: "emp-1",
			FullName:   "Alice Example",
			Program:    "Engineering",
			Day:        in.Format(attendance.DayLayout),
			CheckIn:    in,
			CheckOut:   &out,
		})
	}
	return rows
}

func TestRenderPDF(t *testing.T) {
	out, err := RenderPDF(sampleRows(3), time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")), "output should be a PDF document")
}

func TestRenderPDFEmpty(t *testing.T) {
	out, err := RenderPDF(nil, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderPDFPaginates(t *testing.T) {
	small, err := RenderPDF(sampleRows(3), time.Now())
	require.NoError(t, err)
	large, err := RenderPDF(sampleRows(120), time.Now())
	require.NoError(t, err)
	assert.Greater(t, len(large), len(small))
}

func TestRenderPDFMissingCheckout(t *testing.T) {
	rows := sampleRows(1)
	rows[0].CheckOut = nil
	_, err := RenderPDF(rows, time.Now())
	require.NoError(t, err)
}
