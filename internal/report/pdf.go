package report

import (
	"bytes"
	"time"

	"github.com/jung-kurt/gofpdf"

	"faceattend/internal/attendance"
)

var columns = []struct {
	title string
	width float64
}{
	{"Date", 24},
	{"Employee ID", 30},
	{"Name", 52},
	{"Program", 38},
	{"Check-in", 23},
	{"Check-out", 23},
}

// RenderPDF renders the attendance report as a paginated A4 table.
func RenderPDF(rows []attendance.ReportRow, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "Attendance Report")
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "", 9)
	pdf.Cell(0, 6, "Generated "+generatedAt.Format("2006-01-02 15:04:05"))
	pdf.Ln(10)

	header(pdf)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		if pdf.GetY() > 270 {
			pdf.AddPage()
			header(pdf)
			pdf.SetFont("Helvetica", "", 9)
		}
		checkOut := "-"
		if row.CheckOut != nil {
			checkOut = row.CheckOut.Format("15:04:05")
		}
		cells := []string{
			row.Day,
			row.EmployeeID,
			row.FullName,
			row.Program,
			row.CheckIn.Format("15:04:05"),
			checkOut,
		}
		for i, col := range columns {
			pdf.CellFormat(col.width, 7, cells[i], "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func header(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, col := range columns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}
