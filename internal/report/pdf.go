// Package report renders maintenance requests as PDF and CSV exports.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"hostelcare/internal/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/skip2/go-qrcode"
)

const (
	DefaultTitle = "Maintenance Report"
	timeLayout   = "2006-01-02 15:04"
)

type column struct {
	title string
	width float64
	value func(models.MaintenanceRequest) string
}

var columns = []column{
	{"Student ID", 20, func(r models.MaintenanceRequest) string { return r.StudentID }},
	{"Name", 26, func(r models.MaintenanceRequest) string { return r.Name }},
	{"Hostel", 26, func(r models.MaintenanceRequest) string { return r.Building }},
	{"Room", 12, func(r models.MaintenanceRequest) string { return r.RoomNo }},
	{"Category", 18, func(r models.MaintenanceRequest) string { return capitalize(r.Category) }},
	{"Priority", 14, func(r models.MaintenanceRequest) string { return capitalize(r.Priority) }},
	{"Status", 18, func(r models.MaintenanceRequest) string { return StatusLabel(r.Status) }},
	{"Assigned To", 20, func(r models.MaintenanceRequest) string { return assigned(r) }},
	{"Submitted", 24, func(r models.MaintenanceRequest) string { return submitted(r) }},
	{"Deleted", 12, func(r models.MaintenanceRequest) string { return yesNo(r.IsDeleted) }},
}

// Filename is the download name of a report generated at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("maintenance-report-%s.pdf", now.UTC().Format("2006-01-02"))
}

// Summary is the one-line count printed above the table. Total includes
// deleted requests; the status counts do not.
func Summary(requests []models.MaintenanceRequest) string {
	var pending, inProgress, completed, deleted int
	for _, r := range requests {
		if r.IsDeleted {
			deleted++
			continue
		}
		switch r.Status {
		case models.StatusPending:
			pending++
		case models.StatusInProgress:
			inProgress++
		case models.StatusCompleted:
			completed++
		}
	}
	return fmt.Sprintf("Total: %d   Pending: %d   In Progress: %d   Completed: %d   Deleted: %d",
		len(requests), pending, inProgress, completed, deleted)
}

// RequestsPDF renders the request table on A4 portrait pages with a page
// counter in the footer.
func RequestsPDF(requests []models.MaintenanceRequest, title string, now time.Time) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	_, pageHeight := pdf.GetPageSize()
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "L", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, "Generated: "+now.UTC().Format(timeLayout)+" UTC", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 7, Summary(requests), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	const rowHeight = 6.0
	tableHeader(pdf)
	pdf.SetFont("Arial", "", 7)
	for i, request := range requests {
		if pdf.GetY()+rowHeight > pageHeight-18 {
			pdf.AddPage()
			tableHeader(pdf)
			pdf.SetFont("Arial", "", 7)
		}
		fill := i%2 == 1
		pdf.SetFillColor(245, 247, 250)
		for _, col := range columns {
			text := fit(pdf, tr, col.value(request), col.width-1.5)
			pdf.CellFormat(col.width, rowHeight, text, "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Arial", "B", 7.5)
	pdf.SetFillColor(37, 99, 235)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range columns {
		pdf.CellFormat(col.width, 7, col.title, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

// RequestSheetPDF is a single-request printout with a QR code pointing at
// statusLink.
func RequestSheetPDF(request models.MaintenanceRequest, statusLink string, now time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 18)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(0, 10, "Maintenance Request "+request.DisplayID(), "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, "Printed: "+now.UTC().Format(timeLayout)+" UTC", "", 1, "L", false, 0, "")
	pdf.Ln(4)

	top := pdf.GetY()
	if statusLink != "" {
		png, err := qrcode.Encode(statusLink, qrcode.Medium, 256)
		if err != nil {
			return nil, fmt.Errorf("encode qr: %w", err)
		}
		options := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: true}
		pdf.RegisterImageOptionsReader("status_qr", options, bytes.NewReader(png))
		pdf.ImageOptions("status_qr", 152, top, 40, 40, false, options, 0, statusLink)
		pdf.SetXY(147, top+41)
		pdf.SetFont("Arial", "", 7)
		pdf.CellFormat(50, 4, "Scan to check status", "", 0, "C", false, 0, "")
		pdf.SetXY(18, top)
	}

	rows := [][2]string{
		{"Name", request.Name},
		{"Student ID", request.StudentID},
		{"Email", request.Email},
		{"Phone", request.Phone},
		{"Hostel", request.Building},
		{"Room", request.RoomNo},
		{"Category", capitalize(request.Category)},
		{"Washroom", request.Washroom},
		{"Priority", capitalize(request.Priority)},
		{"Preferred visit", capitalize(request.VisitTime)},
		{"Status", StatusLabel(request.Status)},
		{"Progress", fmt.Sprintf("%d%%", request.Progress)},
		{"Assigned to", assigned(request)},
		{"Submitted", submitted(request)},
		{"Tags", strings.Join(request.Tags, ", ")},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(36, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(90, 7, fit(pdf, tr, row[1], 88), "", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "Problem", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.MultiCell(0, 5.5, tr(request.Problem), "1", "L", false)

	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(85, 7, "Requester confirmed: "+yesNo(request.RequesterConfirmed), "", 0, "L", false, 0, "")
	pdf.CellFormat(85, 7, "Worker confirmed: "+yesNo(request.WorkerConfirmed), "", 1, "L", false, 0, "")
	pdf.Ln(14)
	pdf.CellFormat(85, 6, "______________________", "", 0, "L", false, 0, "")
	pdf.CellFormat(85, 6, "______________________", "", 1, "L", false, 0, "")
	pdf.CellFormat(85, 6, "Requester signature", "", 0, "L", false, 0, "")
	pdf.CellFormat(85, 6, "Staff signature", "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fit shortens UTF-8 text with an ellipsis until it fits width and returns
// it translated by tr. Cutting happens before translation so a multi-byte
// character is never split.
func fit(pdf *gofpdf.Fpdf, tr func(string) string, text string, width float64) string {
	if pdf.GetStringWidth(tr(text)) <= width {
		return tr(text)
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(tr(string(runes)+"...")) > width {
		runes = runes[:len(runes)-1]
	}
	return tr(string(runes) + "...")
}

func StatusLabel(status string) string {
	if status == models.StatusInProgress {
		return "In Progress"
	}
	return capitalize(status)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func assigned(r models.MaintenanceRequest) string {
	if r.AssignedTo == nil || *r.AssignedTo == "" {
		return "-"
	}
	return *r.AssignedTo
}

func submitted(r models.MaintenanceRequest) string {
	if r.CreatedAt.IsZero() {
		return "-"
	}
	return r.CreatedAt.UTC().Format(timeLayout)
}

func yesNo(value bool) string {
	if value {
		return "Yes"
	}
	return "No"
}
