package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"hostelcare/internal/models"
)

// RequestsCSV writes the report columns plus the request id and timestamps in
// RFC 3339.
func RequestsCSV(w io.Writer, requests []models.MaintenanceRequest) error {
	writer := csv.NewWriter(w)
	header := []string{"request_id"}
	for _, col := range columns {
		header = append(header, col.title)
	}
	header = append(header, "Progress", "Created At")
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, request := range requests {
		row := []string{request.DisplayID()}
		for _, col := range columns {
			row = append(row, col.value(request))
		}
		created := ""
		if !request.CreatedAt.IsZero() {
			created = request.CreatedAt.UTC().Format(time.RFC3339)
		}
		row = append(row, strconv.Itoa(request.Progress), created)
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
