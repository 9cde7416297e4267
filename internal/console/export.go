package console

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nimasrn/intake-gateway/internal/model"
	"github.com/xuri/excelize/v2"
)

// MinExportRows is the smallest selection of read rows that may be exported.
const MinExportRows = 2

const exportSheet = "Submissions"

// JavaScript toISOString layout, kept so exports match the web console.
const exportTimeLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrExportPolicy = fmt.Errorf("export needs at least %d selected submissions that are already read", MinExportRows)

type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
)

func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case FormatCSV, FormatXLSX:
		return ExportFormat(s), nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

var ExportColumns = []string{
	"id", "created_at", "read_at", "source", "subject", "name",
	"email", "phone", "location", "timeline", "message", "page_path",
}

func ExportFileName(f ExportFormat, now time.Time) string {
	return fmt.Sprintf("submissions-read-selected-%s.%s", now.UTC().Format(time.DateOnly), f)
}

// Export writes the exportable rows in format f. Fewer than MinExportRows
// rows is refused with ErrExportPolicy.
func (c *Console) Export(w io.Writer, f ExportFormat) (int, error) {
	c.mu.Lock()
	rows := c.exportableLocked()
	c.mu.Unlock()

	if len(rows) < MinExportRows {
		return 0, ErrExportPolicy
	}
	var err error
	switch f {
	case FormatCSV:
		err = WriteCSV(w, rows)
	case FormatXLSX:
		err = WriteXLSX(w, rows)
	default:
		err = errors.New("unknown export format")
	}
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func exportRecord(s *model.Submission) []string {
	readAt := ""
	if s.ReadAt != nil {
		readAt = s.ReadAt.UTC().Format(exportTimeLayout)
	}
	return []string{
		s.ID,
		s.CreatedAt.UTC().Format(exportTimeLayout),
		readAt,
		s.Source,
		deref(s.Subject),
		deref(s.Name),
		s.Email,
		deref(s.Phone),
		deref(s.Location),
		deref(s.Timeline),
		deref(s.Message),
		deref(s.PagePath),
	}
}

// WriteCSV writes a UTF-8 BOM so spreadsheet apps pick the right encoding.
func WriteCSV(w io.Writer, rows []*model.Submission) error {
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(exportRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, rows []*model.Submission) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}
	if err := setRow(f, 1, ExportColumns); err != nil {
		return err
	}
	for i, r := range rows {
		if err := setRow(f, i+2, exportRecord(r)); err != nil {
			return err
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func setRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return f.SetSheetRow(exportSheet, cell, &vals)
}
