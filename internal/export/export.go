// Package export writes outbox records and suggestions to CSV or XLSX
// files for review outside the tool.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

// Outbox writes outbox records to a CSV or XLSX file.
func Outbox(records []model.OutboxRecord, path string) error {
	header := []string{"company", "firstname", "lastname", "email", "subject", "status", "sent_at", "error"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		sentAt := ""
		if r.SentAt != nil {
			sentAt = r.SentAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			r.Company, r.Firstname, r.Lastname, r.Email,
			r.Subject, string(r.Status), sentAt, r.ErrorMessage,
		})
	}
	return writeTable(path, header, rows)
}

// Suggestions writes email suggestions to a CSV or XLSX file.
func Suggestions(list []model.SuggestionWithProspect, path string) error {
	header := []string{"company", "firstname", "lastname", "email", "domain", "pattern", "confidence", "status", "notes"}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			s.Company, s.Firstname, s.Lastname, s.Email, s.Domain,
			s.Pattern, fmt.Sprintf("%.2f", s.Confidence), string(s.Status), s.DebugNotes,
		})
	}
	return writeTable(path, header, rows)
}

func writeTable(path string, header []string, rows [][]string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV(path, header, rows)
	case ".xlsx":
		return writeXLSX(path, header, rows)
	}
	return eris.Errorf("export: unsupported file type %q, expected .csv or .xlsx", filepath.Ext(path))
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "export: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush csv")
}

func writeXLSX(path string, header []string, rows [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Export")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	headerRow := sheet.AddRow()
	for _, h := range header {
		headerRow.AddCell().Value = h
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().Value = v
		}
	}
	return eris.Wrap(f.Save(path), "export: save xlsx")
}
