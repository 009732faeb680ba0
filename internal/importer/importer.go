// Package importer loads prospects and messages from CSV or XLSX files
// with flexible, French-or-English column headers.
package importer

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
	"github.com/Rabiegha/b2b-email-campaign/internal/normalize"
)

// Store is the persistence surface the importer needs.
type Store interface {
	CreateProspect(ctx context.Context, p model.Prospect) (*model.Prospect, error)
	CreateMessage(ctx context.Context, m model.Message) (*model.Message, error)
}

// Table is a parsed spreadsheet: one header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable parses a CSV or XLSX file based on its extension.
func ReadTable(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	}
	return nil, eris.Errorf("importer: unsupported file type %q, expected .csv or .xlsx", filepath.Ext(path))
}

func readCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "importer: parse csv")
	}
	if len(records) == 0 {
		return nil, eris.New("importer: empty file")
	}
	return &Table{Header: records[0], Rows: records[1:]}, nil
}

func readXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("importer: no sheets in file")
	}

	sheet := f.Sheets[0]
	var rows [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, eris.New("importer: empty file")
	}
	return &Table{Header: rows[0], Rows: rows[1:]}, nil
}

// Header synonyms accepted per logical column.
var (
	prospectColumns = map[string][]string{
		"firstname": {"firstname", "first_name", "first name", "prenom", "prénom"},
		"lastname":  {"lastname", "last_name", "last name", "nom", "nom de famille"},
		"company":   {"company", "company_name", "entreprise", "societe", "société", "organisation"},
	}
	messageColumns = map[string][]string{
		"company": {"company", "company_name", "entreprise", "societe", "société", "organisation"},
		"subject": {"subject", "objet", "sujet", "titre"},
		"body":    {"body", "body_text", "message", "corps", "contenu", "texte"},
	}
)

// DetectColumns maps logical column names to header indexes. Matching
// is case and accent insensitive.
func DetectColumns(header []string, synonyms map[string][]string) (map[string]int, error) {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalize.CompanyKey(h)
	}

	found := make(map[string]int, len(synonyms))
	var missing []string
	for logical, names := range synonyms {
		idx := -1
		for _, name := range names {
			want := normalize.CompanyKey(name)
			for i, h := range normalized {
				if h == want {
					idx = i
					break
				}
			}
			if idx >= 0 {
				break
			}
		}
		if idx < 0 {
			missing = append(missing, logical)
			continue
		}
		found[logical] = idx
	}
	if len(missing) > 0 {
		return nil, eris.Errorf("importer: missing columns: %s", strings.Join(missing, ", "))
	}
	return found, nil
}

// Stats summarizes an import.
type Stats struct {
	Imported int
	Skipped  int
}

// Importer loads rows into the store.
type Importer struct {
	store Store
}

// New creates an Importer.
func New(s Store) *Importer {
	return &Importer{store: s}
}

// ImportProspects loads a prospect file. Rows with any empty field are
// skipped and counted.
func (im *Importer) ImportProspects(ctx context.Context, path string) (*Stats, error) {
	table, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	cols, err := DetectColumns(table.Header, prospectColumns)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, row := range table.Rows {
		firstname := cellAt(row, cols["firstname"])
		lastname := cellAt(row, cols["lastname"])
		company := cellAt(row, cols["company"])
		if firstname == "" || lastname == "" || company == "" {
			stats.Skipped++
			continue
		}

		_, err := im.store.CreateProspect(ctx, model.Prospect{
			Firstname:  firstname,
			Lastname:   lastname,
			Company:    company,
			CompanyKey: normalize.CompanyKey(company),
		})
		if err != nil {
			return stats, err
		}
		stats.Imported++
	}

	zap.L().Info("prospects imported",
		zap.String("file", filepath.Base(path)),
		zap.Int("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// ImportMessages loads a message file. Rows with an empty company are
// skipped; empty subjects or bodies are kept and flagged later by the
// outbox build.
func (im *Importer) ImportMessages(ctx context.Context, path string) (*Stats, error) {
	table, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	cols, err := DetectColumns(table.Header, messageColumns)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	for _, row := range table.Rows {
		company := cellAt(row, cols["company"])
		if company == "" {
			stats.Skipped++
			continue
		}

		_, err := im.store.CreateMessage(ctx, model.Message{
			Company:    company,
			CompanyKey: normalize.CompanyKey(company),
			Subject:    cellAt(row, cols["subject"]),
			Body:       cellAt(row, cols["body"]),
		})
		if err != nil {
			return stats, err
		}
		stats.Imported++
	}

	zap.L().Info("messages imported",
		zap.String("file", filepath.Base(path)),
		zap.Int("imported", stats.Imported),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

func cellAt(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
