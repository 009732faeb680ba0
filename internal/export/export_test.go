package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/Rabiegha/b2b-email-campaign/internal/model"
)

func sampleRecords() []model.OutboxRecord {
	sentAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return []model.OutboxRecord{
		{
			Company:   "Acme",
			Firstname: "Jean",
			Lastname:  "Dupont",
			Email:     "jean.dupont@acme.fr",
			Subject:   "Bonjour",
			Status:    model.StatusSent,
			SentAt:    &sentAt,
		},
		{
			Company:      "Beta",
			Firstname:    "Marie",
			Lastname:     "Curie",
			Status:       model.StatusError,
			ErrorMessage: "EMAIL_NOT_FOUND",
		},
	}
}

func TestOutbox_CSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "outbox.csv")
	require.NoError(t, Outbox(sampleRecords(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "company", rows[0][0])
	assert.Equal(t, "jean.dupont@acme.fr", rows[1][3])
	assert.Equal(t, "2026-03-14T09:30:00Z", rows[1][6])
	assert.Equal(t, "EMAIL_NOT_FOUND", rows[2][7])
}

func TestOutbox_XLSX(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "outbox.xlsx")
	require.NoError(t, Outbox(sampleRecords(), path))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	require.Len(t, f.Sheets[0].Rows, 3)

	assert.Equal(t, "SENT", f.Sheets[0].Rows[1].Cells[5].String())
}

func TestSuggestions_CSV(t *testing.T) {
	t.Parallel()

	list := []model.SuggestionWithProspect{
		{
			EmailSuggestion: model.EmailSuggestion{
				Domain:     "acme.fr",
				Pattern:    "first.last",
				Email:      "jean.dupont@acme.fr",
				Confidence: 0.875,
				Status:     model.SuggestionFound,
			},
			Firstname: "Jean",
			Lastname:  "Dupont",
			Company:   "Acme",
		},
	}

	path := filepath.Join(t.TempDir(), "suggestions.csv")
	require.NoError(t, Suggestions(list, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0.88", rows[1][6])
	assert.Equal(t, "FOUND", rows[1][7])
}

func TestWriteTable_UnsupportedExtension(t *testing.T) {
	t.Parallel()

	err := Outbox(nil, filepath.Join(t.TempDir(), "outbox.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}
