package docgen

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docket/internal/blob"
	"docket/internal/models"
)

func sampleRecord() Record {
	qcDate := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	return Record{
		History: models.ItemHistory{
			ItemFullID:  "NUM-1-2",
			ItemTitle:   "Pump <inspection>",
			ItemContent: "line one\nline two",
			Version:     3,
			ChangeType:  models.ChangeUpdate,
		},
		ProjectTitle:   "Numbering",
		SubmitterName:  "editor",
		SubmissionDate: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		QCNote:         models.DefaultApprovalNote,
		QCDate:         &qcDate,
		QCUser:         "qc-user",
	}
}

func TestRenderHTML_EscapesAndIncludesSignOff(t *testing.T) {
	html, err := RenderHTML(sampleRecord())
	require.NoError(t, err)

	assert.Contains(t, html, "NUM-1-2 Pump &lt;inspection&gt;")
	assert.Contains(t, html, "<p>line one</p>")
	assert.Contains(t, html, "<p>line two</p>")
	assert.Contains(t, html, "2026-03-02 09:30")
	assert.Contains(t, html, "qc-user")
	assert.NotContains(t, html, "<inspection>")
}

func TestPDFGenerator_StoresRenderedDocument(t *testing.T) {
	store := blob.NewMemory()
	var seenHTML string
	gen := NewPDFGenerator(store, WithRenderer(func(_ context.Context, html string) ([]byte, error) {
		seenHTML = html
		return []byte("%PDF-1.7 fake"), nil
	}))
	gen.now = func() time.Time { return time.UnixMilli(1700000000000) }

	key, err := gen.Generate(context.Background(), sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, "qc-documents/NUM-1-2/v3_1700000000000.pdf", key)
	assert.Contains(t, seenHTML, "Numbering")

	info, rc, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF-1.7 fake", string(body))
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.Equal(t, "3", info.Metadata["version"])
}

func TestPDFGenerator_RenderFailure(t *testing.T) {
	store := blob.NewMemory()
	gen := NewPDFGenerator(store, WithRenderer(func(context.Context, string) ([]byte, error) {
		return nil, ErrChromeMissing
	}))

	_, err := gen.Generate(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChromeMissing))

	list, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDocumentKey_SanitizesFullID(t *testing.T) {
	key := DocumentKey(models.ItemHistory{ItemFullID: "A B/1", Version: 1}, time.UnixMilli(5))
	assert.Equal(t, "qc-documents/A_B_1/v1_5.pdf", key)
}

func TestDataURLEscape(t *testing.T) {
	got := dataURLEscape("a b<é")
	assert.Equal(t, "a%20b%3C%C3%A9", got)
	assert.False(t, strings.Contains(got, "+"))
}
