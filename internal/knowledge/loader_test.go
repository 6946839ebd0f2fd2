package knowledge

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleKB = `{"id": "1", "title": "Spread", "canonical_answer": "Dengue spreads via Aedes mosquito bites.", "question_variants": ["how does dengue spread", "is dengue contagious"], "sources": ["WHO"]}

{"kb_id": 42, "title": "Out of scope", "canonical_answer": "I can only help with dengue.", "tags": ["out_of_scope"]}
{"id": "3", "title": "Warning signs", "answer": "Seek care if you see bleeding.", "urgency": "urgent"}
`

func TestReadJSONL(t *testing.T) {
	entries, err := ReadJSONL(strings.NewReader(sampleKB))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "1", entries[0].ID)
	assert.Equal(t, []string{"how does dengue spread", "is dengue contagious"}, entries[0].Variants())
	assert.Equal(t, UrgencyNonUrgent, entries[0].EffectiveUrgency())

	assert.Equal(t, "42", entries[1].ID, "numeric kb_id is rendered in decimal")
	assert.True(t, entries[1].HasTag(TagOutOfScope))
	assert.Equal(t, []string{"Out of scope"}, entries[1].Variants(), "title is the sole variant")

	assert.Equal(t, "Seek care if you see bleeding.", entries[2].CanonicalAnswer, "answer is accepted as canonical_answer")
	assert.Equal(t, UrgencyUrgent, entries[2].EffectiveUrgency())
}

func TestReadJSONL_MalformedLine(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"id\": \"1\"}\n{not json}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestWriteJSONL_RoundTrip(t *testing.T) {
	entries, err := ReadJSONL(strings.NewReader(sampleKB))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSONL(&buf, entries))

	again, err := ReadJSONL(&buf)
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestEntryValidate(t *testing.T) {
	tests := []struct {
		name    string
		entry   Entry
		wantErr string
	}{
		{
			name:  "valid with variants",
			entry: Entry{ID: "1", CanonicalAnswer: "a", QuestionVariants: []string{"q"}},
		},
		{
			name:  "valid with title only",
			entry: Entry{ID: "1", Title: "t", CanonicalAnswer: "a"},
		},
		{
			name:    "missing id",
			entry:   Entry{Title: "t", CanonicalAnswer: "a"},
			wantErr: "ID",
		},
		{
			name:    "missing answer",
			entry:   Entry{ID: "1", Title: "t"},
			wantErr: "CanonicalAnswer",
		},
		{
			name:    "bad urgency",
			entry:   Entry{ID: "1", Title: "t", CanonicalAnswer: "a", Urgency: "soon"},
			wantErr: "Urgency",
		},
		{
			name:    "empty variant",
			entry:   Entry{ID: "1", CanonicalAnswer: "a", QuestionVariants: []string{"q", ""}},
			wantErr: "QuestionVariants",
		},
		{
			name:    "no title and no variants",
			entry:   Entry{ID: "1", CanonicalAnswer: "a"},
			wantErr: "title",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidEntry)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewCatalog(t *testing.T) {
	t.Run("duplicate ids rejected", func(t *testing.T) {
		_, err := NewCatalog([]Entry{
			{ID: "1", Title: "a", CanonicalAnswer: "a"},
			{ID: "1", Title: "b", CanonicalAnswer: "b"},
		})
		require.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("lookup and counts", func(t *testing.T) {
		entries, err := ReadJSONL(strings.NewReader(sampleKB))
		require.NoError(t, err)
		c, err := NewCatalog(entries)
		require.NoError(t, err)

		assert.Equal(t, 3, c.Len())
		assert.Equal(t, 4, c.VariantCount())

		e, ok := c.Get("42")
		require.True(t, ok)
		assert.Equal(t, "Out of scope", e.Title)

		_, ok = c.Get("missing")
		assert.False(t, ok)

		require.NoError(t, c.Add(Entry{ID: "4", Title: "new", CanonicalAnswer: "x"}))
		assert.Equal(t, 4, c.Len())
		assert.Equal(t, "4", c.Entries()[3].ID)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("jsonl", func(t *testing.T) {
		path := filepath.Join(dir, "kb.jsonl")
		require.NoError(t, os.WriteFile(path, []byte(sampleKB), 0o600))

		c, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, 3, c.Len())
	})

	t.Run("xlsx", func(t *testing.T) {
		path := filepath.Join(dir, "kb.xlsx")
		f := excelize.NewFile()
		require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{
			"ID", "Title", "Canonical_Answer", "Question_Variants", "Tags", "Sources", "Urgency",
		}))
		require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{
			"1", "Spread", "Dengue spreads via Aedes mosquito bites.",
			"how does dengue spread || is dengue contagious", "", "WHO\nCDC", "",
		}))
		require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{
			"2", "Warning signs", "Go to hospital.", "", "", "", "Urgent",
		}))
		require.NoError(t, f.SaveAs(path))
		require.NoError(t, f.Close())

		c, err := LoadFile(path)
		require.NoError(t, err)
		require.Equal(t, 2, c.Len(), "blank rows are skipped")

		e, ok := c.Get("1")
		require.True(t, ok)
		assert.Equal(t, []string{"how does dengue spread", "is dengue contagious"}, e.QuestionVariants)
		assert.Equal(t, []string{"WHO", "CDC"}, e.Sources)
		assert.Nil(t, e.Tags)

		e, ok = c.Get("2")
		require.True(t, ok)
		assert.Equal(t, UrgencyUrgent, e.Urgency)
		assert.Equal(t, []string{"Warning signs"}, e.Variants())
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "kb.csv"))
		require.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.jsonl"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}
