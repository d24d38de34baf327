package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		file     File
		wantType string
		want     string
	}{
		{
			name:     "plain text",
			file:     File{Name: "notes.txt", MediaType: "text/plain", Data: []byte("hello")},
			wantType: "text/plain",
			want:     "hello",
		},
		{
			name:     "csv with charset",
			file:     File{Name: "data.csv", MediaType: "text/csv; charset=utf-8", Data: []byte("a,b\n1,2")},
			wantType: "text/csv",
			want:     "a,b\n1,2",
		},
		{
			name:     "json",
			file:     File{Name: "x.json", MediaType: "application/json", Data: []byte(`{"k":1}`)},
			wantType: "application/json",
			want:     `{"k":1}`,
		},
		{
			name:     "pdf",
			file:     File{Name: "report.pdf", MediaType: "application/pdf", Data: make([]byte, 1234)},
			wantType: "application/pdf",
			want:     "[PDF file: report.pdf, 1234 bytes]",
		},
		{
			name:     "image",
			file:     File{Name: "cat.png", MediaType: "image/png", Data: make([]byte, 10)},
			wantType: "image/png",
			want:     "[Image file: cat.png, 10 bytes]",
		},
		{
			name:     "unsupported",
			file:     File{Name: "a.zip", MediaType: "application/zip", Data: []byte("PK")},
			wantType: "application/zip",
			want:     "[Unsupported file type: application/zip]",
		},
		{
			name:     "detected text",
			file:     File{Name: "readme", Data: []byte("just some words\n")},
			wantType: "text/plain",
			want:     "just some words\n",
		},
		{
			name:     "detected pdf",
			file:     File{Name: "doc", Data: []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")},
			wantType: "application/pdf",
			want:     "[PDF file: doc, 15 bytes]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.file)
			assert.Equal(t, tt.file.Name, got.Name)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.want, got.Summary)
		})
	}
}

func TestSummarize_Truncates(t *testing.T) {
	data := []byte(strings.Repeat("a", MaxTextBytes+500))
	got := Summarize(File{Name: "big.txt", MediaType: "text/plain", Data: data})

	assert.True(t, strings.HasSuffix(got.Summary, "[truncated]"))
	assert.Equal(t, strings.Repeat("a", MaxTextBytes), strings.TrimSuffix(got.Summary, truncatedMarker))
}

func TestSummarize_TruncatesOnRuneBoundary(t *testing.T) {
	// 3-byte runes: the limit falls inside the 3334th rune.
	data := []byte(strings.Repeat("€", MaxTextBytes/3+10))
	got := Summarize(File{Name: "euro.txt", MediaType: "text/plain", Data: data})

	body := strings.TrimSuffix(got.Summary, truncatedMarker)
	assert.True(t, utf8.ValidString(body))
	assert.LessOrEqual(t, len(body), MaxTextBytes)
	assert.Greater(t, len(body), MaxTextBytes-3)
}

func TestLoad_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt", "f.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("contents of "+name), 0o644))
		paths = append(paths, p)
	}

	files := FromPaths(paths)
	files = append(files, File{Name: "inline.json", MediaType: "application/json", Data: []byte(`[]`)})

	got, err := Load(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, got, 7)

	for i, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt", "f.txt"} {
		assert.Equal(t, name, got[i].Name)
		assert.Equal(t, "contents of "+name, got[i].Summary)
	}
	assert.Equal(t, "[]", got[6].Summary)
}

func TestLoad_MissingFile(t *testing.T) {
	files := FromPaths([]string{filepath.Join(t.TempDir(), "missing.txt")})

	_, err := Load(context.Background(), files)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_Empty(t *testing.T) {
	got, err := Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
