package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	path := filepath.Join(t.TempDir(), "doc"+ext)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func createTempPDF(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "doc.pdf")

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 10, text, "", "", false)
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatalf("Failed to write PDF: %v", err)
	}
	return path
}

func TestPlainTextParser(t *testing.T) {
	file := createTempFile(t, "Hello, this is a plain text file.\nSecond line.", ".txt")

	text, err := NewPlainTextParser().Parse(file)
	require.NoError(t, err)
	assert.Equal(t, "Hello, this is a plain text file.\nSecond line.", text)

	_, err = NewPlainTextParser().Parse(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestMarkdownParser(t *testing.T) {
	content := "# Title\n\nThis is a **markdown** file.\n\n- Item 1\n- Item 2\n\n```\ncode()\n```"
	file := createTempFile(t, content, ".md")

	text, err := NewMarkdownParser().Parse(file)
	require.NoError(t, err)

	assert.Contains(t, text, "Title\n\nThis is a markdown file.")
	assert.Contains(t, text, "- Item 1\n- Item 2")
	assert.Contains(t, text, "code()")
	assert.NotContains(t, text, "**")
	assert.NotContains(t, text, "#")
}

func TestPDFParser(t *testing.T) {
	file := createTempPDF(t, "This is a PDF test.")

	text, err := NewPDFParser().Parse(file)
	require.NoError(t, err)
	assert.Contains(t, text, "PDF test")
}

func TestParserFactory(t *testing.T) {
	tests := []struct {
		file     string
		expected string
	}{
		{createTempFile(t, "plain text", ".txt"), "plain text"},
		{createTempFile(t, "# Markdown", ".md"), "Markdown"},
		{createTempFile(t, "Another heading\n===", ".markdown"), "Another heading"},
		{createTempPDF(t, "PDF content"), "PDF content"},
	}

	for _, tt := range tests {
		parser, err := ParserFactory(tt.file)
		require.NoError(t, err, tt.file)

		text, err := parser.Parse(tt.file)
		require.NoError(t, err, tt.file)
		assert.Contains(t, text, tt.expected)
	}

	_, err := ParserFactory("notes.docx")
	assert.Error(t, err)
}

func TestNormalizeWhitespace(t *testing.T) {
	input := "  first line   \r\nsecond\t\n\n\n\n\nthird  "
	assert.Equal(t, "first line\nsecond\n\nthird", normalizeWhitespace(input))
}

func TestExtractStreamText(t *testing.T) {
	stream := strings.Join([]string{
		"BT /F1 12 Tf 10 800 Td (Hello \\(world\\)) Tj ET",
		"BT 10 780 Td [(Split) -200 ( text)] TJ T* (next) Tj ET",
	}, "\n")

	text := extractStreamText(stream)
	assert.Contains(t, text, "Hello (world)")
	assert.Contains(t, text, "Split text")
	assert.Contains(t, text, "next")
}
