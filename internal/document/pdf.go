package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser PDF文档解析器
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse 解析PDF文件并提取其文本内容
// pdfcpu导出每页的内容流，再从文本绘制操作符中取出字符串
func (p *PDFParser) Parse(filePath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "pdfcpu_extract_")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract content from PDF: %w", err)
	}

	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted content dir: %w", err)
	}

	// 按文件名排序（页码顺序）
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var pages []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, e.Name()))
		if err != nil {
			return "", fmt.Errorf("failed to read page content %s: %w", e.Name(), err)
		}
		if text := strings.TrimSpace(extractStreamText(string(data))); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("no text content found in PDF")
	}
	return strings.Join(pages, "\n\n"), nil
}

// extractStreamText 从PDF内容流中提取字符串字面量
// 处理 (..) Tj、[(..) ..] TJ 以及 T*、Td 等换行操作
func extractStreamText(stream string) string {
	var b strings.Builder
	inText := false
	depth := 0
	escaped := false

	for i := 0; i < len(stream); i++ {
		c := stream[i]
		if depth > 0 {
			switch {
			case escaped:
				escaped = false
				switch c {
				case 'n':
					b.WriteByte('\n')
				case 'r', 't':
					b.WriteByte(' ')
				default:
					b.WriteByte(c)
				}
			case c == '\\':
				escaped = true
			case c == '(':
				depth++
				b.WriteByte(c)
			case c == ')':
				depth--
				if depth > 0 {
					b.WriteByte(c)
				}
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch {
		case c == '(' && inText:
			depth = 1
		case strings.HasPrefix(stream[i:], "BT"):
			inText = true
			i++
		case strings.HasPrefix(stream[i:], "ET"):
			inText = false
			b.WriteByte('\n')
			i++
		case inText && (strings.HasPrefix(stream[i:], "T*") || strings.HasPrefix(stream[i:], "Td") || strings.HasPrefix(stream[i:], "TD")):
			b.WriteByte('\n')
			i++
		}
	}

	return normalizeWhitespace(b.String())
}
