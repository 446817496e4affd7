package document

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件并提取文本内容
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown file: %w", err)
	}
	return markdownToText(content), nil
}

// markdownToText 遍历Markdown语法树提取纯文本
// 段落和标题之间保留空行，便于分段器按段落切分
func markdownToText(content []byte) string {
	mdParser := parser.NewWithExtensions(parser.CommonExtensions)
	doc := mdParser.Parse(content)

	var b strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				b.Write(n.Literal)
			}
		case *ast.Code:
			if entering {
				b.Write(n.Literal)
			}
		case *ast.CodeBlock:
			if entering {
				b.Write(n.Literal)
				b.WriteString("\n\n")
			}
		case *ast.Softbreak, *ast.Hardbreak:
			if entering {
				b.WriteString("\n")
			}
		case *ast.ListItem:
			if entering {
				b.WriteString("- ")
			} else {
				b.WriteString("\n")
			}
		case *ast.Paragraph:
			if !entering {
				if _, inList := n.Parent.(*ast.ListItem); !inList {
					b.WriteString("\n\n")
				}
			}
		case *ast.Heading, *ast.List:
			if !entering {
				b.WriteString("\n\n")
			}
		}
		return ast.GoToNext
	})

	return normalizeWhitespace(b.String())
}
