package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileLoader 本地文件加载器，支持txt、md、pdf
type FileLoader struct{}

// NewFileLoader 创建本地文件加载器
func NewFileLoader() *FileLoader {
	return &FileLoader{}
}

// Name 返回加载器名称
func (l *FileLoader) Name() string {
	return "file"
}

// Supports 文件存在且扩展名受支持
func (l *FileLoader) Supports(source string) bool {
	if detectContentType(source) == Unknown {
		return false
	}
	info, err := os.Stat(source)
	return err == nil && !info.IsDir()
}

// Load 解析本地文件
func (l *FileLoader) Load(ctx context.Context, source string, opts LoadOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, newLoadError(source, err)
	}

	if _, err := os.Stat(source); err != nil {
		return nil, newLoadError(source, err)
	}

	parser, err := ParserFactory(source)
	if err != nil {
		return nil, newLoadError(source, err)
	}

	text, err := parser.Parse(source)
	if err != nil {
		return nil, newLoadError(source, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, newLoadError(source, ErrEmptyContent)
	}

	meta := map[string]string{
		MetaSource: source,
	}
	if opts.IncludeMetadata {
		base := filepath.Base(source)
		meta[MetaTitle] = strings.TrimSuffix(base, filepath.Ext(base))
		meta["content_type"] = string(detectContentType(source))
	}

	return []Document{{
		ID:       uuid.NewString(),
		Content:  text,
		Metadata: meta,
	}}, nil
}
