package datasource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tidwall/gjson"
)

// FileSource reads local files. A query is a path, optionally followed by
// '#' and a gjson path for JSON files, e.g. "tickets.json#items.#.body".
type FileSource struct {
	basePath string
}

func NewFileSource(basePath string) *FileSource {
	return &FileSource{basePath: basePath}
}

func (s *FileSource) Fetch(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name, jsonPath, _ := strings.Cut(query, "#")
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", name, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return extractJSON(data, jsonPath)
	case ".pdf":
		return extractPDF(data)
	default:
		return string(data), nil
	}
}

func (s *FileSource) resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file path required")
	}
	if s.basePath == "" {
		return name, nil
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("path %q escapes base path", name)
	}
	return filepath.Join(s.basePath, name), nil
}

func extractJSON(data []byte, path string) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("invalid json")
	}
	res := gjson.ParseBytes(data)
	if path != "" {
		res = res.Get(path)
		if !res.Exists() {
			return "", fmt.Errorf("json path %q not found", path)
		}
	}
	return recordText(res), nil
}

// recordText returns the first content-like field of an object, joins arrays
// record by record, and falls back to indented JSON.
func recordText(res gjson.Result) string {
	switch {
	case res.IsObject():
		for _, field := range contentFields {
			if v := res.Get(field); v.Exists() {
				return v.String()
			}
		}
		return indent(res.Raw)
	case res.IsArray():
		items := res.Array()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			parts = append(parts, recordText(item))
		}
		return strings.Join(parts, recordSeparator)
	default:
		return res.String()
	}
}

func indent(raw string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(raw), "", "  "); err != nil {
		return raw
	}
	return buf.String()
}

func extractPDF(content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() || page.V.Key("Contents").Kind() == pdf.Null {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages that fail to extract
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
