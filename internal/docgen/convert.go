package docgen

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/usefreetools/toolbox/pkg/fault"
)

// File is a validated uploaded document.
type File struct {
	Bytes    []byte
	Filename string
	MimeType string
}

// Converted is the conversion output ready for an attachment response.
type Converted struct {
	Bytes       []byte
	ContentType string
	Filename    string
}

// Converter rewrites a document into a target format.
type Converter interface {
	Convert(ctx context.Context, file File, targetFormat string) (*Converted, error)
}

// SupportedTargets lists the formats the built-in converter accepts.
var SupportedTargets = []string{"txt", "md", "html", "json"}

var targetContentTypes = map[string]string{
	"txt":  "text/plain; charset=utf-8",
	"md":   "text/markdown; charset=utf-8",
	"html": "text/html; charset=utf-8",
	"json": "application/json",
}

// TextConverter handles the text-format subset of the conversion tool.
// Binary formats (PDF, DOCX) stay out of scope; requests for them are
// rejected at validation time.
type TextConverter struct{}

func (TextConverter) Convert(_ context.Context, file File, targetFormat string) (*Converted, error) {
	contentType, ok := targetContentTypes[targetFormat]
	if !ok {
		return nil, fault.Validation(fmt.Sprintf("Unsupported target format %q. Supported formats: %s",
			targetFormat, strings.Join(SupportedTargets, ", ")))
	}

	var out []byte
	var err error
	switch targetFormat {
	case "txt":
		out = toPlainText(file)
	case "md":
		out = toPlainText(file)
	case "html":
		out, err = toHTML(file)
	case "json":
		out, err = toJSON(file)
	}
	if err != nil {
		return nil, err
	}

	return &Converted{
		Bytes:       out,
		ContentType: contentType,
		Filename:    replaceExt(file.Filename, targetFormat),
	}, nil
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

func toPlainText(file File) []byte {
	text := string(file.Bytes)
	if strings.Contains(file.MimeType, "html") || strings.HasSuffix(strings.ToLower(file.Filename), ".html") {
		text = html.UnescapeString(htmlTagRe.ReplaceAllString(text, ""))
	}
	return []byte(strings.TrimSpace(text) + "\n")
}

func toHTML(file File) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<body>\n")
	for _, para := range strings.Split(strings.TrimSpace(string(file.Bytes)), "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		buf.WriteString("<p>")
		buf.WriteString(strings.ReplaceAll(html.EscapeString(para), "\n", "<br>\n"))
		buf.WriteString("</p>\n")
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

// toJSON converts CSV input into an array of objects keyed by the header
// row. Non-CSV input is rejected as a caller error.
func toJSON(file File) ([]byte, error) {
	reader := csv.NewReader(bytes.NewReader(file.Bytes))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fault.Validation("File could not be parsed as CSV")
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Validation("File could not be parsed as CSV")
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	out, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fault.Wrap(err, fault.KindInternal, "CONVERSION_FAILED", "conversion failed")
	}
	return out, nil
}

func replaceExt(filename, target string) string {
	if filename == "" {
		return "converted." + target
	}
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "." + target
}
