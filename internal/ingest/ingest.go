// Package ingest turns uploaded spreadsheets and pasted tabular text into
// parsed rows, mapping columns to template fields by header label.
package ingest

import (
	"fmt"
	"strings"

	"github.com/tealeg/xlsx"

	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/models"
)

// UnsupportedFormatError means the file's declared type is not an
// accepted spreadsheet type. The session restarts from idle.
type UnsupportedFormatError struct {
	ContentType string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type %q, expected an Excel spreadsheet", e.ContentType)
}

// FileTooLargeError means the upload exceeds the fixed size ceiling.
type FileTooLargeError struct {
	Size int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file of %d bytes exceeds the %d byte limit", e.Size, models.MaxFileSize)
}

// ParseError is a structural parse failure (unreadable container,
// missing header row).
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse failed: %s: %v", e.Reason, e.Err)
	}
	return "parse failed: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// CheckFile validates the declared content type and size before any
// bytes are staged. Both failures are terminal for the session.
func CheckFile(contentType string, size int64) error {
	if !models.IsSupportedFileType(contentType) {
		return &UnsupportedFormatError{ContentType: contentType}
	}
	if size > models.MaxFileSize {
		return &FileTooLargeError{Size: size}
	}
	return nil
}

// ParseFile reads a staged spreadsheet into parsed rows. Columns map to
// template fields by header label (a trailing required marker "*" is
// tolerated); unmatched headers are ignored and missing required columns
// are deferred to validation.
func ParseFile(path string, cfg *importcfg.Config) ([]models.ParsedRow, error) {
	file, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, &ParseError{Reason: "unreadable spreadsheet", Err: err}
	}
	if len(file.Sheets) == 0 {
		return nil, &ParseError{Reason: "spreadsheet has no sheets"}
	}

	sheet := file.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, &ParseError{Reason: "spreadsheet has no header row"}
	}

	// Header label -> field key mapping from the first row.
	columns := make(map[int]string)
	for i, cell := range sheet.Rows[0].Cells {
		label := normalizeHeader(cell.String())
		if field, ok := cfg.FieldByLabel(label); ok {
			columns[i] = field.Key
		}
	}
	if len(columns) == 0 {
		return nil, &ParseError{Reason: "no header matches any template column"}
	}

	var rows []models.ParsedRow
	for i, row := range sheet.Rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		values := make(map[string]string)
		for col, key := range columns {
			if col < len(row.Cells) {
				values[key] = strings.TrimSpace(row.Cells[col].String())
			} else {
				values[key] = ""
			}
		}
		rows = append(rows, models.ParsedRow{
			RowIndex: i + 1,
			Values:   values,
			Source:   models.SourceFile,
		})
	}

	return rows, nil
}

// ParsePastedText parses tab/newline-delimited clipboard text. Columns
// map positionally to the template fields; a leading line matching the
// field labels is treated as a header and skipped. Rows beyond
// MaxPasteRows are truncated, reported via PreviewInfo, not an error.
func ParsePastedText(text string, cfg *importcfg.Config) ([]models.ParsedRow, bool, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, false, &ParseError{Reason: "pasted text is empty"}
	}

	if isHeaderLine(lines[0], cfg) {
		lines = lines[1:]
	}

	exceeded := false
	if len(lines) > models.MaxPasteRows {
		lines = lines[:models.MaxPasteRows]
		exceeded = true
	}

	var rows []models.ParsedRow
	for i, line := range lines {
		cells := strings.Split(line, "\t")
		values := make(map[string]string)
		for j, field := range cfg.TemplateFields {
			if j < len(cells) {
				values[field.Key] = strings.TrimSpace(cells[j])
			} else {
				values[field.Key] = ""
			}
		}
		rows = append(rows, models.ParsedRow{
			RowIndex: i + 1,
			Values:   values,
			Source:   models.SourcePaste,
		})
	}

	if len(rows) == 0 {
		return nil, exceeded, &ParseError{Reason: "pasted text contains no data rows"}
	}
	return rows, exceeded, nil
}

// BuildPreview summarizes rows for the preview stage. editable is false
// for the straight file pass-through path where the original spreadsheet
// is resubmitted untouched.
func BuildPreview(rows []models.ParsedRow, source models.RowSource, editable, exceeded bool) *models.PreviewInfo {
	limit := models.MaxPreviewRows
	if len(rows) < limit {
		limit = len(rows)
	}

	preview := make([]map[string]string, 0, limit)
	for _, row := range rows[:limit] {
		preview = append(preview, row.Values)
	}

	return &models.PreviewInfo{
		PreviewData:      preview,
		TotalRows:        len(rows),
		PreviewRows:      limit,
		HasMoreData:      len(rows) > limit,
		Source:           source,
		IsEditable:       editable,
		HasExceededLimit: exceeded,
	}
}

// normalizeHeader strips whitespace and the trailing required marker
// produced by template generation ("Label *" or "Label*").
func normalizeHeader(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, "*")
	return strings.TrimSpace(label)
}

func isEmptyRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.Value) != "" {
			return false
		}
	}
	return true
}

func isHeaderLine(line string, cfg *importcfg.Config) bool {
	cells := strings.Split(line, "\t")
	if len(cells) == 0 {
		return false
	}
	matches := 0
	for _, cell := range cells {
		if _, ok := cfg.FieldByLabel(normalizeHeader(cell)); ok {
			matches++
		}
	}
	return matches > 0 && matches == len(cells)
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
