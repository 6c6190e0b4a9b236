package models

// FieldType describes the declared type of a template column.
type FieldType string

const (
	FieldTypeString  FieldType = "string"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
)

// TemplateField declares one column contract of an entity's import schema.
// It drives both input guidance (placeholder, example) and validation.
type TemplateField struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Required    bool      `json:"required"`
	Type        FieldType `json:"type"`
	MaxLength   int       `json:"maxLength,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
	Example     string    `json:"example,omitempty"`
}

// RuleType is the kind of a validation rule.
type RuleType string

const (
	RuleRequired  RuleType = "required"
	RuleMaxLength RuleType = "maxLength"
	RuleUnique    RuleType = "unique"
	RuleFormat    RuleType = "format"
)

// ValidationRule targets a single template field. A field may carry several
// rules; all of them are evaluated, never short-circuited.
type ValidationRule struct {
	Field   string   `json:"field"`
	Type    RuleType `json:"type"`
	Value   int      `json:"value,omitempty"`
	Message string   `json:"message"`
}

// PreviewColumn configures one column of the preview table.
type PreviewColumn struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Width int    `json:"width,omitempty"`
}

// RowSource tags where a parsed row came from.
type RowSource string

const (
	SourceFile  RowSource = "file"
	SourcePaste RowSource = "paste"
)

// ParsedRow is one row of tabular input, keyed by TemplateField.Key.
// RowIndex is 1-based and matches the row's position in the original
// source (spreadsheet data row or pasted line) for user-facing reference.
type ParsedRow struct {
	RowIndex int               `json:"rowIndex"`
	Values   map[string]string `json:"values"`
	Source   RowSource         `json:"source"`
}

// ImportError is a single rule violation, produced locally during
// validation or reflected back from server-side rejection.
type ImportError struct {
	RowIndex     int               `json:"row_index"`
	Field        string            `json:"field"`
	ErrorMessage string            `json:"error_message"`
	RawData      map[string]string `json:"raw_data,omitempty"`
}

// BatchImportResult is the server's verdict on a submitted batch.
// ErrorFileName is an opaque server-issued token and must be passed back
// to the download endpoint verbatim.
type BatchImportResult struct {
	TotalCount    int           `json:"total_count"`
	SuccessCount  int           `json:"success_count"`
	ErrorCount    int           `json:"error_count"`
	Errors        []ImportError `json:"errors,omitempty"`
	ImportTime    string        `json:"import_time,omitempty"`
	HasErrorFile  bool          `json:"has_error_file"`
	ErrorFileName string        `json:"error_file_name,omitempty"`
}

// PreviewInfo summarizes parsed rows for the preview stage.
type PreviewInfo struct {
	PreviewData      []map[string]string `json:"previewData"`
	TotalRows        int                 `json:"totalRows"`
	PreviewRows      int                 `json:"previewRows"`
	HasMoreData      bool                `json:"hasMoreData"`
	Source           RowSource           `json:"source"`
	IsEditable       bool                `json:"isEditable"`
	HasExceededLimit bool                `json:"hasExceededLimit,omitempty"`
}

// ImportStatus is the state of an import session's pipeline.
type ImportStatus string

const (
	StatusIdle       ImportStatus = "idle"
	StatusUploading  ImportStatus = "uploading"
	StatusParsing    ImportStatus = "parsing"
	StatusValidating ImportStatus = "validating"
	StatusPreviewing ImportStatus = "previewing"
	StatusImporting  ImportStatus = "importing"
	StatusCompleted  ImportStatus = "completed"
	StatusError      ImportStatus = "error"
)

// ImportProgress is mutated only by the import session manager and
// consumed by presentation (polling or the websocket stream).
type ImportProgress struct {
	Current       int          `json:"current"`
	Total         int          `json:"total"`
	Percentage    float64      `json:"percentage"`
	Status        ImportStatus `json:"status"`
	Message       string       `json:"message"`
	SuccessCount  int          `json:"success_count,omitempty"`
	ErrorCount    int          `json:"error_count,omitempty"`
	HasErrorFile  bool         `json:"has_error_file,omitempty"`
	ErrorFileName string       `json:"error_file_name,omitempty"`
}

// Fixed policy values. These match the admin UI contract and are not
// meant to be tunable.
const (
	// MaxFileSize is the upload ceiling for import spreadsheets.
	MaxFileSize = 10 * 1024 * 1024

	// MaxPasteRows caps rows accepted from clipboard paste. Rows beyond
	// the cap are truncated, not rejected.
	MaxPasteRows = 20

	// MaxPreviewRows bounds how many rows are rendered in the preview.
	MaxPreviewRows = 50

	// InlineRowLimit and InlineErrorLimit bound when fixing errors in the
	// embedded preview grid is still practical. Beyond either, the
	// suggested path is a downloaded error file.
	InlineRowLimit   = 20
	InlineErrorLimit = 5
)

// SupportedFileTypes are the spreadsheet MIME types accepted for upload.
var SupportedFileTypes = []string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", // .xlsx
	"application/vnd.ms-excel", // .xls
}

// IsSupportedFileType reports whether the declared content type is an
// accepted spreadsheet type.
func IsSupportedFileType(contentType string) bool {
	for _, t := range SupportedFileTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
