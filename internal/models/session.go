package models

// ImportSession is the externally visible state of one import pipeline run.
type ImportSession struct {
	ID          string             `json:"id"`
	EntityKey   string             `json:"entityKey"`
	Status      ImportStatus       `json:"status"`
	Source      RowSource          `json:"source,omitempty"`
	FileName    string             `json:"fileName,omitempty"`
	Preview     *PreviewInfo       `json:"preview,omitempty"`
	Errors      []ImportError      `json:"errors,omitempty"`
	Progress    ImportProgress     `json:"progress"`
	Result      *BatchImportResult `json:"result,omitempty"`
	ErrorKind   string             `json:"errorKind,omitempty"`
	ErrorDetail string             `json:"errorDetail,omitempty"`
}

// NewImportSession creates a session in the idle state.
func NewImportSession(id, entityKey string) *ImportSession {
	return &ImportSession{
		ID:        id,
		EntityKey: entityKey,
		Status:    StatusIdle,
		Progress:  ImportProgress{Status: StatusIdle},
	}
}

// FileInfo represents metadata about an uploaded spreadsheet held in the
// staging store.
type FileInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}
