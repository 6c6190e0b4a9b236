// Package importcfg holds the static per-entity import descriptors and
// their transport bindings.
package importcfg

import (
	"context"

	"github.com/wms-admin/gateway/internal/models"
)

// Payload is one batch submission: either parsed rows for the JSON
// endpoint or a spreadsheet blob passed through to the file endpoint.
type Payload struct {
	Rows     []map[string]string
	File     []byte
	FileName string
}

// Binding is the narrow transport interface an entity's import config
// carries, keeping entity wiring swappable and mockable.
type Binding interface {
	Submit(ctx context.Context, p Payload) (*models.BatchImportResult, error)
	FetchTemplate(ctx context.Context) ([]byte, error)
}

// Config describes how one entity type is imported. Instances are
// immutable, defined at process start and looked up by EntityKey.
type Config struct {
	EntityName      string                  `json:"entityName"`
	EntityKey       string                  `json:"entityKey"`
	TemplateFields  []models.TemplateField  `json:"templateFields"`
	ValidationRules []models.ValidationRule `json:"validationRules"`
	UniqueFields    []string                `json:"uniqueFields,omitempty"`
	PreviewColumns  []models.PreviewColumn  `json:"previewColumns"`
	Binding         Binding                 `json:"-"`
}

// FieldByLabel resolves a template field by its display label, used for
// header-to-field column mapping.
func (c *Config) FieldByLabel(label string) (models.TemplateField, bool) {
	for _, f := range c.TemplateFields {
		if f.Label == label {
			return f, true
		}
	}
	return models.TemplateField{}, false
}

// FieldByKey resolves a template field by its row property key.
func (c *Config) FieldByKey(key string) (models.TemplateField, bool) {
	for _, f := range c.TemplateFields {
		if f.Key == key {
			return f, true
		}
	}
	return models.TemplateField{}, false
}
