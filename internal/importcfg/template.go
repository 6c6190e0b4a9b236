package importcfg

import (
	"bytes"
	"fmt"

	"github.com/tealeg/xlsx"
)

// GenerateTemplate builds an import template spreadsheet for an entity:
// a header row of field labels followed by one example row. It is the
// local fallback when the backend's template endpoint is unavailable.
func GenerateTemplate(cfg *Config) ([]byte, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(cfg.EntityName)
	if err != nil {
		return nil, fmt.Errorf("creating template sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, f := range cfg.TemplateFields {
		cell := header.AddCell()
		label := f.Label
		if f.Required {
			label += " *"
		}
		cell.SetString(label)
	}

	example := sheet.AddRow()
	for _, f := range cfg.TemplateFields {
		example.AddCell().SetString(f.Example)
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing template: %w", err)
	}
	return buf.Bytes(), nil
}
