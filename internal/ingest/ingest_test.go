package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/models"
)

func warehouseCfg(t *testing.T) *importcfg.Config {
	t.Helper()
	cfg, ok := importcfg.NewRegistry(nil).Get("warehouse")
	require.True(t, ok)
	return cfg
}

func writeSheet(t *testing.T, headers []string, rows [][]string) string {
	t.Helper()
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("data")
	require.NoError(t, err)

	headerRow := sheet.AddRow()
	for _, h := range headers {
		headerRow.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}

	path := filepath.Join(t.TempDir(), "import.xlsx")
	require.NoError(t, file.Save(path))
	return path
}

func TestCheckFile(t *testing.T) {
	xlsxType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	assert.NoError(t, CheckFile(xlsxType, 1024))
	assert.NoError(t, CheckFile("application/vnd.ms-excel", 1024))

	var formatErr *UnsupportedFormatError
	assert.ErrorAs(t, CheckFile("text/csv", 1024), &formatErr)

	var sizeErr *FileTooLargeError
	assert.ErrorAs(t, CheckFile(xlsxType, models.MaxFileSize+1), &sizeErr)
	assert.NoError(t, CheckFile(xlsxType, models.MaxFileSize))
}

func TestParseFileMapsColumnsByHeaderLabel(t *testing.T) {
	cfg := warehouseCfg(t)
	path := writeSheet(t,
		[]string{"Warehouse Name *", "City", "Unrelated Column"},
		[][]string{
			{"Central Warehouse", "Shanghai", "ignored"},
			{"North Warehouse", "Beijing", "ignored"},
		})

	rows, err := ParseFile(path, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].RowIndex)
	assert.Equal(t, models.SourceFile, rows[0].Source)
	assert.Equal(t, "Central Warehouse", rows[0].Values["warehouse_name"])
	assert.Equal(t, "Shanghai", rows[0].Values["warehouse_city"])
	_, present := rows[0].Values["warehouse_address"]
	assert.False(t, present, "missing columns are deferred to validation, not filled")

	assert.Equal(t, 2, rows[1].RowIndex)
	assert.Equal(t, "North Warehouse", rows[1].Values["warehouse_name"])
}

func TestParseFileSkipsEmptyRows(t *testing.T) {
	cfg := warehouseCfg(t)
	path := writeSheet(t,
		[]string{"Warehouse Name"},
		[][]string{
			{"First"},
			{""},
			{"Third"},
		})

	rows, err := ParseFile(path, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].RowIndex)
	assert.Equal(t, 3, rows[1].RowIndex, "row index follows the source position")
}

func TestParseFileRejectsUnmatchedHeaders(t *testing.T) {
	cfg := warehouseCfg(t)
	path := writeSheet(t, []string{"Foo", "Bar"}, [][]string{{"a", "b"}})

	_, err := ParseFile(path, cfg)
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
}

func TestParsePastedText(t *testing.T) {
	cfg := warehouseCfg(t)
	text := "Central Warehouse\tShanghai\tAddress 1\tLi Lei\t13800138000\r\n" +
		"North Warehouse\tBeijing\t\t\t"

	rows, exceeded, err := ParsePastedText(text, cfg)
	require.NoError(t, err)
	assert.False(t, exceeded)
	require.Len(t, rows, 2)
	assert.Equal(t, models.SourcePaste, rows[0].Source)
	assert.Equal(t, "Central Warehouse", rows[0].Values["warehouse_name"])
	assert.Equal(t, "Shanghai", rows[0].Values["warehouse_city"])
	assert.Equal(t, "", rows[1].Values["warehouse_address"])
}

func TestParsePastedTextSkipsHeaderLine(t *testing.T) {
	cfg := warehouseCfg(t)
	text := "Warehouse Name\tCity\n" +
		"Central Warehouse\tShanghai"

	rows, _, err := ParsePastedText(text, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Central Warehouse", rows[0].Values["warehouse_name"])
}

func TestParsePastedTextTruncatesAtCap(t *testing.T) {
	cfg := warehouseCfg(t)
	var sb strings.Builder
	for i := 0; i < models.MaxPasteRows+5; i++ {
		fmt.Fprintf(&sb, "Warehouse %d\tCity\n", i)
	}

	rows, exceeded, err := ParsePastedText(sb.String(), cfg)
	require.NoError(t, err)
	assert.True(t, exceeded, "truncation is reported, not failed")
	assert.Len(t, rows, models.MaxPasteRows)
}

func TestBuildPreviewBounds(t *testing.T) {
	rows := make([]models.ParsedRow, models.MaxPreviewRows+10)
	for i := range rows {
		rows[i] = models.ParsedRow{RowIndex: i + 1, Values: map[string]string{"k": "v"}, Source: models.SourcePaste}
	}

	info := BuildPreview(rows, models.SourcePaste, true, true)
	assert.Equal(t, len(rows), info.TotalRows)
	assert.Equal(t, models.MaxPreviewRows, info.PreviewRows)
	assert.True(t, info.HasMoreData)
	assert.True(t, info.IsEditable)
	assert.True(t, info.HasExceededLimit)

	small := BuildPreview(rows[:3], models.SourceFile, false, false)
	assert.Equal(t, 3, small.PreviewRows)
	assert.False(t, small.HasMoreData)
	assert.False(t, small.IsEditable)
}
