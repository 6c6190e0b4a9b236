// handlers_import_test.go - Tests for import pipeline handlers
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"
	"go.uber.org/zap"

	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/importer"
	"github.com/wms-admin/gateway/internal/models"
	"github.com/wms-admin/gateway/internal/storage"
)

const xlsxType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type stubBinding struct {
	result *models.BatchImportResult
	err    error
}

func (b *stubBinding) Submit(ctx context.Context, p importcfg.Payload) (*models.BatchImportResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.result, nil
}

func (b *stubBinding) FetchTemplate(ctx context.Context) ([]byte, error) {
	return nil, fmt.Errorf("upstream unavailable")
}

type testEnv struct {
	echo    *echo.Echo
	manager *importer.Manager
}

func newTestEnv(t *testing.T, binding importcfg.Binding) *testEnv {
	t.Helper()

	registry := importcfg.NewRegistry(nil)
	cfg, ok := registry.Get("warehouse")
	require.True(t, ok)
	if binding != nil {
		cfg.Binding = binding
	}

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	drafts, err := importer.NewDraftStore(t.TempDir())
	require.NoError(t, err)

	manager := importer.NewManager(registry, store, drafts, nil, zap.NewNop())

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	handlers := NewHandlers(&Dependencies{
		Registry:     registry,
		Manager:      manager,
		Store:        store,
		Client:       nil,
		Version:      "test",
		PollInterval: 10 * time.Millisecond,
	})
	// The error-file downloader needs a live client; these tests do not
	// exercise it.
	handlers.Import = NewImportHandler(registry, manager, store, nil, nil)
	RegisterRoutes(e, handlers)

	return &testEnv{echo: e, manager: manager}
}

func (env *testEnv) request(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) postJSON(t *testing.T, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return env.request(t, http.MethodPost, path, body, echo.MIMEApplicationJSON)
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func multipartSheet(t *testing.T, fileName, contentType string, rows [][]string) (*bytes.Buffer, string) {
	t.Helper()

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("data")
	require.NoError(t, err)
	headerRow := sheet.AddRow()
	for _, h := range []string{"Warehouse Name", "City", "Address", "Manager", "Contact"} {
		headerRow.AddCell().SetString(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	var sheetBuf bytes.Buffer
	require.NoError(t, file.Write(&sheetBuf))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(sheetBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return &body, writer.FormDataContentType()
}

func waitForSessionStatus(t *testing.T, env *testEnv, id string, want models.ImportStatus) sessionResponse {
	t.Helper()
	var resp sessionResponse
	require.Eventually(t, func() bool {
		rec := env.request(t, http.MethodGet, "/api/import/sessions/"+id, nil, "")
		if rec.Code != http.StatusOK {
			return false
		}
		resp = decodeSession(t, rec)
		return resp.Status == want
	}, 5*time.Second, 10*time.Millisecond)
	return resp
}

func TestHandleUploadStartsSession(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	body, contentType := multipartSheet(t, "warehouses.xlsx", xlsxType, [][]string{
		{"Central Warehouse", "Shanghai", "Pudong", "Zhang San", "138"},
	})
	rec := env.request(t, http.MethodPost, "/api/import/warehouse/upload", body.Bytes(), contentType)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	session := decodeSession(t, rec)
	assert.Equal(t, models.SourceFile, session.Source)
	assert.Equal(t, "warehouses.xlsx", session.FileName)

	final := waitForSessionStatus(t, env, session.ID, models.StatusPreviewing)
	require.NotNil(t, final.Preview)
	assert.Equal(t, 1, final.Preview.TotalRows)
	require.NotNil(t, final.Advice)
	assert.Equal(t, importer.StrategyInline, final.Advice.Suggested)
}

func TestHandleUploadRejectsUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	body, contentType := multipartSheet(t, "notes.csv", "text/csv", nil)
	rec := env.request(t, http.MethodPost, "/api/import/warehouse/upload", body.Bytes(), contentType)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNSUPPORTED_FORMAT", decodeAPIError(t, rec).Code)
}

func TestHandleUploadUnknownEntity(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	body, contentType := multipartSheet(t, "w.xlsx", xlsxType, nil)
	rec := env.request(t, http.MethodPost, "/api/import/shipment/upload", body.Bytes(), contentType)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UNKNOWN_ENTITY", decodeAPIError(t, rec).Code)
}

func TestHandlePasteReturnsPreviewWithAdvice(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.postJSON(t, "/api/import/warehouse/paste", pasteRequest{
		Text: "\tSuzhou\tSIP\tWang Wu\t137",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	session := decodeSession(t, rec)
	assert.Equal(t, models.StatusPreviewing, session.Status)
	require.Len(t, session.Errors, 1)
	require.NotNil(t, session.Advice)
	assert.Equal(t, importer.StrategyInline, session.Advice.Suggested)
	assert.True(t, session.Advice.Prompt)
}

func TestHandlePasteEmptyText(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.postJSON(t, "/api/import/warehouse/paste", pasteRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetSessionNotFound(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.request(t, http.MethodGet, "/api/import/sessions/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleUpdateRowsAndConfirm(t *testing.T) {
	env := newTestEnv(t, &stubBinding{result: &models.BatchImportResult{
		TotalCount: 1, SuccessCount: 1,
	}})

	rec := env.postJSON(t, "/api/import/warehouse/paste", pasteRequest{Text: "\tSuzhou\tSIP\tWang Wu\t137"})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeSession(t, rec)

	// Confirming with a dirty row set is rejected.
	rec = env.postJSON(t, "/api/import/sessions/"+session.ID+"/confirm", confirmRequest{Strategy: "inline"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ROWS_INVALID", decodeAPIError(t, rec).Code)

	// Fix the row inline.
	rows := []models.ParsedRow{{
		RowIndex: 1,
		Values: map[string]string{
			"warehouse_name": "East Depot", "warehouse_city": "Suzhou",
			"warehouse_address": "SIP", "warehouse_manager": "Wang Wu", "warehouse_contact": "137",
		},
		Source: models.SourcePaste,
	}}
	rec = env.postJSON(t, "/api/import/sessions/"+session.ID+"/rows", updateRowsRequest{Rows: rows})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeSession(t, rec).Errors)

	rec = env.postJSON(t, "/api/import/sessions/"+session.ID+"/confirm", confirmRequest{Strategy: "inline"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	final := waitForSessionStatus(t, env, session.ID, models.StatusCompleted)
	require.NotNil(t, final.Result)
	assert.Equal(t, 1, final.Result.SuccessCount)
}

func TestHandleConfirmForce(t *testing.T) {
	env := newTestEnv(t, &stubBinding{result: &models.BatchImportResult{
		TotalCount: 1, ErrorCount: 1, HasErrorFile: true, ErrorFileName: "err_123.xls",
	}})

	rec := env.postJSON(t, "/api/import/warehouse/paste", pasteRequest{Text: "\tSuzhou\tSIP\tWang Wu\t137"})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeSession(t, rec)

	rec = env.postJSON(t, "/api/import/sessions/"+session.ID+"/confirm", confirmRequest{Strategy: "force"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	final := waitForSessionStatus(t, env, session.ID, models.StatusCompleted)
	require.NotNil(t, final.Result)
	assert.Equal(t, "err_123.xls", final.Result.ErrorFileName)
}

func TestHandleConfirmRejectsNonSubmittingStrategy(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.postJSON(t, "/api/import/warehouse/paste", pasteRequest{Text: "East Depot\tSuzhou\tSIP\tWang Wu\t137"})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeSession(t, rec)

	for _, strategy := range []string{"download", "retry"} {
		rec = env.postJSON(t, "/api/import/sessions/"+session.ID+"/confirm", confirmRequest{Strategy: strategy})
		require.Equal(t, http.StatusBadRequest, rec.Code, "strategy %q", strategy)
		assert.Equal(t, "BAD_REQUEST", decodeAPIError(t, rec).Code)
	}

	// Nothing was submitted; the session is still previewing.
	rec = env.request(t, http.MethodGet, "/api/import/sessions/"+session.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusPreviewing, decodeSession(t, rec).Status)
}

func TestHandleCancel(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.postJSON(t, "/api/import/warehouse/paste", pasteRequest{Text: "East Depot\tSuzhou\tSIP\tWang Wu\t137"})
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decodeSession(t, rec)

	rec = env.request(t, http.MethodPost, "/api/import/sessions/"+session.ID+"/cancel", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/import/sessions/"+session.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTemplateFallsBackToLocalGeneration(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.request(t, http.MethodGet, "/api/import/warehouse/template", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "warehouse_import_template.xlsx")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "PK"), "template must be a zip container")
}

func TestHandleEntities(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.request(t, http.MethodGet, "/api/import/entities", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entities []struct {
			EntityKey string `json:"entityKey"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	keys := make([]string, 0, len(resp.Entities))
	for _, e := range resp.Entities {
		keys = append(keys, e.EntityKey)
	}
	assert.Equal(t, []string{"warehouse", "customer", "supplier", "bin"}, keys)
}

func TestHandleHistoryWithoutStoreIsEmpty(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.request(t, http.MethodGet, "/api/import/history", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries": []}`, rec.Body.String())
}

func TestHandleRestoreDraftWithoutDraft(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.request(t, http.MethodPost, "/api/import/warehouse/draft", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_DRAFT", decodeAPIError(t, rec).Code)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, &stubBinding{})

	rec := env.request(t, http.MethodGet, "/api/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
}
