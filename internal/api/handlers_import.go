// handlers_import.go - Import pipeline handlers
package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wms-admin/gateway/internal/errfile"
	"github.com/wms-admin/gateway/internal/history"
	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/importer"
	"github.com/wms-admin/gateway/internal/ingest"
	"github.com/wms-admin/gateway/internal/models"
	"github.com/wms-admin/gateway/internal/storage"
)

// ImportHandler serves the import pipeline surface.
type ImportHandler struct {
	registry   *importcfg.Registry
	manager    *importer.Manager
	store      storage.Store
	downloader *errfile.Downloader
	history    *history.Store
}

func NewImportHandler(registry *importcfg.Registry, manager *importer.Manager, store storage.Store, downloader *errfile.Downloader, hist *history.Store) *ImportHandler {
	return &ImportHandler{
		registry:   registry,
		manager:    manager,
		store:      store,
		downloader: downloader,
		history:    hist,
	}
}

// sessionResponse is the session snapshot plus the strategy advice the
// UI renders alongside it.
type sessionResponse struct {
	*models.ImportSession
	Advice *importer.Advice `json:"advice,omitempty"`
}

func (h *ImportHandler) respondSession(c echo.Context, status int, session *models.ImportSession) error {
	resp := sessionResponse{ImportSession: session}
	if session.Status == models.StatusPreviewing {
		if advice, err := h.manager.Advice(session.ID); err == nil {
			resp.Advice = &advice
		}
	}
	return c.JSON(status, resp)
}

// HandleUpload accepts a multipart spreadsheet and starts a session.
// Format and size failures are rejected before any staging.
func (h *ImportHandler) HandleUpload(c echo.Context) error {
	entityKey := c.Param("entity")

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if err := ingest.CheckFile(file.Header.Get("Content-Type"), file.Size); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return NewBadRequestError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(file.Filename, file.Header.Get("Content-Type"), src)
	if err != nil {
		return NewInternalError("failed to stage file", err)
	}

	session, err := h.manager.StartFromFile(entityKey, info.ID)
	if err != nil {
		h.store.Delete(info.ID)
		return err
	}
	return h.respondSession(c, http.StatusAccepted, session)
}

type pasteRequest struct {
	Text string `json:"text"`
}

// HandlePaste starts a session from clipboard text. The response is
// already previewing since pasted input is parsed synchronously.
func (h *ImportHandler) HandlePaste(c echo.Context) error {
	var req pasteRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Text == "" {
		return NewBadRequestError("text must not be empty", nil)
	}

	session, err := h.manager.StartFromPaste(c.Param("entity"), req.Text)
	if err != nil {
		return err
	}
	return h.respondSession(c, http.StatusCreated, session)
}

// HandleRestoreDraft starts a session from the entity's saved draft.
func (h *ImportHandler) HandleRestoreDraft(c echo.Context) error {
	session, err := h.manager.StartFromDraft(c.Param("entity"))
	if err != nil {
		return err
	}
	return h.respondSession(c, http.StatusCreated, session)
}

// HandleGetSession returns the session snapshot with preview, errors and
// strategy advice.
func (h *ImportHandler) HandleGetSession(c echo.Context) error {
	id := c.Param("id")
	session, ok := h.manager.Get(id)
	if !ok {
		return NewNotFoundError("import session", id)
	}
	h.manager.Touch(id)
	return h.respondSession(c, http.StatusOK, session)
}

// HandleGetRows returns the full working row set for the inline editor.
func (h *ImportHandler) HandleGetRows(c echo.Context) error {
	id := c.Param("id")
	rows, ok := h.manager.Rows(id)
	if !ok {
		return NewNotFoundError("import session", id)
	}
	h.manager.Touch(id)
	return c.JSON(http.StatusOK, map[string]any{"rows": rows})
}

type updateRowsRequest struct {
	Rows []models.ParsedRow `json:"rows"`
}

// HandleUpdateRows replaces rows after inline editing and revalidates.
func (h *ImportHandler) HandleUpdateRows(c echo.Context) error {
	var req updateRowsRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if len(req.Rows) == 0 {
		return NewBadRequestError("rows must not be empty", nil)
	}

	session, err := h.manager.UpdateRows(c.Param("id"), req.Rows)
	if err != nil {
		return err
	}
	return h.respondSession(c, http.StatusOK, session)
}

type confirmRequest struct {
	Strategy string `json:"strategy"`
}

// HandleConfirm submits the batch. strategy "force" submits rows that
// failed local validation; "inline" (or an omitted strategy) requires a
// clean row set. "download" is not a submission path and anything else
// is unknown, so both are rejected.
func (h *ImportHandler) HandleConfirm(c echo.Context) error {
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	var force bool
	switch req.Strategy {
	case "", string(importer.StrategyInline):
		force = false
	case string(importer.StrategyForce):
		force = true
	default:
		return NewBadRequestError(fmt.Sprintf("strategy %q cannot submit an import", req.Strategy), nil)
	}

	session, err := h.manager.Confirm(c.Param("id"), force)
	if err != nil {
		return err
	}
	return h.respondSession(c, http.StatusAccepted, session)
}

// HandleCancel abandons a session before submission.
func (h *ImportHandler) HandleCancel(c echo.Context) error {
	if err := h.manager.Cancel(c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleTemplate serves the entity's import template spreadsheet. The
// upstream template endpoint is preferred; local generation is the
// fallback when the upstream is unreachable.
func (h *ImportHandler) HandleTemplate(c echo.Context) error {
	entityKey := c.Param("entity")
	cfg, ok := h.registry.Get(entityKey)
	if !ok {
		return importer.ErrUnknownEntity
	}

	data, err := cfg.Binding.FetchTemplate(c.Request().Context())
	if err != nil || len(data) == 0 {
		data, err = importcfg.GenerateTemplate(cfg)
		if err != nil {
			return NewInternalError("failed to generate template", err)
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+entityKey+`_import_template.xlsx"`)
	return c.Blob(http.StatusOK, models.SupportedFileTypes[0], data)
}

// HandleErrorFile resolves a server-issued error-file token and streams
// the rejected-row spreadsheet back.
func (h *ImportHandler) HandleErrorFile(c echo.Context) error {
	token := c.QueryParam("file_name")
	if token == "" {
		return NewBadRequestError("file_name is required", nil)
	}

	name, data, err := h.downloader.Fetch(c.Request().Context(), c.Param("entity"), token)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`"`)
	return c.Blob(http.StatusOK, models.SupportedFileTypes[0], data)
}

// HandleEntities lists the importable entity types with their template
// schemas.
func (h *ImportHandler) HandleEntities(c echo.Context) error {
	keys := h.registry.EntityTypes()
	entities := make([]*importcfg.Config, 0, len(keys))
	for _, key := range keys {
		if cfg, ok := h.registry.Get(key); ok {
			entities = append(entities, cfg)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"entities": entities})
}

// HandleHistory lists recorded import runs, newest first. History is
// best-effort: without a store the list is empty, never an error.
func (h *ImportHandler) HandleHistory(c echo.Context) error {
	if h.history == nil {
		return c.JSON(http.StatusOK, map[string]any{"entries": []history.Entry{}})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	entries, err := h.history.List(c.Request().Context(), c.QueryParam("entity"), limit)
	if err != nil {
		return NewInternalError("failed to list import history", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}
