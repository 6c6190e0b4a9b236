// Package importer orchestrates import sessions: staged file or pasted
// rows move through parsing, validation and preview before a single
// confirmed submission to the upstream inventory service.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wms-admin/gateway/internal/importcfg"
	"github.com/wms-admin/gateway/internal/ingest"
	"github.com/wms-admin/gateway/internal/models"
	"github.com/wms-admin/gateway/internal/storage"
	"github.com/wms-admin/gateway/internal/validate"
)

// MaxSessions limits concurrent sessions to prevent memory exhaustion
const MaxSessions = 32

// SessionMaxAge is how long to keep finished sessions before cleanup
const SessionMaxAge = 30 * time.Minute

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

// submitTimeout bounds one upstream batch submission.
const submitTimeout = 2 * time.Minute

var (
	ErrUnknownEntity   = errors.New("unknown entity type")
	ErrSessionNotFound = errors.New("import session not found")
	ErrNoDraft         = errors.New("no draft available")
	// ErrSubmitInFlight guards the at-most-one-submission invariant: a
	// session that is already importing rejects further confirms.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrRowsInvalid is returned when an inline confirm still has
	// validation errors. Force confirm bypasses it.
	ErrRowsInvalid = errors.New("rows still have validation errors")
)

// StateError reports an operation attempted in the wrong pipeline state.
type StateError struct {
	Op     string
	Status models.ImportStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in state %q", e.Op, e.Status)
}

// Recorder receives the outcome of finished imports. Implementations
// must not block the pipeline; failures are logged and ignored.
type Recorder interface {
	Record(entityKey string, source models.RowSource, result *models.BatchImportResult) error
}

// Manager owns all active import sessions.
type Manager struct {
	sessions map[string]*sessionState
	mu       sync.RWMutex
	registry *importcfg.Registry
	files    storage.Store
	drafts   *DraftStore
	history  Recorder
	log      *zap.Logger
}

// sessionState holds one session plus the working data that never leaves
// the server: the full parsed row set and submission bookkeeping.
type sessionState struct {
	Session      *models.ImportSession
	Rows         []models.ParsedRow
	FileID       string
	Edited       bool
	Submitting   bool
	LastAccessed time.Time
}

// NewManager creates a session manager. history may be nil when no
// history store is configured.
func NewManager(registry *importcfg.Registry, files storage.Store, drafts *DraftStore, history Recorder, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*sessionState),
		registry: registry,
		files:    files,
		drafts:   drafts,
		history:  history,
		log:      log,
	}
}

// StartFromFile begins a session for a staged spreadsheet. Format and
// size are rejected synchronously; parsing and validation continue in
// the background.
func (m *Manager) StartFromFile(entityKey, fileID string) (*models.ImportSession, error) {
	cfg, ok := m.registry.Get(entityKey)
	if !ok {
		return nil, ErrUnknownEntity
	}

	info, err := m.files.Get(fileID)
	if err != nil {
		return nil, err
	}
	if err := ingest.CheckFile(info.ContentType, info.Size); err != nil {
		return nil, err
	}

	m.evictIfNeeded()

	session := models.NewImportSession(uuid.New().String(), entityKey)
	session.Source = models.SourceFile
	session.FileName = info.Name
	m.setStage(session, models.StatusUploading, 5, "File received")

	state := &sessionState{
		Session:      session,
		FileID:       fileID,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = state
	m.mu.Unlock()

	go m.runPrepare(session.ID, cfg)

	return session, nil
}

// StartFromPaste begins a session from clipboard text. Pasted input is
// small, so the whole prepare stage runs synchronously and the returned
// session is already previewing (or in error).
func (m *Manager) StartFromPaste(entityKey, text string) (*models.ImportSession, error) {
	cfg, ok := m.registry.Get(entityKey)
	if !ok {
		return nil, ErrUnknownEntity
	}

	rows, exceeded, err := ingest.ParsePastedText(text, cfg)
	if err != nil {
		return nil, err
	}

	m.evictIfNeeded()

	session := models.NewImportSession(uuid.New().String(), entityKey)
	session.Source = models.SourcePaste

	state := &sessionState{
		Session:      session,
		Rows:         rows,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = state
	m.mu.Unlock()

	m.finishPrepare(session.ID, cfg, rows, models.SourcePaste, exceeded)
	m.saveDraft(state)

	session, _ = m.Get(session.ID)
	return session, nil
}

// StartFromDraft restores the saved draft for an entity into a new
// previewing session. Validation is recomputed, never trusted from disk.
func (m *Manager) StartFromDraft(entityKey string) (*models.ImportSession, error) {
	cfg, ok := m.registry.Get(entityKey)
	if !ok {
		return nil, ErrUnknownEntity
	}
	if m.drafts == nil {
		return nil, ErrNoDraft
	}

	draft, err := m.drafts.Load(entityKey)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, ErrNoDraft
	}

	m.evictIfNeeded()

	session := models.NewImportSession(uuid.New().String(), entityKey)
	session.Source = draft.Source
	session.FileName = draft.FileName

	state := &sessionState{
		Session:      session,
		Rows:         draft.Rows,
		Edited:       true,
		LastAccessed: time.Now(),
	}

	m.mu.Lock()
	m.sessions[session.ID] = state
	m.mu.Unlock()

	m.finishPrepare(session.ID, cfg, draft.Rows, draft.Source, false)

	session, _ = m.Get(session.ID)
	return session, nil
}

// runPrepare parses a staged file and validates it in the background.
func (m *Manager) runPrepare(sessionID string, cfg *importcfg.Config) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("prepare panicked",
				zap.String("session", sessionID[:8]),
				zap.Any("panic", r))
			m.failSession(sessionID, "parse", fmt.Sprintf("prepare panicked: %v", r))
		}
	}()

	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	path, err := m.files.GetFilePath(state.FileID)
	if err != nil {
		m.failSession(sessionID, "parse", err.Error())
		return
	}

	m.updateStage(sessionID, models.StatusParsing, 20, "Parsing spreadsheet")

	rows, err := ingest.ParseFile(path, cfg)
	if err != nil {
		m.log.Warn("parse failed",
			zap.String("session", sessionID[:8]),
			zap.Error(err))
		m.failSession(sessionID, "parse", err.Error())
		return
	}

	m.mu.Lock()
	if state, ok := m.sessions[sessionID]; ok {
		state.Rows = rows
	}
	m.mu.Unlock()

	m.finishPrepare(sessionID, cfg, rows, models.SourceFile, false)
}

// canPreview reports whether a session in the given status may still
// move (back) to previewing. Once a batch is importing or terminal the
// preparation pipeline has nothing left to say.
func canPreview(status models.ImportStatus) bool {
	switch status {
	case models.StatusImporting, models.StatusCompleted, models.StatusError:
		return false
	}
	return true
}

// finishPrepare runs validation over parsed rows and moves the session
// to previewing. A session that has entered submission in the meantime
// is left alone; previewing must never overwrite importing or a
// terminal state.
func (m *Manager) finishPrepare(sessionID string, cfg *importcfg.Config, rows []models.ParsedRow, source models.RowSource, exceeded bool) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok || state.Submitting || !canPreview(state.Session.Status) {
		m.mu.Unlock()
		return
	}
	m.setStage(state.Session, models.StatusValidating, 60, "Validating rows")
	m.mu.Unlock()

	importErrors := validate.Validate(rows, cfg)
	editable := source == models.SourcePaste
	preview := ingest.BuildPreview(rows, source, editable, exceeded)

	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok = m.sessions[sessionID]
	if !ok || state.Submitting || !canPreview(state.Session.Status) {
		return
	}
	state.Session.Preview = preview
	state.Session.Errors = importErrors
	state.Session.Status = models.StatusPreviewing
	state.Session.Progress = models.ImportProgress{
		Current:    len(rows),
		Total:      len(rows),
		Percentage: 100,
		Status:     models.StatusPreviewing,
		Message:    fmt.Sprintf("%d rows ready, %d validation errors", len(rows), len(importErrors)),
		ErrorCount: len(importErrors),
	}
}

// UpdateRows replaces the working row set with inline-edited values,
// revalidates and stays in the previewing state. The edit is persisted
// as a draft so a restart does not lose hand-corrected data.
func (m *Manager) UpdateRows(sessionID string, rows []models.ParsedRow) (*models.ImportSession, error) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if state.Submitting {
		m.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if state.Session.Status != models.StatusPreviewing {
		status := state.Session.Status
		m.mu.Unlock()
		return nil, &StateError{Op: "edit rows", Status: status}
	}
	cfg, cfgOK := m.registry.Get(state.Session.EntityKey)
	state.Rows = rows
	state.Edited = true
	state.LastAccessed = time.Now()
	exceeded := state.Session.Preview != nil && state.Session.Preview.HasExceededLimit
	source := state.Session.Source
	m.mu.Unlock()

	if !cfgOK {
		return nil, ErrUnknownEntity
	}

	m.finishPrepare(sessionID, cfg, rows, source, exceeded)
	m.saveDraft(state)

	session, _ := m.Get(sessionID)
	return session, nil
}

// Advice returns the edit-strategy recommendation for a previewing
// session.
func (m *Manager) Advice(sessionID string) (Advice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return Advice{}, ErrSessionNotFound
	}
	return Advise(len(state.Rows), len(state.Session.Errors)), nil
}

// Confirm submits the session's batch upstream. Without force, any
// remaining validation error rejects the confirm; with force the batch
// is submitted as-is and the server does the rejecting. A transport
// failure returns the session to previewing so nothing is lost.
func (m *Manager) Confirm(sessionID string, force bool) (*models.ImportSession, error) {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if state.Submitting {
		m.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if state.Session.Status != models.StatusPreviewing {
		status := state.Session.Status
		m.mu.Unlock()
		return nil, &StateError{Op: "confirm import", Status: status}
	}

	cfg, cfgOK := m.registry.Get(state.Session.EntityKey)
	if !cfgOK {
		m.mu.Unlock()
		return nil, ErrUnknownEntity
	}

	rows := state.Rows
	// Claim the submission slot before dropping the lock: a concurrent
	// confirm must hit the ErrSubmitInFlight gate, not race past the
	// status check while this one validates.
	state.Submitting = true
	m.mu.Unlock()

	// Revalidate right before submission: preview state may be stale
	// relative to edits.
	if !force {
		if errs := validate.Validate(rows, cfg); len(errs) > 0 {
			m.mu.Lock()
			state.Session.Errors = errs
			state.Submitting = false
			m.mu.Unlock()
			return nil, ErrRowsInvalid
		}
	}

	m.mu.Lock()
	state.LastAccessed = time.Now()
	m.setStage(state.Session, models.StatusImporting, 10, fmt.Sprintf("Submitting %d rows", len(rows)))
	m.mu.Unlock()

	go m.runSubmit(sessionID, cfg)

	session, _ := m.Get(sessionID)
	return session, nil
}

func (m *Manager) runSubmit(sessionID string, cfg *importcfg.Config) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("submit panicked",
				zap.String("session", sessionID[:8]),
				zap.Any("panic", r))
			m.failSession(sessionID, "submit", fmt.Sprintf("submit panicked: %v", r))
		}
		m.mu.Lock()
		if state, ok := m.sessions[sessionID]; ok {
			state.Submitting = false
		}
		m.mu.Unlock()
	}()

	m.mu.RLock()
	state, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	payload, err := m.buildPayload(state)
	if err != nil {
		m.failSession(sessionID, "submit", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	m.updateStage(sessionID, models.StatusImporting, 50, "Waiting for server")

	start := time.Now()
	result, err := cfg.Binding.Submit(ctx, payload)
	if err != nil {
		// Surface the failure but keep rows and preview so the user can
		// retry without re-entering everything.
		m.log.Warn("batch submission failed",
			zap.String("session", sessionID[:8]),
			zap.String("entity", cfg.EntityKey),
			zap.Error(err))
		m.mu.Lock()
		if state, ok := m.sessions[sessionID]; ok {
			state.Session.Status = models.StatusPreviewing
			state.Session.ErrorKind = "submit"
			state.Session.ErrorDetail = err.Error()
			state.Session.Progress.Status = models.StatusPreviewing
			state.Session.Progress.Message = "Submission failed, rows preserved"
		}
		m.mu.Unlock()
		return
	}

	m.log.Info("batch import finished",
		zap.String("session", sessionID[:8]),
		zap.String("entity", cfg.EntityKey),
		zap.Int("total", result.TotalCount),
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.ErrorCount),
		zap.Duration("elapsed", time.Since(start)))

	m.mu.Lock()
	source := models.SourceFile
	if state, ok := m.sessions[sessionID]; ok {
		source = state.Session.Source
		state.Session.Result = result
		state.Session.Errors = result.Errors
		// Partial failure is still a completed run: the verdict carries
		// the per-row errors and the error file token.
		state.Session.Status = models.StatusCompleted
		state.Session.Progress = models.ImportProgress{
			Current:       result.TotalCount,
			Total:         result.TotalCount,
			Percentage:    100,
			Status:        models.StatusCompleted,
			Message:       fmt.Sprintf("Imported %d of %d rows", result.SuccessCount, result.TotalCount),
			SuccessCount:  result.SuccessCount,
			ErrorCount:    result.ErrorCount,
			HasErrorFile:  result.HasErrorFile,
			ErrorFileName: result.ErrorFileName,
		}
	}
	m.mu.Unlock()

	if m.drafts != nil {
		m.drafts.Delete(cfg.EntityKey)
	}
	if m.history != nil {
		if err := m.history.Record(cfg.EntityKey, source, result); err != nil {
			m.log.Warn("failed to record import history", zap.Error(err))
		}
	}
}

// buildPayload picks the submission shape: an unedited file upload is
// passed through as the original spreadsheet, anything hand-touched is
// sent as structured rows.
func (m *Manager) buildPayload(state *sessionState) (importcfg.Payload, error) {
	m.mu.RLock()
	fileID := state.FileID
	edited := state.Edited
	fileName := state.Session.FileName
	rows := state.Rows
	m.mu.RUnlock()

	if fileID != "" && !edited {
		path, err := m.files.GetFilePath(fileID)
		if err != nil {
			return importcfg.Payload{}, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return importcfg.Payload{}, fmt.Errorf("failed to read staged file: %w", err)
		}
		return importcfg.Payload{File: data, FileName: fileName}, nil
	}

	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Values)
	}
	return importcfg.Payload{Rows: out}, nil
}

// Cancel tears down a session and everything staged for it.
func (m *Manager) Cancel(sessionID string) error {
	m.mu.Lock()
	state, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if state.Submitting {
		m.mu.Unlock()
		return ErrSubmitInFlight
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if state.FileID != "" {
		m.files.Delete(state.FileID)
	}
	if m.drafts != nil {
		m.drafts.Delete(state.Session.EntityKey)
	}
	return nil
}

// Get returns a snapshot of a session by ID.
func (m *Manager) Get(sessionID string) (*models.ImportSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	snapshot := *state.Session
	return &snapshot, true
}

// Rows returns the full working row set, used by the inline editor.
func (m *Manager) Rows(sessionID string) ([]models.ParsedRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	rows := make([]models.ParsedRow, len(state.Rows))
	copy(rows, state.Rows)
	return rows, true
}

// Progress returns the current progress snapshot for polling and the
// websocket stream.
func (m *Manager) Progress(sessionID string) (models.ImportProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return models.ImportProgress{}, false
	}
	return state.Session.Progress, true
}

// Touch updates the LastAccessed timestamp so active sessions survive
// cleanup.
func (m *Manager) Touch(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

// CleanupOldSessions removes finished sessions older than maxAge, but
// keeps sessions accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	for id, state := range m.sessions {
		if state.Session.Status != models.StatusCompleted &&
			state.Session.Status != models.StatusError {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) {
			continue
		}
		if state.LastAccessed.Before(cutoff) {
			if state.FileID != "" {
				m.files.Delete(state.FileID)
			}
			delete(m.sessions, id)
			m.log.Debug("cleaned up aged import session", zap.String("session", id[:8]))
		}
	}
}

// evictIfNeeded removes finished sessions when at capacity so a new one
// can start.
func (m *Manager) evictIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	toFree := len(m.sessions) - MaxSessions + 1
	for id, state := range m.sessions {
		if toFree == 0 {
			break
		}
		if state.Session.Status != models.StatusCompleted &&
			state.Session.Status != models.StatusError {
			continue
		}
		if state.FileID != "" {
			m.files.Delete(state.FileID)
		}
		delete(m.sessions, id)
		toFree--
	}
}

func (m *Manager) failSession(sessionID, kind, detail string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	state.Session.Status = models.StatusError
	state.Session.ErrorKind = kind
	state.Session.ErrorDetail = detail
	state.Session.Progress.Status = models.StatusError
	state.Session.Progress.Message = detail
}

// setStage mutates a session the caller already holds the lock for (or
// that is not yet published).
func (m *Manager) setStage(s *models.ImportSession, status models.ImportStatus, pct float64, msg string) {
	s.Status = status
	s.Progress.Status = status
	s.Progress.Percentage = pct
	s.Progress.Message = msg
}

func (m *Manager) updateStage(sessionID string, status models.ImportStatus, pct float64, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok {
		m.setStage(state.Session, status, pct, msg)
	}
}

// saveDraft persists the current rows if a draft store is configured.
func (m *Manager) saveDraft(state *sessionState) {
	if m.drafts == nil {
		return
	}

	m.mu.RLock()
	draft := &Draft{
		EntityKey: state.Session.EntityKey,
		Source:    state.Session.Source,
		FileName:  state.Session.FileName,
		Rows:      state.Rows,
	}
	m.mu.RUnlock()

	if len(draft.Rows) == 0 {
		return
	}
	if err := m.drafts.Save(draft); err != nil {
		m.log.Warn("failed to save draft", zap.Error(err))
	}
}
