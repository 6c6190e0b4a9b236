// websocket.go - Live import progress stream
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/wms-admin/gateway/internal/importer"
	"github.com/wms-admin/gateway/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway fronts a single admin UI; origin policy is handled by
	// the CORS middleware on the HTTP side.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressHandler streams session progress over a websocket, polling the
// orchestrator until the session reaches a terminal state.
type ProgressHandler struct {
	manager      *importer.Manager
	pollInterval time.Duration
}

func NewProgressHandler(manager *importer.Manager, pollInterval time.Duration) *ProgressHandler {
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &ProgressHandler{manager: manager, pollInterval: pollInterval}
}

// HandleProgressStream upgrades to a websocket and pushes progress
// snapshots. A changed snapshot is sent immediately; the final snapshot
// for completed and error states is always delivered before close.
func (h *ProgressHandler) HandleProgressStream(c echo.Context) error {
	id := c.Param("id")
	if _, ok := h.manager.Get(id); !ok {
		return NewNotFoundError("import session", id)
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Drain client frames so close messages are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	var last models.ImportProgress
	sent := false

	for {
		progress, ok := h.manager.Progress(id)
		if !ok {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session removed"),
				time.Now().Add(time.Second))
			return nil
		}

		if !sent || progress != last {
			h.manager.Touch(id)
			if err := conn.WriteJSON(progress); err != nil {
				return nil
			}
			last = progress
			sent = true
		}

		if progress.Status == models.StatusCompleted || progress.Status == models.StatusError {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		}

		select {
		case <-done:
			return nil
		case <-ticker.C:
		}
	}
}
