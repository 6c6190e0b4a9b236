// handlers_auth.go - Login/logout proxy to the upstream API
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wms-admin/gateway/internal/client"
)

// AuthHandler proxies credential operations to the upstream API and
// manages the held token.
type AuthHandler struct {
	api *client.Client
}

func NewAuthHandler(api *client.Client) *AuthHandler {
	return &AuthHandler{api: api}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin exchanges credentials for an upstream token. The token is
// held by the gateway; the response only reports success.
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.Username == "" || req.Password == "" {
		return NewBadRequestError("username and password are required", nil)
	}

	if _, err := h.api.Login(c.Request().Context(), req.Username, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"authenticated": true})
}

// HandleLogout signs out upstream. The held token is cleared even when
// the upstream call fails.
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	h.api.Logout(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{"authenticated": false})
}

// HandleAuthStatus reports whether a token is currently held.
func (h *AuthHandler) HandleAuthStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"authenticated": h.api.Tokens().Get() != "",
	})
}
