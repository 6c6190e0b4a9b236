// Package client is the single chokepoint for calls to the WMS backend.
// It owns base-URL resolution, bearer-token injection and the
// classification and recovery of authentication failures: an expired 401
// triggers exactly one coalesced token refresh followed by exactly one
// retry of the original request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Notifier receives the single user-visible notification for a logical
// failure, and the signal that the UI must return to the login boundary.
type Notifier interface {
	Error(message string)
	RedirectToLogin()
}

// LogNotifier writes notifications to the structured log. The API layer
// forwards the attached user messages to the browser instead.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) Error(message string) {
	n.Log.Warn("user notification", zap.String("message", message))
}

func (n *LogNotifier) RedirectToLogin() {
	n.Log.Info("redirecting to login")
}

// Options adjust a single request.
type Options struct {
	// ContentType of the body. Multipart bodies must pass the writer's
	// form-data content type so the transport keeps the boundary; JSON is
	// the default for non-empty bodies.
	ContentType string
	// HandleErrorLocally suppresses the global notification for generic
	// server errors; the caller surfaces the failure itself.
	HandleErrorLocally bool
	// Header carries extra request headers.
	Header http.Header
}

// Response is the decoded-enough upstream reply. Statuses other than 401
// and 5xx are returned to the caller as-is for interpretation.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the response body as JSON.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// errorPayload is the upstream error body shape.
type errorPayload struct {
	Detail string `json:"detail"`
}

// Client wraps all outbound requests to the WMS backend.
type Client struct {
	httpc    *http.Client
	tokens   TokenStore
	resolver *Resolver
	notify   Notifier
	log      *zap.Logger

	// refreshGroup coalesces concurrent refresh attempts: when several
	// in-flight requests see an expired 401 at once, only one refresh
	// call reaches the network and all of them share its outcome.
	refreshGroup singleflight.Group
}

// New creates a Client. The default transport timeout matches the admin
// UI's 10s request budget.
func New(resolver *Resolver, tokens TokenStore, notify Notifier, log *zap.Logger) *Client {
	return &Client{
		httpc:    &http.Client{Timeout: 10 * time.Second},
		tokens:   tokens,
		resolver: resolver,
		notify:   notify,
		log:      log,
	}
}

// SetHTTPClient replaces the underlying transport, for tests.
func (c *Client) SetHTTPClient(h *http.Client) { c.httpc = h }

// Tokens exposes the process-wide token store.
func (c *Client) Tokens() TokenStore { return c.tokens }

// BaseURL resolves the active upstream base URL for this instant.
func (c *Client) BaseURL() string { return c.resolver.BaseURL() }

// Request performs one call with central failure classification and
// recovery. Transport failures surface as *NetworkError after a single
// notification without touching the credential. Auth failures clear the
// token, signal the login redirect and surface as *AuthError or
// *RefreshError. Generic 5xx surface as *UpstreamError.
func (c *Client) Request(ctx context.Context, method, path string, body []byte, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	return c.do(ctx, method, path, body, opts, false)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, opts *Options, retried bool) (*Response, error) {
	resp, err := c.send(ctx, method, path, body, opts, c.tokens.Get())
	if err != nil {
		c.notify.Error((&NetworkError{Err: err}).UserMessage())
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.Status >= http.StatusInternalServerError:
		return c.handleServerError(resp, opts)
	case resp.Status == http.StatusUnauthorized:
		return c.handleUnauthorized(ctx, method, path, body, opts, resp, retried)
	default:
		return resp, nil
	}
}

// Send performs the raw HTTP exchange with no classification or recovery.
// The error-file downloader uses it directly to keep its status mapping
// out of the central recovery path.
func (c *Client) Send(ctx context.Context, method, path string, body []byte, opts *Options) (*Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	return c.send(ctx, method, path, body, opts, c.tokens.Get())
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, opts *Options, token string) (*Response, error) {
	// Base URL is computed per request so settings changes take effect
	// immediately.
	fullURL := c.resolver.BaseURL() + path

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}

	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if opts.ContentType != "" {
		req.Header.Set("Content-Type", opts.ContentType)
	} else if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := readAll(httpResp)
	if err != nil {
		return nil, err
	}

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// handleServerError classifies a 5xx as auth-related or generic. Only the
// auth-related case clears the credential.
func (c *Client) handleServerError(resp *Response, opts *Options) (*Response, error) {
	detail, code := c.errorInfo(resp)

	if isAuthRelated(detail, code) {
		c.tokens.Clear()
		c.notify.Error("Authentication error, please sign in again")
		c.notify.RedirectToLogin()
		return nil, &AuthError{Code: code, Message: detail, Status: resp.Status}
	}

	if !opts.HandleErrorLocally {
		c.notify.Error("Server internal error, please retry later or contact an administrator")
	}
	return nil, &UpstreamError{Status: resp.Status, Detail: detail}
}

func (c *Client) handleUnauthorized(ctx context.Context, method, path string, body []byte, opts *Options, resp *Response, retried bool) (*Response, error) {
	detail, code := c.errorInfo(resp)

	// A login or refresh call failing with 401 is not recoverable here;
	// recursing into refresh would loop.
	if isAuthEndpoint(path) || retried || !isExpiry(detail, code) {
		if isAuthEndpoint(path) {
			c.tokens.Clear()
			c.notify.RedirectToLogin()
			return nil, &AuthError{Code: code, Message: detail, Status: resp.Status}
		}
		msg := authFailureMessage(code, detail)
		c.tokens.Clear()
		c.notify.Error(msg)
		c.notify.RedirectToLogin()
		return nil, &AuthError{Code: code, Message: msg, Status: resp.Status}
	}

	c.log.Info("auth expired, attempting token refresh",
		zap.String("path", path), zap.String("code", code))

	if err := c.refreshToken(ctx); err != nil {
		c.tokens.Clear()
		c.notify.RedirectToLogin()
		return nil, err
	}

	// Retry the original request exactly once with the new token. A retry
	// that itself 401s is not retried again.
	return c.do(ctx, method, path, body, opts, true)
}

// refreshToken issues at most one concurrent refresh call; all waiters
// share its outcome.
func (c *Client) refreshToken(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh-token", func() (any, error) {
		resp, err := c.send(ctx, http.MethodPost, "/refresh-token", nil, &Options{}, c.tokens.Get())
		if err != nil {
			return nil, &RefreshError{
				Code:    "REFRESH_FAILED",
				Message: "Authentication has expired, please sign in again",
				Err:     err,
			}
		}
		if resp.Status != http.StatusOK {
			detail, code := c.errorInfo(resp)
			if code == "" {
				code = "REFRESH_FAILED"
			}
			return nil, &RefreshError{Code: code, Message: refreshFailureMessage(code, detail)}
		}

		var payload struct {
			AccessToken string `json:"access_token"`
		}
		if err := resp.Decode(&payload); err != nil || payload.AccessToken == "" {
			return nil, &RefreshError{
				Code:    "REFRESH_FAILED",
				Message: "Authentication has expired, please sign in again",
				Err:     err,
			}
		}
		c.tokens.Set(payload.AccessToken)
		return payload.AccessToken, nil
	})
	return err
}

// errorInfo extracts the error detail from the body and the error code
// from the X-Error-Code header.
func (c *Client) errorInfo(resp *Response) (detail, code string) {
	var payload errorPayload
	if err := json.Unmarshal(resp.Body, &payload); err == nil {
		detail = payload.Detail
	}
	if detail == "" {
		detail = strings.TrimSpace(string(resp.Body))
	}
	code = resp.Header.Get("X-Error-Code")
	return detail, code
}

func isAuthEndpoint(path string) bool {
	return strings.Contains(path, "/login") || strings.Contains(path, "/refresh-token")
}

// Login authenticates against the backend with a form-encoded POST and
// captures the issued token into the process-wide store.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	resp, err := c.Request(ctx, http.MethodPost, "/login", []byte(form.Encode()), &Options{
		ContentType: "application/x-www-form-urlencoded",
	})
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		detail, code := c.errorInfo(resp)
		return "", &AuthError{Code: code, Message: detail, Status: resp.Status}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := resp.Decode(&payload); err != nil || payload.AccessToken == "" {
		return "", fmt.Errorf("login response missing access token")
	}
	c.tokens.Set(payload.AccessToken)
	return payload.AccessToken, nil
}

// Logout tells the backend to end the session and clears the held token
// regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodPost, "/logout", nil, nil)
	c.tokens.Clear()
	return err
}

func readAll(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
