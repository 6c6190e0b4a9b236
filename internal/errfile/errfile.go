// Package errfile resolves server-issued error-file tokens and fetches
// the rejected-row spreadsheets they point at.
package errfile

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wms-admin/gateway/internal/client"
)

// DownloadError is an error-file fetch failure with a user-facing
// message distinct per cause.
type DownloadError struct {
	Status  int
	Message string
}

func (e *DownloadError) Error() string { return e.Message }

// ResolveFileName normalizes an opaque error-file token to a pure
// filename. Tokens arrive in four shapes, checked in priority order:
// a file_name= query parameter, a file_path= query parameter, a bare
// path, or an already-pure filename.
func ResolveFileName(token string) string {
	if v := queryParam(token, "file_name"); v != "" {
		return v
	}
	if v := queryParam(token, "file_path"); v != "" {
		return lastSegment(v)
	}
	if strings.ContainsAny(token, "/\\") {
		return lastSegment(token)
	}
	return token
}

func queryParam(token, name string) string {
	marker := name + "="
	idx := strings.Index(token, marker)
	if idx < 0 {
		return ""
	}
	value := token[idx+len(marker):]
	if amp := strings.IndexByte(value, '&'); amp >= 0 {
		value = value[:amp]
	}
	if decoded, err := url.QueryUnescape(value); err == nil {
		value = decoded
	}
	return value
}

func lastSegment(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if idx := strings.LastIndexByte(p, '/'); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

// Downloader fetches error spreadsheets through the authenticated API
// client.
type Downloader struct {
	api *client.Client
}

func NewDownloader(api *client.Client) *Downloader {
	return &Downloader{api: api}
}

// Fetch retrieves the error file for an entity type. The token is
// normalized first and round-tripped to the server verbatim as the
// file_name parameter. The raw send path is used on purpose: a 401 here
// must not trigger refresh-and-retry, it maps straight to a download
// failure message.
func (d *Downloader) Fetch(ctx context.Context, entityKey, token string) (string, []byte, error) {
	if d.api.Tokens().Get() == "" {
		return "", nil, &DownloadError{Message: "Not signed in, cannot download the error file"}
	}

	name := ResolveFileName(token)
	path := fmt.Sprintf("/%ss/download-error-file?file_name=%s", entityKey, url.QueryEscape(name))

	resp, err := d.api.Send(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return "", nil, &DownloadError{Message: "Network error while downloading, check the server connection"}
	}
	if resp.Status != http.StatusOK {
		return "", nil, &DownloadError{Status: resp.Status, Message: statusMessage(resp.Status)}
	}
	if len(resp.Body) == 0 {
		// A zero-byte spreadsheet is never valid, even on HTTP 200.
		return "", nil, &DownloadError{Status: resp.Status, Message: "The server returned an empty file, please retry the import"}
	}
	return name, resp.Body, nil
}

func statusMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Sign-in expired, please sign in again before downloading"
	case http.StatusForbidden:
		return "You do not have permission to download this error file"
	case http.StatusNotFound:
		return "The error file has expired or been removed, please rerun the import"
	case http.StatusInternalServerError:
		return "The server failed to produce the error file, please try again later"
	default:
		return fmt.Sprintf("Error file download failed (HTTP %d)", status)
	}
}
