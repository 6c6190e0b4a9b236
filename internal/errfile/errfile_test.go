package errfile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wms-admin/gateway/internal/client"
)

type quietNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *quietNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *quietNotifier) RedirectToLogin() {}

func newDownloader(t *testing.T, baseURL, token string) *Downloader {
	t.Helper()
	tokens := client.NewMemoryTokenStore()
	if token != "" {
		tokens.Set(token)
	}
	api := client.New(&client.Resolver{Deployed: true, Prefix: baseURL}, tokens, &quietNotifier{}, zap.NewNop())
	return NewDownloader(api)
}

func TestResolveFileName(t *testing.T) {
	cases := []struct {
		token string
		want  string
	}{
		{"http://api.example.com/warehouses/download-error-file?file_name=abc.xls", "abc.xls"},
		{"download-error-file?file_name=import%20errors.xls", "import errors.xls"},
		{"?file_name=abc.xls&other=1", "abc.xls"},
		{"?file_path=%2Ftmp%2Fxyz%2Fdef.xls", "def.xls"},
		{"/tmp/xyz/def.xls", "def.xls"},
		{`C:\exports\err_123.xls`, "err_123.xls"},
		{"plain.xls", "plain.xls"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ResolveFileName(tc.token), "token %q", tc.token)
	}
}

func TestFetchRequiresCredential(t *testing.T) {
	requested := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer server.Close()

	d := newDownloader(t, server.URL, "")
	_, _, err := d.Fetch(context.Background(), "warehouse", "err.xls")

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, dlErr.Message, "Not signed in")
	assert.False(t, requested, "request must not be attempted without a credential")
}

func TestFetchNormalizesTokenIntoRequest(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("file_name")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("PK\x03\x04 spreadsheet bytes"))
	}))
	defer server.Close()

	d := newDownloader(t, server.URL, "tok-1")
	name, body, err := d.Fetch(context.Background(), "warehouse", "/exports/batch/err_123.xls")
	require.NoError(t, err)

	assert.Equal(t, "err_123.xls", name)
	assert.NotEmpty(t, body)
	assert.Equal(t, "/warehouses/download-error-file", gotPath)
	assert.Equal(t, "err_123.xls", gotQuery)
	assert.Equal(t, "Bearer tok-1", gotAuth)
}

func TestFetchStatusMessagesAreDistinct(t *testing.T) {
	statuses := []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError}
	seen := make(map[string]bool)

	for _, status := range statuses {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		d := newDownloader(t, server.URL, "tok-1")
		_, _, err := d.Fetch(context.Background(), "warehouse", "err.xls")
		server.Close()

		var dlErr *DownloadError
		require.ErrorAs(t, err, &dlErr, "status %d", status)
		assert.Equal(t, status, dlErr.Status)
		assert.False(t, seen[dlErr.Message], "message for %d duplicates another status", status)
		seen[dlErr.Message] = true
	}
}

func TestFetchEmptyBodyIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := newDownloader(t, server.URL, "tok-1")
	_, _, err := d.Fetch(context.Background(), "warehouse", "err.xls")

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, dlErr.Message, "empty file")
}

func TestFetchNetworkFailure(t *testing.T) {
	d := newDownloader(t, "http://127.0.0.1:1", "tok-1")
	_, _, err := d.Fetch(context.Background(), "warehouse", "err.xls")

	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Contains(t, dlErr.Message, "Network error")
}
