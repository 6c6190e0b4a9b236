package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockNotifier struct {
	mu        sync.Mutex
	errors    []string
	redirects int
}

func (n *mockNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *mockNotifier) RedirectToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects++
}

func (n *mockNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func newTestClient(upstream string) (*Client, *MemoryTokenStore, *mockNotifier) {
	tokens := NewMemoryTokenStore()
	notifier := &mockNotifier{}
	c := New(&Resolver{Deployed: true, Prefix: upstream}, tokens, notifier, zap.NewNop())
	return c, tokens, notifier
}

func writeAuthError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func TestExpiredSessionRefreshAndRetryOnce(t *testing.T) {
	var refreshCalls, dataCalls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/refresh-token":
			atomic.AddInt32(&refreshCalls, 1)
			json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh-token"})
		case "/warehouses":
			n := atomic.AddInt32(&dataCalls, 1)
			if n == 1 {
				writeAuthError(w, http.StatusUnauthorized, "SESSION_EXPIRED", "会话已过期")
				return
			}
			assert.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, tokens, _ := newTestClient(srv.URL)
	tokens.Set("stale-token")

	resp, err := c.Request(context.Background(), http.MethodGet, "/warehouses", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&dataCalls))
	assert.Equal(t, "fresh-token", tokens.Get())
}

func TestConcurrentExpiryCoalescesRefresh(t *testing.T) {
	var refreshCalls int32
	var mu sync.Mutex
	firstAttempt := map[string]bool{}

	// Both first attempts are held at this barrier so their 401s land in
	// the same window; the slow refresh keeps that window open while the
	// second caller joins the in-flight refresh.
	barrier := make(chan struct{}, 2)
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh-token" {
			atomic.AddInt32(&refreshCalls, 1)
			time.Sleep(300 * time.Millisecond)
			json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh-token"})
			return
		}
		mu.Lock()
		seen := firstAttempt[r.URL.Path]
		firstAttempt[r.URL.Path] = true
		mu.Unlock()
		if !seen {
			barrier <- struct{}{}
			<-release
			writeAuthError(w, http.StatusUnauthorized, "SESSION_EXPIRED", "session expired")
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"ok": "true"})
	}))
	defer srv.Close()

	go func() {
		<-barrier
		<-barrier
		close(release)
	}()

	c, tokens, _ := newTestClient(srv.URL)
	tokens.Set("stale-token")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, path := range []string{"/warehouses", "/customers"} {
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			_, errs[i] = c.Request(context.Background(), http.MethodGet, path, nil, nil)
		}(i, path)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls),
		"concurrent expired requests must share one refresh call")
}

func TestRetryThatFailsAgainIsNotRetried(t *testing.T) {
	var refreshCalls, dataCalls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh-token" {
			atomic.AddInt32(&refreshCalls, 1)
			json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh-token"})
			return
		}
		atomic.AddInt32(&dataCalls, 1)
		writeAuthError(w, http.StatusUnauthorized, "SESSION_EXPIRED", "会话已过期")
	}))
	defer srv.Close()

	c, tokens, notifier := newTestClient(srv.URL)
	tokens.Set("stale-token")

	_, err := c.Request(context.Background(), http.MethodGet, "/warehouses", nil, nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refreshCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&dataCalls), "original plus exactly one retry")
	assert.Empty(t, tokens.Get())
	assert.Equal(t, 1, notifier.redirects)
}

func TestRefreshFailureMapsKnownCodes(t *testing.T) {
	cases := []struct {
		code    string
		message string
	}{
		{CodeSessionNotFound, "Session not found, it may have timed out or the user signed out"},
		{CodeSessionInactive, "Session is no longer active, the account may be signed in elsewhere"},
		{CodeSessionExpired, "Session has expired, please sign in again"},
		{CodeUserDisabled, "Your account has been disabled, please contact an administrator"},
		{CodeUserNotFound, "User does not exist, please contact an administrator"},
		{CodeInvalidUserIdentity, "User identity could not be verified, please sign in again"},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/refresh-token" {
					writeAuthError(w, http.StatusUnauthorized, tc.code, "refresh rejected")
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "令牌已过期")
			}))
			defer srv.Close()

			c, tokens, _ := newTestClient(srv.URL)
			tokens.Set("stale-token")

			_, err := c.Request(context.Background(), http.MethodGet, "/warehouses", nil, nil)
			var refreshErr *RefreshError
			require.ErrorAs(t, err, &refreshErr)
			assert.Equal(t, tc.code, refreshErr.Code)
			assert.Equal(t, tc.message, refreshErr.Message)
			assert.Empty(t, tokens.Get())
		})
	}
}

func TestLoginFailureDoesNotRecurse(t *testing.T) {
	var refreshCalls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/refresh-token" {
			atomic.AddInt32(&refreshCalls, 1)
		}
		writeAuthError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "用户名或密码错误")
	}))
	defer srv.Close()

	c, tokens, notifier := newTestClient(srv.URL)
	tokens.Set("old")

	_, err := c.Login(context.Background(), "admin", "wrong")
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Zero(t, atomic.LoadInt32(&refreshCalls), "login 401 must not attempt refresh")
	assert.Empty(t, tokens.Get())
	assert.Equal(t, 1, notifier.redirects)
}

func TestNetworkErrorKeepsToken(t *testing.T) {
	c, tokens, notifier := newTestClient("http://127.0.0.1:1")
	tokens.Set("held-token")

	_, err := c.Request(context.Background(), http.MethodGet, "/warehouses", nil, nil)
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "held-token", tokens.Get(), "transport failure is not evidence of invalid auth")
	assert.Equal(t, 1, notifier.errorCount())
	assert.Zero(t, notifier.redirects)
}

func TestAuthRelated500ClearsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAuthError(w, http.StatusInternalServerError, "", "认证服务异常")
	}))
	defer srv.Close()

	c, tokens, notifier := newTestClient(srv.URL)
	tokens.Set("held-token")

	_, err := c.Request(context.Background(), http.MethodGet, "/warehouses", nil, nil)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Empty(t, tokens.Get())
	assert.Equal(t, 1, notifier.redirects)
}

func TestGeneric500Surfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "database deadlock"})
	}))
	defer srv.Close()

	c, tokens, notifier := newTestClient(srv.URL)
	tokens.Set("held-token")

	_, err := c.Request(context.Background(), http.MethodGet, "/warehouses", nil, nil)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusInternalServerError, upErr.Status)
	assert.Equal(t, "held-token", tokens.Get(), "generic 5xx must not clear the credential")
	assert.Equal(t, 1, notifier.errorCount())

	// Callers opting into local handling suppress the global notification.
	_, err = c.Request(context.Background(), http.MethodGet, "/warehouses", nil, &Options{HandleErrorLocally: true})
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 1, notifier.errorCount())
}

func TestBaseURLResolvedPerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	settingsPath := t.TempDir() + "/serverSettings.json"
	settings := NewSettingsStore(settingsPath)
	resolver := &Resolver{Settings: settings}
	assert.Equal(t, DefaultDevBaseURL, resolver.BaseURL())

	require.NoError(t, settings.Save(ServerSettings{IP: "10.0.0.5", Port: 9000}))
	assert.Equal(t, "http://10.0.0.5:9000", resolver.BaseURL(),
		"settings changes take effect on the next request")

	deployed := &Resolver{Deployed: true, Prefix: "/api"}
	assert.Equal(t, "/api", deployed.BaseURL())
}

func TestLoginCapturesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "admin", r.FormValue("username"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "issued-token"})
	}))
	defer srv.Close()

	c, tokens, _ := newTestClient(srv.URL)
	token, err := c.Login(context.Background(), "admin", "secret")
	require.NoError(t, err)
	assert.Equal(t, "issued-token", token)
	assert.Equal(t, "issued-token", tokens.Get())
}
