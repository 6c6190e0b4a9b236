package client

import (
	"fmt"
	"strings"
)

// NetworkError means the transport itself was unreachable (connection
// refused, timeout, DNS failure). It is assumed transient and never clears
// the held credential.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream unreachable: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UserMessage is the single user-facing notification for a transport
// failure.
func (e *NetworkError) UserMessage() string {
	return "Network connection failed, please check the network and retry"
}

// AuthError is a 401 or auth-classified 5xx. It always implies the held
// token was cleared and the UI should return to the login boundary.
type AuthError struct {
	Code    string
	Message string
	Status  int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed [%s]: %s", e.Code, e.Message)
}

// RefreshError is the failure of a token refresh attempt, carrying the
// server-issued refresh-failure code mapped to a fixed user message.
type RefreshError struct {
	Code    string
	Message string
	Err     error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed [%s]: %s", e.Code, e.Message)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// UpstreamError is a generic (non-auth) server-side failure.
type UpstreamError struct {
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("upstream error %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("upstream error %d", e.Status)
}

// Known refresh-failure codes issued by the session service.
const (
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionInactive     = "SESSION_INACTIVE"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeUserDisabled        = "USER_DISABLED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidUserIdentity = "INVALID_USER_IDENTITY"
)

var refreshFailureMessages = map[string]string{
	CodeSessionNotFound:     "Session not found, it may have timed out or the user signed out",
	CodeSessionInactive:     "Session is no longer active, the account may be signed in elsewhere",
	CodeSessionExpired:      "Session has expired, please sign in again",
	CodeUserDisabled:        "Your account has been disabled, please contact an administrator",
	CodeUserNotFound:        "User does not exist, please contact an administrator",
	CodeInvalidUserIdentity: "User identity could not be verified, please sign in again",
}

// refreshFailureMessage maps a refresh-failure code to its fixed user
// message, falling back to the raw server detail.
func refreshFailureMessage(code, detail string) string {
	if msg, ok := refreshFailureMessages[code]; ok {
		return msg
	}
	if detail != "" {
		return detail
	}
	return "Authentication has expired, please sign in again"
}

// authFailureMessage maps a non-expiry 401 code to a user message,
// preferring the raw server detail as fallback.
func authFailureMessage(code, detail string) string {
	switch code {
	case CodeUserDisabled:
		return refreshFailureMessages[CodeUserDisabled]
	case CodeUserNotFound:
		return refreshFailureMessages[CodeUserNotFound]
	}
	if detail != "" {
		return detail
	}
	return "Authentication failed, please sign in again"
}

// Marker sets used to classify upstream error payloads. The upstream WMS
// backend reports details in Chinese, so both Chinese and English markers
// are matched.
var (
	authDetailMarkers = []string{
		"认证", "token", "session", "用户", "登录", "密码", "令牌",
		"authentication", "password", "user",
	}
	authCodeMarkers = []string{"AUTH", "SESSION", "TOKEN", "USER"}

	expiryDetailMarkers = []string{"令牌已过期", "会话已过期", "expired", "session"}
	expiryCodeMarkers   = []string{"SESSION", "EXPIRED"}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// isAuthRelated classifies a server-error payload as auth-related.
func isAuthRelated(detail, code string) bool {
	return containsAny(strings.ToLower(detail), lowered(authDetailMarkers)) ||
		containsAny(code, authCodeMarkers)
}

// isExpiry reports whether a 401 payload indicates an expired token or
// session, the only 401 case eligible for refresh-and-retry.
func isExpiry(detail, code string) bool {
	return containsAny(strings.ToLower(detail), lowered(expiryDetailMarkers)) ||
		containsAny(code, expiryCodeMarkers)
}

func lowered(markers []string) []string {
	out := make([]string, len(markers))
	for i, m := range markers {
		out[i] = strings.ToLower(m)
	}
	return out
}
