package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// Session holds the four cookie values of an authenticated web session.
// ClientID is the browser identifier sent as the "mid" cookie.
type Session struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	CSRFToken string `json:"csrf_token"`
	ClientID  string `json:"client_id"`
}

// Validate reports which values are missing
func (s *Session) Validate() error {
	if s == nil {
		return ErrCredentialsNotFound
	}
	var missing []string
	if s.SessionID == "" {
		missing = append(missing, "session id")
	}
	if s.UserID == "" {
		missing = append(missing, "user id")
	}
	if s.CSRFToken == "" {
		missing = append(missing, "csrf token")
	}
	if s.ClientID == "" {
		missing = append(missing, "client id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// IsEmpty reports whether no value is set
func (s *Session) IsEmpty() bool {
	return s == nil || (s.SessionID == "" && s.UserID == "" && s.CSRFToken == "" && s.ClientID == "")
}

// CookieHeader renders the Cookie header value for requests
func (s *Session) CookieHeader() string {
	return fmt.Sprintf("sessionid=%s; ds_user_id=%s; csrftoken=%s; mid=%s",
		s.SessionID, s.UserID, s.CSRFToken, s.ClientID)
}

// String renders the session with every value masked, so a Session can be
// passed to a logger or fmt verb without leaking it.
func (s Session) String() string {
	return fmt.Sprintf("Session{session_id=%s user_id=%s csrf_token=%s client_id=%s}",
		maskString(s.SessionID), maskString(s.UserID), maskString(s.CSRFToken), maskString(s.ClientID))
}

// GoString keeps %#v masked as well
func (s Session) GoString() string {
	return s.String()
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if s == "" {
		return "<unset>"
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
