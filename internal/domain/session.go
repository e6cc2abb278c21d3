package domain

import (
	"fmt"
	"strings"
)

// SessionState represents the lifecycle state of the transport session.
type SessionState string

const (
	SessionDisconnected SessionState = "DISCONNECTED"
	SessionConnecting   SessionState = "CONNECTING"
	SessionPairing      SessionState = "PAIRING"
	SessionOpen         SessionState = "OPEN"
	SessionClosed       SessionState = "CLOSED"
	SessionLoggedOut    SessionState = "LOGGED_OUT"
)

func (s SessionState) String() string { return string(s) }

func (s SessionState) IsValid() bool {
	switch s {
	case SessionDisconnected, SessionConnecting, SessionPairing, SessionOpen, SessionClosed, SessionLoggedOut:
		return true
	}
	return false
}

// Terminal reports whether the supervisor stops reconnecting in this state.
func (s SessionState) Terminal() bool {
	return s == SessionLoggedOut
}

func ParseSessionStateFromString(s string) (SessionState, error) {
	st := SessionState(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid session state %q", ErrValidation, s)
	}
	return st, nil
}
