// Package transport abstracts the long-lived real-time messaging connection.
// The supervisor consumes it as a capability: dial once, drain the event
// stream, send through the live session.
package transport

import (
	"context"

	"github.com/dcampos/wagate/internal/domain"
)

// Event is one occurrence on a session's event stream. Events are delivered
// in arrival order to a single consumer.
type Event interface {
	event()
}

// OpenEvent signals the credential exchange finished and the session is live.
type OpenEvent struct {
	SelfID string
}

// PairingEvent carries a code the operator must confirm out-of-band. The
// session keeps progressing; nothing blocks on it.
type PairingEvent struct {
	Code string
}

// CredentialsEvent carries updated credential material that must be persisted
// before the next reconnect.
type CredentialsEvent struct {
	Data []byte
}

// MessageEvent is an inbound message from a remote sender.
type MessageEvent struct {
	Message domain.Message
}

// ClosedEvent terminates the stream. Logout means the remote side revoked the
// session; reconnecting is pointless without a new credential bootstrap.
type ClosedEvent struct {
	Logout bool
	Reason string
	Err    error
}

func (OpenEvent) event()        {}
func (PairingEvent) event()     {}
func (CredentialsEvent) event() {}
func (MessageEvent) event()     {}
func (ClosedEvent) event()      {}

// Session is one live connection. Events() is closed after a ClosedEvent.
type Session interface {
	Events() <-chan Event
	Send(ctx context.Context, recipient string, message string) error
	IsRegistered(ctx context.Context, recipient string) (bool, error)
	Close() error
}

// Client dials new sessions. creds may be nil on first bootstrap, in which
// case the server starts a pairing exchange.
type Client interface {
	Dial(ctx context.Context, creds []byte) (Session, error)
}

// CredentialStore persists opaque credential material between restarts.
type CredentialStore interface {
	// Load returns (nil, nil) when no credentials have been stored yet.
	Load() ([]byte, error)
	Save(data []byte) error
}
