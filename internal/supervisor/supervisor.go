// Package supervisor keeps at most one live transport session, reconnecting
// with exponential backoff after unexpected closes. Inbound messages are
// republished to a single-consumer channel in arrival order.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dcampos/wagate/internal/backoff"
	"github.com/dcampos/wagate/internal/domain"
	"github.com/dcampos/wagate/internal/observability"
	"github.com/dcampos/wagate/internal/transport"
)

const messageBuffer = 64

type Supervisor struct {
	client  transport.Client
	creds   transport.CredentialStore
	policy  backoff.Exponential
	logger  *zap.Logger
	metrics *observability.Metrics

	mu          sync.RWMutex
	state       domain.SessionState
	session     transport.Session
	pairingCode string
	attempts    int

	messages chan domain.Message
	sleep    func(ctx context.Context, d time.Duration) error
}

func New(client transport.Client, creds transport.CredentialStore, policy backoff.Exponential, logger *zap.Logger) (*Supervisor, error) {
	if client == nil {
		return nil, fmt.Errorf("transport client is required")
	}
	if creds == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Supervisor{
		client:   client,
		creds:    creds,
		policy:   policy,
		logger:   logger,
		state:    domain.SessionDisconnected,
		messages: make(chan domain.Message, messageBuffer),
		sleep:    sleepWithContext,
	}, nil
}

func (s *Supervisor) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Messages returns the ordered stream of admissible inbound messages. The
// channel is closed when Run returns.
func (s *Supervisor) Messages() <-chan domain.Message {
	return s.messages
}

// Session returns the live handle, or nil while no session is open.
func (s *Supervisor) Session() transport.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != domain.SessionOpen {
		return nil
	}
	return s.session
}

func (s *Supervisor) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// PairingCode returns the last code surfaced by the transport, if any. It is
// display-only; the supervisor never blocks on pairing.
func (s *Supervisor) PairingCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pairingCode
}

// Run drives the session lifecycle until context cancellation or an explicit
// logout. Send errors on the live session are the caller's problem; Run only
// guarantees a session is eventually available.
func (s *Supervisor) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer close(s.messages)
	defer s.setState(domain.SessionDisconnected)

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(domain.SessionConnecting)

		storedCreds, err := s.creds.Load()
		if err != nil {
			return fmt.Errorf("failed to load credentials: %w", err)
		}

		sess, err := s.client.Dial(ctx, storedCreds)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("transport dial failed", zap.Error(err))
			if waitErr := s.backoffWait(ctx); waitErr != nil {
				return nil
			}
			continue
		}

		logout := s.consume(ctx, sess)
		s.clearSession()

		if logout {
			s.setState(domain.SessionLoggedOut)
			s.logger.Error("session logged out; manual credential bootstrap required")
			return domain.ErrLoggedOut
		}
		if ctx.Err() != nil {
			return nil
		}

		s.setState(domain.SessionClosed)
		if err := s.backoffWait(ctx); err != nil {
			return nil
		}
	}
}

// consume drains one session's event stream. Returns true when the close was
// an explicit logout.
func (s *Supervisor) consume(ctx context.Context, sess transport.Session) bool {
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sess.Events():
			if !ok {
				return false
			}

			switch ev := ev.(type) {
			case transport.OpenEvent:
				s.setOpen(sess)
				s.logger.Info("session open", zap.String("selfId", ev.SelfID))
			case transport.PairingEvent:
				s.setPairing(ev.Code)
				s.logger.Info("pairing code received; confirm it on the paired device",
					zap.String("code", ev.Code),
				)
			case transport.CredentialsEvent:
				if err := s.creds.Save(ev.Data); err != nil {
					s.logger.Error("failed to persist credentials", zap.Error(err))
				}
			case transport.MessageEvent:
				select {
				case <-ctx.Done():
					return false
				case s.messages <- ev.Message:
				}
			case transport.ClosedEvent:
				if ev.Err != nil {
					s.logger.Warn("session closed unexpectedly",
						zap.String("reason", ev.Reason),
						zap.Error(ev.Err),
					)
				} else {
					s.logger.Info("session closed", zap.String("reason", ev.Reason))
				}
				return ev.Logout
			}
		}
	}
}

func (s *Supervisor) backoffWait(ctx context.Context) error {
	s.mu.Lock()
	attempt := s.attempts
	s.attempts++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IncReconnect()
	}

	delay := s.policy.Delay(attempt)
	s.logger.Info("scheduling reconnect",
		zap.Int("attempt", attempt+1),
		zap.Duration("delay", delay),
	)
	return s.sleep(ctx, delay)
}

func (s *Supervisor) setOpen(sess transport.Session) {
	s.mu.Lock()
	s.state = domain.SessionOpen
	s.session = sess
	s.attempts = 0
	s.pairingCode = ""
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetSessionOpen(true)
	}
}

func (s *Supervisor) setPairing(code string) {
	s.mu.Lock()
	s.state = domain.SessionPairing
	s.pairingCode = code
	s.mu.Unlock()
}

func (s *Supervisor) clearSession() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetSessionOpen(false)
	}
}

func (s *Supervisor) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
