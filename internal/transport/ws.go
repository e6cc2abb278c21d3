package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dcampos/wagate/internal/domain"
)

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 25 * time.Second
	pongTimeout      = 70 * time.Second
	eventBuffer      = 64
)

// Gateway frame vocabulary. Requests carry a tag echoed by the response.
const (
	frameAuth         = "auth"
	frameOpen         = "open"
	framePairing      = "pairing"
	frameCredentials  = "credentials"
	frameMessage      = "message"
	frameSend         = "send"
	frameAck          = "ack"
	frameExists       = "exists"
	frameExistsResult = "exists_result"
	frameClose        = "close"

	closeReasonLoggedOut = "logged_out"
)

type frame struct {
	Type        string          `json:"type"`
	Tag         string          `json:"tag,omitempty"`
	SelfID      string          `json:"selfId,omitempty"`
	Code        string          `json:"code,omitempty"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
	Message     *messageBody    `json:"message,omitempty"`
	Recipient   string          `json:"recipient,omitempty"`
	Text        string          `json:"text,omitempty"`
	Registered  *bool           `json:"registered,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Error       string          `json:"error,omitempty"`
}

type messageBody struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Chat      string `json:"chat"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

var _ Client = (*WSClient)(nil)

// WSClient dials the messaging gateway over a websocket.
type WSClient struct {
	url    string
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewWSClient(url string, logger *zap.Logger) (*WSClient, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("transport url is required")
	}
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return nil, fmt.Errorf("transport url must use ws:// or wss:// scheme, got %q", url)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WSClient{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger: logger,
	}, nil
}

func (c *WSClient) Dial(ctx context.Context, creds []byte) (Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial transport: %w", err)
	}

	s := &wsSession{
		conn:    conn,
		logger:  c.logger,
		events:  make(chan Event, eventBuffer),
		pending: make(map[string]chan frame),
		done:    make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))

	auth := frame{Type: frameAuth}
	if len(creds) > 0 {
		auth.Credentials = json.RawMessage(creds)
	}
	if err := s.writeFrame(auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to authenticate session: %w", err)
	}

	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

var _ Session = (*wsSession)(nil)

type wsSession struct {
	conn   *websocket.Conn
	logger *zap.Logger
	events chan Event

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan frame

	closeOnce sync.Once
	done      chan struct{}
}

func (s *wsSession) Events() <-chan Event {
	return s.events
}

func (s *wsSession) Send(ctx context.Context, recipient string, message string) error {
	_, err := s.request(ctx, frame{Type: frameSend, Recipient: recipient, Text: message})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (s *wsSession) IsRegistered(ctx context.Context, recipient string) (bool, error) {
	resp, err := s.request(ctx, frame{Type: frameExists, Recipient: recipient})
	if err != nil {
		return false, fmt.Errorf("failed to check recipient registration: %w", err)
	}
	return resp.Registered != nil && *resp.Registered, nil
}

func (s *wsSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *wsSession) readLoop() {
	defer close(s.events)

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.failPending()
			select {
			case <-s.done:
				// Close() already ran; the consumer asked for this. Deliver
				// the event only if there is room, the channel close below is
				// the real termination signal.
				select {
				case s.events <- ClosedEvent{Reason: "closed locally"}:
				default:
				}
			default:
				s.emit(ClosedEvent{Reason: "connection lost", Err: err})
			}
			return
		}

		switch f.Type {
		case frameOpen:
			if !s.emit(OpenEvent{SelfID: f.SelfID}) {
				return
			}
		case framePairing:
			if !s.emit(PairingEvent{Code: f.Code}) {
				return
			}
		case frameCredentials:
			if !s.emit(CredentialsEvent{Data: []byte(f.Credentials)}) {
				return
			}
		case frameMessage:
			if f.Message == nil {
				s.logger.Warn("message frame without body")
				continue
			}
			msg := domain.Message{
				ID:         f.Message.ID,
				Sender:     f.Message.Sender,
				Chat:       f.Message.Chat,
				Text:       f.Message.Text,
				ReceivedAt: time.UnixMilli(f.Message.Timestamp).UTC(),
			}
			if err := msg.Validate(); err != nil {
				s.logger.Warn("rejecting malformed inbound message", zap.Error(err))
				continue
			}
			if !s.emit(MessageEvent{Message: msg}) {
				return
			}
		case frameAck, frameExistsResult:
			s.resolve(f)
		case frameClose:
			s.failPending()
			s.emit(ClosedEvent{
				Logout: f.Reason == closeReasonLoggedOut,
				Reason: f.Reason,
			})
			_ = s.Close()
			return
		default:
			s.logger.Debug("ignoring unknown frame", zap.String("type", f.Type))
		}
	}
}

// emit delivers an event unless the session is closing. A false return means
// the consumer is gone and the read loop should stop.
func (s *wsSession) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *wsSession) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *wsSession) request(ctx context.Context, f frame) (frame, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	f.Tag = uuid.NewString()

	ch := make(chan frame, 1)
	s.pendingMu.Lock()
	s.pending[f.Tag] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, f.Tag)
		s.pendingMu.Unlock()
	}()

	if err := s.writeFrame(f); err != nil {
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		return frame{}, ctx.Err()
	case <-s.done:
		return frame{}, fmt.Errorf("session closed")
	case resp, ok := <-ch:
		if !ok {
			return frame{}, fmt.Errorf("session closed")
		}
		if resp.Error != "" {
			return frame{}, fmt.Errorf("gateway rejected request: %s", resp.Error)
		}
		return resp, nil
	}
}

func (s *wsSession) resolve(f frame) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	ch := s.pending[f.Tag]
	if ch == nil {
		s.logger.Debug("response for unknown tag", zap.String("tag", f.Tag))
		return
	}
	// Buffered by one; sending under the lock cannot block and cannot race
	// the close in failPending.
	ch <- f
	delete(s.pending, f.Tag)
}

func (s *wsSession) failPending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	for tag, ch := range s.pending {
		close(ch)
		delete(s.pending, tag)
	}
}

func (s *wsSession) writeFrame(f frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(f)
}
