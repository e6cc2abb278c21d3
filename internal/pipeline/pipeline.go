// Package pipeline is the single consumer of the supervisor's inbound
// stream: admission through the sender gate, then webhook delivery. Messages
// are processed one at a time so per-sender admission decisions never race.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dcampos/wagate/internal/domain"
	"github.com/dcampos/wagate/internal/observability"
)

// Admitter decides whether an inbound message qualifies for forwarding.
type Admitter interface {
	Admit(ctx context.Context, sender string, text string) (bool, error)
}

// Deliverer forwards one payload downstream.
type Deliverer interface {
	Deliver(ctx context.Context, payload any) error
}

// eventPayload is the webhook body for a relayed inbound message. The
// message id doubles as the downstream idempotency key.
type eventPayload struct {
	MessageID  string    `json:"messageId"`
	Sender     string    `json:"sender"`
	Chat       string    `json:"chat,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type Pipeline struct {
	messages <-chan domain.Message
	gate     Admitter
	relay    Deliverer
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func New(messages <-chan domain.Message, gate Admitter, relay Deliverer, logger *zap.Logger) (*Pipeline, error) {
	if messages == nil {
		return nil, fmt.Errorf("message stream is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("gate is required")
	}
	if relay == nil {
		return nil, fmt.Errorf("relay is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		messages: messages,
		gate:     gate,
		relay:    relay,
		logger:   logger,
	}, nil
}

func (p *Pipeline) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// Run processes inbound messages until the stream closes or the context is
// cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-p.messages:
			if !ok {
				return nil
			}
			p.process(ctx, msg)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, msg domain.Message) {
	ctx = observability.WithCorrelationID(ctx, msg.ID)
	logger := observability.WithContextLogger(p.logger, ctx)

	admitted, err := p.gate.Admit(ctx, msg.Sender, msg.Text)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncEventRejected("gate_error")
		}
		logger.Error("sender gate failed; dropping event", zap.Error(err))
		return
	}
	if !admitted {
		if p.metrics != nil {
			p.metrics.IncEventRejected("window_closed")
		}
		logger.Debug("event outside admission window",
			zap.String("sender", msg.Sender),
		)
		return
	}

	if p.metrics != nil {
		p.metrics.IncEventAdmitted()
	}

	payload := eventPayload{
		MessageID:  msg.ID,
		Sender:     msg.Sender,
		Chat:       msg.Chat,
		Text:       msg.Text,
		ReceivedAt: msg.ReceivedAt,
	}

	// No durable outbox: an undelivered event is dropped, not queued.
	if err := p.relay.Deliver(ctx, payload); err != nil {
		logger.Warn("dropping undelivered event", zap.Error(err))
	}
}
