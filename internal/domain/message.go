package domain

import (
	"fmt"
	"strings"
	"time"
)

// Message is an inbound transport event. Messages are ephemeral: produced by
// the transport read loop, consumed exactly once by the inbound pipeline.
type Message struct {
	ID         string    `json:"messageId"`
	Sender     string    `json:"sender"`
	Chat       string    `json:"chat"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"receivedAt"`
}

func (m *Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("%w: message id is required", ErrValidation)
	}
	if strings.TrimSpace(m.Sender) == "" {
		return fmt.Errorf("%w: sender is required", ErrValidation)
	}
	return nil
}
