package domain

import (
	"fmt"
	"strings"
	"time"
)

// SendJob is one recipient/message pair inside an outbound batch. The batch
// owns its jobs exclusively; no state survives the batch.
type SendJob struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func (j *SendJob) Validate() error {
	if strings.TrimSpace(j.Recipient) == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if strings.TrimSpace(j.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	return nil
}

// SendResult is the per-job outcome of an outbound batch.
type SendResult struct {
	Recipient string        `json:"recipient"`
	Delay     time.Duration `json:"-"`
	DelayMS   int64         `json:"delayMs"`
	Sent      bool          `json:"sent"`
	Error     string        `json:"error,omitempty"`
}
