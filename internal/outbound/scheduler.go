// Package outbound sequences bulk message sends with randomized spacing so
// the batch never bursts against the transport's abuse detection.
package outbound

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dcampos/wagate/internal/domain"
	"github.com/dcampos/wagate/internal/observability"
)

const (
	defaultMaxBatch = 50
	defaultMinDelay = 25 * time.Second
	defaultMaxDelay = 30 * time.Second
)

// Sender is the slice of the transport session the scheduler needs.
type Sender interface {
	Send(ctx context.Context, recipient string, message string) error
	IsRegistered(ctx context.Context, recipient string) (bool, error)
}

// SessionSource returns the live session, or nil while none is open.
type SessionSource func() Sender

type Scheduler struct {
	source   SessionSource
	maxBatch int
	minDelay time.Duration
	maxDelay time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics

	sleep   func(ctx context.Context, d time.Duration) error
	randDur func(min, max time.Duration) time.Duration
}

func New(source SessionSource, maxBatch int, minDelay, maxDelay time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if source == nil {
		return nil, fmt.Errorf("session source is required")
	}
	if maxBatch < 1 {
		maxBatch = defaultMaxBatch
	}
	if minDelay <= 0 {
		minDelay = defaultMinDelay
	}
	if maxDelay < minDelay {
		maxDelay = defaultMaxDelay
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		source:   source,
		maxBatch: maxBatch,
		minDelay: minDelay,
		maxDelay: maxDelay,
		logger:   logger,
		sleep:    sleepWithContext,
		randDur:  uniformDuration,
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SendBatch schedules every job with a cumulative randomized delay and runs
// them concurrently. Oversized batches are rejected outright with no partial
// processing. Per-job failures never abort sibling jobs.
func (s *Scheduler) SendBatch(ctx context.Context, jobs []domain.SendJob) ([]domain.SendResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", domain.ErrValidation)
	}
	if len(jobs) > s.maxBatch {
		return nil, fmt.Errorf("%w: batch size %d exceeds maximum %d", domain.ErrValidation, len(jobs), s.maxBatch)
	}

	sess := s.source()
	if sess == nil {
		return nil, fmt.Errorf("no open session")
	}

	batchID := uuid.NewString()
	logger := s.logger.With(zap.String("batchId", batchID))

	// Delays accumulate so the send schedule is strictly increasing.
	delays := make([]time.Duration, len(jobs))
	cumulative := time.Duration(0)
	for i := range jobs {
		cumulative += s.randDur(s.minDelay, s.maxDelay)
		delays[i] = cumulative
	}

	results := make([]domain.SendResult, len(jobs))

	g := new(errgroup.Group)
	for i := range jobs {
		i := i
		job := jobs[i]

		g.Go(func() error {
			result := &results[i]
			result.Recipient = job.Recipient
			result.Delay = delays[i]
			result.DelayMS = delays[i].Milliseconds()

			if err := s.runJob(ctx, sess, job, delays[i]); err != nil {
				result.Error = err.Error()
				if s.metrics != nil {
					s.metrics.IncOutboundJob("failed")
				}
				logger.Warn("outbound job failed",
					zap.String("recipient", job.Recipient),
					zap.Error(err),
				)
				return nil
			}

			result.Sent = true
			if s.metrics != nil {
				s.metrics.IncOutboundJob("sent")
			}
			return nil
		})
	}

	_ = g.Wait()

	logger.Info("outbound batch finished", zap.Int("jobs", len(jobs)))
	return results, nil
}

func (s *Scheduler) runJob(ctx context.Context, sess Sender, job domain.SendJob, delay time.Duration) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := s.sleep(ctx, delay); err != nil {
		return fmt.Errorf("send cancelled: %w", err)
	}

	registered, err := sess.IsRegistered(ctx, job.Recipient)
	if err != nil {
		return fmt.Errorf("registration check failed: %w", err)
	}
	if !registered {
		return fmt.Errorf("recipient is not registered on the transport")
	}

	if err := sess.Send(ctx, job.Recipient, job.Message); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	return nil
}

func uniformDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
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
