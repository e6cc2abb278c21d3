package fetcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dcampos/wagate/internal/domain"
	"github.com/dcampos/wagate/internal/observability"
)

// Searcher pages through publication records for a single day.
type Searcher interface {
	Search(ctx context.Context, day time.Time, from, size int) ([]domain.Record, error)
}

// Forwarder pushes a single record downstream.
type Forwarder interface {
	Deliver(ctx context.Context, payload any) error
}

// Fetcher pulls the day's publications from the search API and forwards them
// one at a time. A day is fetched at most once: after a fully successful run
// the day is marked complete and later runs on the same day return
// immediately. A failed run leaves the day unmarked so the next trigger
// retries from the first page.
type Fetcher struct {
	search  Searcher
	relay   Forwarder
	logger  *zap.Logger
	metrics *observability.Metrics

	pageSize     int
	maxPages     int
	forwardDelay time.Duration
	interval     time.Duration

	mu           sync.Mutex
	running      bool
	completedDay string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(search Searcher, relay Forwarder, pageSize, maxPages int, forwardDelay, interval time.Duration, logger *zap.Logger) (*Fetcher, error) {
	if search == nil {
		return nil, fmt.Errorf("%w: searcher is required", domain.ErrValidation)
	}
	if relay == nil {
		return nil, fmt.Errorf("%w: forwarder is required", domain.ErrValidation)
	}
	if pageSize <= 0 || maxPages <= 0 {
		return nil, fmt.Errorf("%w: page size and max pages must be positive", domain.ErrValidation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{
		search:       search,
		relay:        relay,
		logger:       logger,
		pageSize:     pageSize,
		maxPages:     maxPages,
		forwardDelay: forwardDelay,
		interval:     interval,
		now:          time.Now,
		sleep:        sleepWithContext,
	}, nil
}

func (f *Fetcher) SetMetrics(m *observability.Metrics) {
	f.metrics = m
}

// Start triggers a run immediately and then on every interval tick until the
// context is cancelled.
func (f *Fetcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.Run(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("publication fetch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run fetches and forwards today's publications. A call while a run is in
// flight is a no-op, as is a day already completed; both are expected and
// return nil.
func (f *Fetcher) Run(ctx context.Context) error {
	day := f.now()
	today := day.Format("2006-01-02")

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		f.logger.Info("publication fetch already in progress", zap.String("day", today))
		return nil
	}
	if f.completedDay == today {
		f.mu.Unlock()
		f.logger.Info("publications already fetched today", zap.String("day", today))
		return nil
	}
	f.running = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	forwarded, err := f.fetchDay(ctx, day)
	if err != nil {
		if f.metrics != nil {
			f.metrics.IncFetchRun("failed")
		}
		return err
	}

	f.mu.Lock()
	f.completedDay = today
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.IncFetchRun("completed")
	}
	f.logger.Info("publication fetch completed",
		zap.String("day", today),
		zap.Int("records", forwarded))
	return nil
}

func (f *Fetcher) fetchDay(ctx context.Context, day time.Time) (int, error) {
	forwarded := 0
	for page := 0; page < f.maxPages; page++ {
		records, err := f.search.Search(ctx, day, page*f.pageSize, f.pageSize)
		if err != nil {
			return forwarded, fmt.Errorf("page %d: %w", page, err)
		}

		for _, record := range records {
			if err := f.forward(ctx, record); err != nil {
				return forwarded, fmt.Errorf("record %s: %w", record.ID, err)
			}
			forwarded++

			if err := f.sleep(ctx, f.forwardDelay); err != nil {
				return forwarded, err
			}
		}

		// A short page is the last one.
		if len(records) < f.pageSize {
			break
		}
	}
	return forwarded, nil
}

func (f *Fetcher) forward(ctx context.Context, record domain.Record) error {
	ctx = observability.WithCorrelationID(ctx, record.ID)
	if err := f.relay.Deliver(ctx, record); err != nil {
		return err
	}
	if f.metrics != nil {
		f.metrics.IncRecordForwarded()
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
