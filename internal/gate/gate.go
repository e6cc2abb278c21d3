// Package gate implements the keyword-triggered, TTL-extended admission
// window that decides which inbound senders are relayed downstream.
package gate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTTL           = 30 * time.Minute
	defaultSweepInterval = 5 * time.Minute
)

// Store holds the per-sender last-activity timestamps. Implementations must
// be safe for concurrent use.
type Store interface {
	LastActivity(ctx context.Context, sender string) (time.Time, bool, error)
	Touch(ctx context.Context, sender string, at time.Time) error
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// Gate admits an inbound event when the sender is inside its activity window
// or the message text matches a trigger phrase. Admission extends the window.
type Gate struct {
	store         Store
	trigger       *regexp.Regexp
	ttl           time.Duration
	sweepInterval time.Duration
	logger        *zap.Logger

	// admitMu serializes read-then-write admission so a concurrent sweep
	// cannot interleave between the staleness check and the touch.
	admitMu sync.Mutex
	now     func() time.Time
}

func New(store Store, triggers []string, ttl, sweepInterval time.Duration, logger *zap.Logger) (*Gate, error) {
	if store == nil {
		return nil, fmt.Errorf("gate store is required")
	}

	trigger, err := compileTriggers(triggers)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = defaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Gate{
		store:         store,
		trigger:       trigger,
		ttl:           ttl,
		sweepInterval: sweepInterval,
		logger:        logger,
		now:           time.Now,
	}, nil
}

func compileTriggers(triggers []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(triggers))
	for _, phrase := range triggers {
		if phrase := strings.TrimSpace(phrase); phrase != "" {
			quoted = append(quoted, regexp.QuoteMeta(phrase))
		}
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("at least one trigger phrase is required")
	}

	pattern := fmt.Sprintf("(?i)(%s)", strings.Join(quoted, "|"))
	trigger, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile trigger pattern: %w", err)
	}
	return trigger, nil
}

// Admit decides whether an event from sender qualifies for forwarding. An
// entry untouched for the TTL or longer fails admission even before a sweep
// removes it.
func (g *Gate) Admit(ctx context.Context, sender string, text string) (bool, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return false, fmt.Errorf("sender is required")
	}

	g.admitMu.Lock()
	defer g.admitMu.Unlock()

	now := g.now()

	lastActivity, found, err := g.store.LastActivity(ctx, sender)
	if err != nil {
		return false, fmt.Errorf("failed to read sender activity: %w", err)
	}

	isActive := found && now.Sub(lastActivity) < g.ttl
	isTrigger := g.trigger.MatchString(text)

	if !isActive && !isTrigger {
		return false, nil
	}

	if err := g.store.Touch(ctx, sender, now); err != nil {
		return false, fmt.Errorf("failed to extend sender window: %w", err)
	}
	return true, nil
}

// Start runs the periodic sweep until context cancellation. The sweep only
// reclaims memory; Admit's own staleness check keeps correctness even when
// the sweep lags.
func (g *Gate) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := g.store.Sweep(ctx, g.now().Add(-g.ttl))
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				g.logger.Error("sender gate sweep failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				g.logger.Debug("sender gate sweep reclaimed entries", zap.Int("removed", removed))
			}
		}
	}
}
