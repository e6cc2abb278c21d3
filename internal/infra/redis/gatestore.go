package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dcampos/wagate/internal/gate"
	goredis "github.com/redis/go-redis/v9"
)

const gateKeyPrefix = "gate:sender:"

var _ gate.Store = (*GateStore)(nil)

// GateStore keeps sender last-activity timestamps in Redis so the admission
// window survives process restarts. Keys expire server-side at the gate TTL;
// Sweep is therefore a no-op for this store.
type GateStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewGateStore(client *goredis.Client, ttl time.Duration) (*GateStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("gate ttl must be positive")
	}

	return &GateStore{client: client, ttl: ttl}, nil
}

func (s *GateStore) LastActivity(ctx context.Context, sender string) (time.Time, bool, error) {
	value, err := s.client.Get(ctx, s.key(sender)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read sender key: %w", err)
	}

	nanos, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt sender timestamp %q: %w", value, err)
	}

	return time.Unix(0, nanos).UTC(), true, nil
}

func (s *GateStore) Touch(ctx context.Context, sender string, at time.Time) error {
	value := strconv.FormatInt(at.UnixNano(), 10)
	if err := s.client.Set(ctx, s.key(sender), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write sender key: %w", err)
	}
	return nil
}

func (s *GateStore) Sweep(ctx context.Context, _ time.Time) (int, error) {
	// Redis expires gate keys itself; nothing to reclaim here.
	return 0, ctx.Err()
}

func (s *GateStore) key(sender string) string {
	return gateKeyPrefix + strings.TrimSpace(sender)
}
