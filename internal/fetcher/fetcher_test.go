package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dcampos/wagate/internal/domain"
)

type fakeSearcher struct {
	mu       sync.Mutex
	calls    int
	searchFn func(ctx context.Context, day time.Time, from, size int) ([]domain.Record, error)
}

func (s *fakeSearcher) Search(ctx context.Context, day time.Time, from, size int) ([]domain.Record, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.searchFn(ctx, day, from, size)
}

func (s *fakeSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakeForwarder struct {
	mu        sync.Mutex
	delivered []domain.Record
	deliverFn func(ctx context.Context, payload any) error
}

func (f *fakeForwarder) Deliver(ctx context.Context, payload any) error {
	record, ok := payload.(domain.Record)
	if !ok {
		return errors.New("unexpected payload type")
	}
	f.mu.Lock()
	f.delivered = append(f.delivered, record)
	f.mu.Unlock()
	if f.deliverFn != nil {
		return f.deliverFn(ctx, payload)
	}
	return nil
}

func (f *fakeForwarder) deliveredIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.delivered))
	for _, record := range f.delivered {
		ids = append(ids, record.ID)
	}
	return ids
}

// pagedSearcher serves total records in pages of the requested size.
func pagedSearcher(total int) *fakeSearcher {
	return &fakeSearcher{
		searchFn: func(ctx context.Context, day time.Time, from, size int) ([]domain.Record, error) {
			records := make([]domain.Record, 0, size)
			for i := from; i < from+size && i < total; i++ {
				records = append(records, domain.Record{
					ID:     fmt.Sprintf("pub-%d", i),
					Source: json.RawMessage(`{"content":"x"}`),
				})
			}
			return records, nil
		},
	}
}

func newTestFetcher(t *testing.T, search Searcher, forward Forwarder) *Fetcher {
	t.Helper()

	f, err := New(search, forward, 10, 10, 5*time.Second, 30*time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	f.now = func() time.Time { return time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC) }
	return f
}

func TestRunForwardsAllPagesAndStopsOnShortPage(t *testing.T) {
	t.Parallel()

	search := pagedSearcher(23)
	forward := &fakeForwarder{}
	f := newTestFetcher(t, search, forward)

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// 23 records: two full pages plus a short page of 3.
	if got := search.callCount(); got != 3 {
		t.Fatalf("search calls = %d, want 3", got)
	}
	ids := forward.deliveredIDs()
	if len(ids) != 23 {
		t.Fatalf("forwarded = %d, want 23", len(ids))
	}
	if ids[0] != "pub-0" || ids[22] != "pub-22" {
		t.Fatalf("forwarding order broken: first=%s last=%s", ids[0], ids[22])
	}
}

func TestRunIsNoOpAfterCompletedDay(t *testing.T) {
	t.Parallel()

	search := pagedSearcher(5)
	forward := &fakeForwarder{}
	f := newTestFetcher(t, search, forward)

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if got := search.callCount(); got != 1 {
		t.Fatalf("search calls = %d, want 1 (second run must short-circuit)", got)
	}
}

func TestRunFetchesAgainOnNewDay(t *testing.T) {
	t.Parallel()

	search := pagedSearcher(2)
	forward := &fakeForwarder{}
	f := newTestFetcher(t, search, forward)

	day := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return day }

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	day = day.Add(2 * time.Hour) // past midnight
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run() on new day error = %v", err)
	}

	if got := search.callCount(); got != 2 {
		t.Fatalf("search calls = %d, want 2", got)
	}
}

func TestRunFailureLeavesDayIncomplete(t *testing.T) {
	t.Parallel()

	search := pagedSearcher(5)
	attempt := 0
	forward := &fakeForwarder{
		deliverFn: func(ctx context.Context, payload any) error {
			attempt++
			if attempt <= 2 {
				return errors.New("webhook unreachable")
			}
			return nil
		},
	}
	f := newTestFetcher(t, search, forward)

	if err := f.Run(context.Background()); err == nil {
		t.Fatal("expected first run to fail")
	}
	if err := f.Run(context.Background()); err == nil {
		t.Fatal("expected second run to fail")
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("third Run() error = %v", err)
	}

	// Failed runs must not mark the day; each run restarts from page one.
	if got := search.callCount(); got != 3 {
		t.Fatalf("search calls = %d, want 3", got)
	}
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run() after completion error = %v", err)
	}
	if got := search.callCount(); got != 3 {
		t.Fatalf("search calls = %d, want 3 after completion", got)
	}
}

func TestRunConcurrentInvocationIsNoOp(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	search := &fakeSearcher{
		searchFn: func(ctx context.Context, day time.Time, from, size int) ([]domain.Record, error) {
			close(entered)
			<-release
			return nil, nil
		},
	}
	f := newTestFetcher(t, search, &fakeForwarder{})

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	// The in-flight guard is not an error: the overlapping call returns
	// immediately without touching the search API.
	<-entered
	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("concurrent Run() error = %v, want nil", err)
	}
	if got := search.callCount(); got != 1 {
		t.Fatalf("search calls = %d, want 1 (overlapping run must not fetch)", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
}

func TestRunStopsAtMaxPages(t *testing.T) {
	t.Parallel()

	search := pagedSearcher(500)
	forward := &fakeForwarder{}
	f := newTestFetcher(t, search, forward)

	if err := f.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := search.callCount(); got != 10 {
		t.Fatalf("search calls = %d, want 10 (page cap)", got)
	}
	if got := len(forward.deliveredIDs()); got != 100 {
		t.Fatalf("forwarded = %d, want 100", got)
	}
}
