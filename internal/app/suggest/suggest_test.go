package suggest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sonavia/sonavia/internal/domain/track"
)

type fakeSource struct {
	calls atomic.Int32
	fn    func(ctx context.Context, query string, limit int) ([]track.Track, error)
}

func (f *fakeSource) SearchTracks(ctx context.Context, query string, limit int) ([]track.Track, error) {
	f.calls.Add(1)
	if f.fn != nil {
		return f.fn(ctx, query, limit)
	}
	return []track.Track{{ID: query}}, nil
}

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for n := 0; n < 5; n++ {
		d.Trigger(func() { calls.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool {
		return calls.Load() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool {
		return calls.Load() > 1
	}, 150*time.Millisecond, 20*time.Millisecond)
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	d.Stop()

	assert.Never(t, func() bool {
		return calls.Load() > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestFetcher_DebouncesQueries(t *testing.T) {
	src := &fakeSource{}
	f := NewFetcher(src, Config{Debounce: 40 * time.Millisecond, MaxResults: 5}, nil)
	defer f.Close()

	ctx := context.Background()
	f.Query(ctx, "pi")
	f.Query(ctx, "pia")
	f.Query(ctx, "piano")

	assert.Eventually(t, func() bool {
		results := f.Results()
		return len(results) == 1 && results[0].ID == "piano"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), src.calls.Load(), "only the final query should reach the source")
}

func TestFetcher_EmptyQueryClearsImmediately(t *testing.T) {
	src := &fakeSource{}
	var notified atomic.Bool
	f := NewFetcher(src, Config{Debounce: time.Millisecond}, func(results []track.Track) {
		if results == nil {
			notified.Store(true)
		}
	})
	defer f.Close()

	ctx := context.Background()
	f.Query(ctx, "piano")
	assert.Eventually(t, func() bool {
		return len(f.Results()) == 1
	}, time.Second, 10*time.Millisecond)

	f.Query(ctx, "")
	assert.Empty(t, f.Results())
	assert.True(t, notified.Load())
	assert.Equal(t, int32(1), src.calls.Load(), "clearing must not hit the source")
}

func TestFetcher_TagFilter(t *testing.T) {
	src := &fakeSource{
		fn: func(context.Context, string, int) ([]track.Track, error) {
			return []track.Track{
				{ID: "t1", Tags: []string{"lofi", "chill"}},
				{ID: "t2", Tags: []string{"techno"}},
				{ID: "t3", Tags: []string{"Lofi"}},
			}, nil
		},
	}
	f := NewFetcher(src, Config{Debounce: time.Millisecond, Tag: "lofi"}, nil)
	defer f.Close()

	f.Query(context.Background(), "beats")
	assert.Eventually(t, func() bool {
		return len(f.Results()) == 2
	}, time.Second, 10*time.Millisecond)

	// Tag matching is case-insensitive; t2 carries no matching tag
	ids := []string{f.Results()[0].ID, f.Results()[1].ID}
	assert.Equal(t, []string{"t1", "t3"}, ids)
}

func TestFetcher_ErrorKeepsLastKnownGood(t *testing.T) {
	src := &fakeSource{
		fn: func(_ context.Context, query string, _ int) ([]track.Track, error) {
			if query == "bad" {
				return nil, assert.AnError
			}
			return []track.Track{{ID: query}}, nil
		},
	}
	f := NewFetcher(src, Config{Debounce: time.Millisecond}, nil)
	defer f.Close()

	ctx := context.Background()
	f.Query(ctx, "good")
	assert.Eventually(t, func() bool {
		return len(f.Results()) == 1
	}, time.Second, 10*time.Millisecond)

	f.Query(ctx, "bad")
	assert.Never(t, func() bool {
		return len(f.Results()) == 0
	}, 150*time.Millisecond, 20*time.Millisecond)
	assert.Equal(t, "good", f.Results()[0].ID)
}

func TestFetcher_StaleResponseDiscarded(t *testing.T) {
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	src := &fakeSource{
		fn: func(_ context.Context, query string, _ int) ([]track.Track, error) {
			if query == "slow" {
				close(slowStarted)
				<-releaseSlow
			}
			return []track.Track{{ID: query}}, nil
		},
	}
	f := NewFetcher(src, Config{Debounce: 0}, nil)
	defer f.Close()

	ctx := context.Background()
	f.Query(ctx, "slow")
	<-slowStarted

	f.Query(ctx, "fast")
	assert.Eventually(t, func() bool {
		results := f.Results()
		return len(results) == 1 && results[0].ID == "fast"
	}, time.Second, 10*time.Millisecond)

	// The slow fetch resolves late; its result belongs to an older query
	close(releaseSlow)
	assert.Never(t, func() bool {
		results := f.Results()
		return len(results) > 0 && results[0].ID == "slow"
	}, 200*time.Millisecond, 20*time.Millisecond)
}
