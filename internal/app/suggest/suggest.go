package suggest

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/sonavia/sonavia/internal/domain/track"
)

// Source is the search surface of the catalog backend.
type Source interface {
	SearchTracks(ctx context.Context, query string, limit int) ([]track.Track, error)
}

// Config represents suggestion fetcher configuration.
type Config struct {
	Debounce   time.Duration
	MaxResults int
	Tag        string // When set, only tracks carrying this tag are kept
}

// Fetcher debounces query input and fetches suggestions from the source.
// Fetch failures are logged and the last-known-good results are kept; a
// broken suggestion dropdown must never surface as a page error.
type Fetcher struct {
	mu      sync.RWMutex
	results []track.Track
	seq     uint64 // Last-fetch-wins guard for overlapping queries

	source    Source
	debouncer *Debouncer
	limit     int
	tag       string
	onResults func([]track.Track)
}

// NewFetcher creates a suggestion fetcher.
// onResults, if non-nil, is invoked with fresh results after each
// successful fetch.
func NewFetcher(source Source, cfg Config, onResults func([]track.Track)) *Fetcher {
	limit := cfg.MaxResults
	if limit <= 0 {
		limit = 8
	}
	return &Fetcher{
		source:    source,
		debouncer: NewDebouncer(cfg.Debounce),
		limit:     limit,
		tag:       cfg.Tag,
		onResults: onResults,
	}
}

// Query schedules a debounced suggestion fetch for the given input.
// An empty query clears results immediately without a fetch.
func (f *Fetcher) Query(ctx context.Context, query string) {
	if query == "" {
		f.debouncer.Stop()
		f.mu.Lock()
		f.seq++
		f.results = nil
		f.mu.Unlock()
		if f.onResults != nil {
			f.onResults(nil)
		}
		return
	}

	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	f.debouncer.Trigger(func() {
		f.fetch(ctx, query, seq)
	})
}

func (f *Fetcher) fetch(ctx context.Context, query string, seq uint64) {
	tracks, err := f.source.SearchTracks(ctx, query, f.limit)
	if err != nil {
		zlog.Warn().Msgf("suggest: fetch failed for %q: %v", query, err)
		return
	}
	if f.tag != "" {
		kept := tracks[:0]
		for _, t := range tracks {
			if t.HasTag(f.tag) {
				kept = append(kept, t)
			}
		}
		tracks = kept
	}

	f.mu.Lock()
	if seq != f.seq {
		// A newer query was issued while this fetch was in flight
		f.mu.Unlock()
		return
	}
	f.results = tracks
	f.mu.Unlock()

	if f.onResults != nil {
		f.onResults(tracks)
	}
}

// Results returns the last successful results.
func (f *Fetcher) Results() []track.Track {
	f.mu.RLock()
	defer f.mu.RUnlock()
	result := make([]track.Track, len(f.results))
	copy(result, f.results)
	return result
}

// Close cancels any pending fetch.
func (f *Fetcher) Close() {
	f.debouncer.Stop()
}
