// Package track provides the Track catalog entity.
package track

import (
	"strings"
	"time"

	"github.com/sonavia/sonavia/internal/domain/license"
)

// Track represents a single catalog track.
// Contains only information served by the catalog backend.
type Track struct {
	ID         string                   // Catalog track ID
	Title      string                   // Track title
	Artists    []string                 // Artist names
	AlbumID    string                   // Owning album (pack) ID, empty for singles
	Duration   time.Duration            // Track duration
	PreviewURL string                   // Streaming preview asset URL
	ArtworkURL string                   // Cover art URL
	Tags       []string                 // Denormalized tags for client-side filtering
	BPM        int                      // Beats per minute
	Prices     map[license.Type]float64 // Price per license tier
}

// HasTag checks whether the track carries the given tag.
// Comparison is case-insensitive because the catalog mixes author-entered
// casing in the denormalized tag arrays.
func (t *Track) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if strings.EqualFold(candidate, tag) {
			return true
		}
	}
	return false
}

// Price returns the price for the given license tier.
// The second return value is false when the tier is not configured.
func (t *Track) Price(lt license.Type) (float64, bool) {
	p, ok := t.Prices[lt]
	return p, ok
}

// ArtistLine returns the artists joined for display.
func (t *Track) ArtistLine() string {
	return strings.Join(t.Artists, ", ")
}
