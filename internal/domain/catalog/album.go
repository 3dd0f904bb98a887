// Package catalog provides the Album (pack) domain entity.
package catalog

import "github.com/sonavia/sonavia/internal/domain/track"

// Album represents a pack of tracks sold together.
// Purchasing an album grants entitlement to every constituent track.
type Album struct {
	ID          string        // Catalog album ID
	Title       string        // Album title
	Artist      string        // Primary artist
	Description string        // Album description
	ArtworkURL  string        // Cover art URL
	Tracks      []track.Track // Tracks in the album
}

// TrackIDs returns all track IDs in the album.
func (a *Album) TrackIDs() []string {
	ids := make([]string, len(a.Tracks))
	for i, t := range a.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks in seconds.
func (a *Album) TotalDuration() int64 {
	var total int64
	for _, t := range a.Tracks {
		total += int64(t.Duration.Seconds())
	}
	return total
}
