package player

import "github.com/sonavia/sonavia/internal/domain/track"

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged  EventType = iota // Current track was replaced
	EventStateChanged                   // Play/pause flipped
	EventVolumeChanged                  // Volume was set
	EventSeekRequested                  // A discrete seek is pending
	EventProgress                       // Continuous progress update
	EventPlaylistEnded                  // Natural end with no next track
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventStateChanged:
		return "state_changed"
	case EventVolumeChanged:
		return "volume_changed"
	case EventSeekRequested:
		return "seek_requested"
	case EventProgress:
		return "progress"
	case EventPlaylistEnded:
		return "playlist_ended"
	default:
		return "unknown"
	}
}

// Event represents a playback event delivered to media observers.
type Event struct {
	Type     EventType
	Track    *track.Track // Current track (nil when idle)
	State    State        // Playback state after the event
	Volume   float64      // Volume after the event
	Progress float64      // Progress percentage after the event
}
