// Package entitlement provides download-entitlement and subscription types.
package entitlement

import (
	"time"

	"github.com/sonavia/sonavia/internal/domain/license"
)

// Purchase represents a fulfilled purchase record from the backend.
// Exactly one of TrackID or AlbumID is set.
type Purchase struct {
	ID          string       // Purchase record ID
	TrackID     string       // Purchased track, empty for album purchases
	AlbumID     string       // Purchased album (pack), empty for track purchases
	License     license.Type // License tier bought
	PurchasedAt time.Time
}

// IsAlbum reports whether the purchase covers a whole album.
func (p Purchase) IsAlbum() bool {
	return p.AlbumID != ""
}

// SubscriptionStatus represents the subscription tier of a profile.
type SubscriptionStatus string

const (
	StatusNone       SubscriptionStatus = "none"       // No active subscription
	StatusMember     SubscriptionStatus = "member"     // Active account without blanket access
	StatusSubscriber SubscriptionStatus = "subscriber" // Blanket download access
)

// String returns the string representation of the status.
func (s SubscriptionStatus) String() string {
	return string(s)
}

// Profile represents the subscription attributes of a user profile.
type Profile struct {
	Status   SubscriptionStatus
	RenewsAt time.Time
}

// IsSubscriber reports whether the profile grants blanket entitlement.
func (p Profile) IsSubscriber() bool {
	return p.Status == StatusSubscriber
}

// Set is the set of track IDs the current session may download without
// further payment. It is always replaced wholesale, never patched.
type Set map[string]struct{}

// NewSet builds a set from track IDs, dropping empty IDs.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains checks membership of a track ID.
func (s Set) Contains(trackID string) bool {
	_, ok := s[trackID]
	return ok
}

// Len returns the number of entitled tracks.
func (s Set) Len() int {
	return len(s)
}

// IDs returns the track IDs in unspecified order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a copy of the set.
func (s Set) Clone() Set {
	clone := make(Set, len(s))
	for id := range s {
		clone[id] = struct{}{}
	}
	return clone
}
