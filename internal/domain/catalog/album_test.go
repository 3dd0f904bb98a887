package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sonavia/sonavia/internal/domain/track"
)

func TestAlbum_TrackIDs(t *testing.T) {
	a := &Album{
		ID: "a1",
		Tracks: []track.Track{
			{ID: "t1"},
			{ID: "t2"},
		},
	}
	assert.Equal(t, []string{"t1", "t2"}, a.TrackIDs())
}

func TestAlbum_TotalDuration(t *testing.T) {
	a := &Album{
		Tracks: []track.Track{
			{ID: "t1", Duration: 90 * time.Second},
			{ID: "t2", Duration: 30 * time.Second},
		},
	}
	assert.Equal(t, int64(120), a.TotalDuration())
}
