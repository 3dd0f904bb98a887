package player

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonavia/sonavia/internal/domain/track"
)

func tr(id string) track.Track {
	return track.Track{ID: id, Title: "Track " + id}
}

func current(t *testing.T, e *Engine) track.Track {
	t.Helper()
	c, ok := e.Current()
	require.True(t, ok, "expected a current track")
	return c
}

func TestPlayTrack_StartsPlayback(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a := tr("A")
	e.PlayTrack(a, []track.Track{a, tr("B")})

	assert.Equal(t, "A", current(t, e).ID)
	assert.True(t, e.IsPlaying())
	assert.Equal(t, float64(0), e.Progress())
	assert.Equal(t, StatePlaying, e.State())
}

func TestPlayTrack_SameTrackToggles(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a := tr("A")
	playlist := []track.Track{a, tr("B")}

	e.PlayTrack(a, playlist)
	e.SetProgress(40)

	// Clicking the already-playing track pauses, it does not restart
	e.PlayTrack(a, playlist)
	assert.False(t, e.IsPlaying())
	assert.Equal(t, "A", current(t, e).ID)
	assert.Equal(t, float64(40), e.Progress(), "toggle must not reset progress")
	assert.Equal(t, StatePaused, e.State())

	// And toggles back to playing, still without a restart
	e.PlayTrack(a, playlist)
	assert.True(t, e.IsPlaying())
	assert.Equal(t, float64(40), e.Progress())
}

func TestPlayTrack_DifferentTrackResetsProgress(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a, b := tr("A"), tr("B")
	e.PlayTrack(a, []track.Track{a, b})
	e.SetProgress(70)

	e.PlayTrack(b, nil)

	assert.Equal(t, "B", current(t, e).ID)
	assert.True(t, e.IsPlaying())
	assert.Equal(t, float64(0), e.Progress())
}

func TestPlayTrack_EmptyPlaylistRetainsContext(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a, b, c := tr("A"), tr("B"), tr("C")
	e.PlayTrack(a, []track.Track{a, b})

	// Playing a single track without a playlist keeps the album context
	e.PlayTrack(c, nil)
	assert.Len(t, e.Playlist(), 2)

	// A non-empty playlist replaces the context
	e.PlayTrack(b, []track.Track{b, c})
	assert.Len(t, e.Playlist(), 2)
	assert.Equal(t, "B", e.Playlist()[0].ID)
}

func TestPlayNext_WalksPlaylistWithoutWraparound(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	t1, t2, t3 := tr("T1"), tr("T2"), tr("T3")
	e.PlayTrack(t1, []track.Track{t1, t2, t3})

	e.PlayNext()
	assert.Equal(t, "T2", current(t, e).ID)
	e.PlayNext()
	assert.Equal(t, "T3", current(t, e).ID)

	// No wraparound: advancing past the end is a no-op
	e.PlayNext()
	assert.Equal(t, "T3", current(t, e).ID)
	assert.True(t, e.IsPlaying())
}

func TestPlayPrevious(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a, b := tr("A"), tr("B")
	e.PlayTrack(b, []track.Track{a, b})

	e.PlayPrevious()
	assert.Equal(t, "A", current(t, e).ID)

	e.PlayPrevious()
	assert.Equal(t, "A", current(t, e).ID, "no wraparound at the start either")
}

func TestStep_CurrentNotInPlaylistIsNoop(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a := tr("A")
	e.PlayTrack(a, []track.Track{tr("B"), tr("C")})

	// Degrades to a no-op when current is outside the playlist context
	e.PlayNext()
	assert.Equal(t, "A", current(t, e).ID)
	e.PlayPrevious()
	assert.Equal(t, "A", current(t, e).ID)
}

func TestTogglePlay(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	// No current track: nothing to toggle
	e.TogglePlay()
	assert.False(t, e.IsPlaying())
	assert.Equal(t, StateIdle, e.State())

	a := tr("A")
	e.PlayTrack(a, nil)
	e.SetProgress(25)

	e.TogglePlay()
	assert.False(t, e.IsPlaying())
	assert.Equal(t, float64(25), e.Progress())

	e.TogglePlay()
	assert.True(t, e.IsPlaying())
}

func TestSetVolume_Clamps(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"in range", 0.5, 0.5},
		{"below zero", -0.3, 0},
		{"above one", 1.7, 1},
		{"zero", 0, 0},
		{"one", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(0.8)
			defer e.Close()

			e.SetVolume(tt.input)
			assert.Equal(t, tt.expected, e.Volume())
		})
	}
}

func TestVolume_PersistsAcrossTrackChanges(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	e.SetVolume(0.3)
	e.PlayTrack(tr("A"), nil)
	e.PlayTrack(tr("B"), nil)

	assert.Equal(t, 0.3, e.Volume())
}

func TestSeek_IsSingleShot(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	e.PlayTrack(tr("A"), nil)
	e.SetSeekTime(33.5)
	require.True(t, e.HasPendingSeek())

	seconds, ok := e.ConsumeSeek()
	require.True(t, ok)
	assert.Equal(t, 33.5, seconds)

	// Consumed: the command is gone
	_, ok = e.ConsumeSeek()
	assert.False(t, ok)
	assert.False(t, e.HasPendingSeek())
}

func TestSetProgress_IgnoredWhileSeekPending(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	e.PlayTrack(tr("A"), nil)
	e.SetProgress(10)
	e.SetSeekTime(60)

	// A late time-update must not snap the scrubber back mid-seek
	e.SetProgress(11)
	assert.Equal(t, float64(10), e.Progress())

	_, _ = e.ConsumeSeek()
	e.SetProgress(50)
	assert.Equal(t, float64(50), e.Progress())
}

func TestSetSeekTime_NoopWithoutTrack(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	e.SetSeekTime(10)
	assert.False(t, e.HasPendingSeek())
}

func TestHandleTrackEnded_AdvancesToNext(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a, b := tr("A"), tr("B")
	e.PlayTrack(a, []track.Track{a, b})

	e.HandleTrackEnded()

	assert.Equal(t, "B", current(t, e).ID)
	assert.True(t, e.IsPlaying())
	assert.Equal(t, float64(0), e.Progress())
}

func TestHandleTrackEnded_EndOfPlaylistStops(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a, b := tr("A"), tr("B")
	e.PlayTrack(b, []track.Track{a, b})
	e.SetProgress(99)

	e.HandleTrackEnded()

	// Stop rather than loop: current retained, position reset
	assert.Equal(t, "B", current(t, e).ID)
	assert.False(t, e.IsPlaying())
	assert.Equal(t, float64(0), e.Progress())
	assert.Equal(t, StatePaused, e.State())
}

func TestEvents_DeliverTrackChanges(t *testing.T) {
	e := NewEngine(0.8)
	defer e.Close()

	a := tr("A")
	e.PlayTrack(a, []track.Track{a})

	select {
	case ev := <-e.Events():
		assert.Equal(t, EventTrackChanged, ev.Type)
		require.NotNil(t, ev.Track)
		assert.Equal(t, "A", ev.Track.ID)
		assert.Equal(t, StatePlaying, ev.State)
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestClose_SafeWhileOperationsEmit(t *testing.T) {
	e := NewEngine(0.8)

	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e.SetVolume(float64(i) / 100)
			}
		}()
	}

	e.Close()
	wg.Wait()

	// Operations and a repeated Close after shutdown must not panic either
	e.SetVolume(0.5)
	e.Close()
}
