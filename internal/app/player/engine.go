package player

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/sonavia/sonavia/internal/domain/track"
)

// Engine is the playback state machine layered over the single shared
// media resource. The engine holds playback intent; the media observer
// consumes Events() and asks the actual media backend to comply. A
// transient mismatch between intent and audible playback is tolerated.
type Engine struct {
	mu sync.RWMutex

	current  *track.Track
	playlist []track.Track
	playing  bool
	volume   float64
	progress float64  // 0..100 percentage of duration
	seek     *float64 // Pending seek position in seconds, single-shot

	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine creates a playback engine with the given initial volume.
func NewEngine(initialVolume float64) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		volume:  clampVolume(initialVolume),
		eventCh: make(chan Event, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Events returns the event channel consumed by the media observer.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// PlayTrack requests playback of a track, optionally within a new playlist
// context.
//
// Requesting the track that is already current toggles play/pause instead
// of restarting it; clicking an already-playing row pauses it without
// rewinding. Requesting a different track makes it current, resets progress
// and starts playing. The playlist context is replaced only when a
// non-empty one is supplied, so playing a single track keeps the album
// context being browsed.
func (e *Engine) PlayTrack(t track.Track, playlist []track.Track) {
	e.mu.Lock()

	if e.current != nil && e.current.ID == t.ID {
		e.playing = !e.playing
		ev := e.eventLocked(EventStateChanged)
		e.mu.Unlock()
		e.send(ev)
		return
	}

	e.current = &t
	e.playing = true
	e.progress = 0
	e.seek = nil
	if len(playlist) > 0 {
		e.playlist = make([]track.Track, len(playlist))
		copy(e.playlist, playlist)
	}
	ev := e.eventLocked(EventTrackChanged)
	e.mu.Unlock()
	e.send(ev)
}

// PlayNext advances to the next track in the playlist context.
// No-op when there is no current track, the current track is not in the
// playlist, or the current track is last (no wraparound).
func (e *Engine) PlayNext() {
	e.step(1)
}

// PlayPrevious moves to the previous track in the playlist context.
// Same no-op conditions as PlayNext, mirrored.
func (e *Engine) PlayPrevious() {
	e.step(-1)
}

// step moves the current track by offset within the playlist.
// The index lookup is linear on every invocation; playlists are albums,
// not libraries.
func (e *Engine) step(offset int) {
	e.mu.Lock()

	idx := e.indexOfCurrentLocked()
	if idx < 0 {
		e.mu.Unlock()
		return
	}
	next := idx + offset
	if next < 0 || next >= len(e.playlist) {
		e.mu.Unlock()
		return
	}

	t := e.playlist[next]
	e.current = &t
	e.playing = true
	e.progress = 0
	e.seek = nil
	ev := e.eventLocked(EventTrackChanged)
	e.mu.Unlock()
	e.send(ev)
}

// indexOfCurrentLocked returns the current track's playlist index, or -1.
// Must be called with the lock held.
func (e *Engine) indexOfCurrentLocked() int {
	if e.current == nil {
		return -1
	}
	for i, t := range e.playlist {
		if t.ID == e.current.ID {
			return i
		}
	}
	return -1
}

// TogglePlay flips play/pause without altering the current track or
// progress. No-op when nothing is current.
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}
	e.playing = !e.playing
	ev := e.eventLocked(EventStateChanged)
	e.mu.Unlock()
	e.send(ev)
}

// SetVolume stores the clamped volume. The media element's volume is
// synchronized by the observer, not by this call, keeping the engine
// media-agnostic.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = clampVolume(v)
	ev := e.eventLocked(EventVolumeChanged)
	e.mu.Unlock()
	e.send(ev)
}

// SetProgress is the continuous update path driven by media time-update
// callbacks, as a 0-100 percentage. Updates are ignored while a seek is
// pending so the scrubber cannot snap backward mid-seek.
func (e *Engine) SetProgress(p float64) {
	e.mu.Lock()
	if e.seek != nil {
		e.mu.Unlock()
		return
	}
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	e.progress = p
	ev := e.eventLocked(EventProgress)
	e.mu.Unlock()
	e.send(ev)
}

// SetSeekTime records a discrete user-initiated seek to an absolute
// position in seconds. The pending seek is a single-shot command: the
// media observer takes it with ConsumeSeek, applies it, and resumes
// normal progress updates.
func (e *Engine) SetSeekTime(seconds float64) {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}
	if seconds < 0 {
		seconds = 0
	}
	e.seek = &seconds
	ev := e.eventLocked(EventSeekRequested)
	e.mu.Unlock()
	e.send(ev)
}

// ConsumeSeek returns the pending seek position and clears it.
// Returns false when no seek is pending.
func (e *Engine) ConsumeSeek() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seek == nil {
		return 0, false
	}
	seconds := *e.seek
	e.seek = nil
	return seconds, true
}

// HandleTrackEnded handles the natural end of the current track.
// If a next track exists in the playlist context it starts playing;
// otherwise playback stops with progress reset and the current track
// retained (end-of-playlist stops rather than loops).
func (e *Engine) HandleTrackEnded() {
	e.mu.Lock()
	if e.current == nil {
		e.mu.Unlock()
		return
	}

	idx := e.indexOfCurrentLocked()
	if idx >= 0 && idx+1 < len(e.playlist) {
		t := e.playlist[idx+1]
		e.current = &t
		e.playing = true
		e.progress = 0
		e.seek = nil
		ev := e.eventLocked(EventTrackChanged)
		e.mu.Unlock()
		e.send(ev)
		return
	}

	e.playing = false
	e.progress = 0
	e.seek = nil
	ev := e.eventLocked(EventPlaylistEnded)
	e.mu.Unlock()
	e.send(ev)
}

// ReportMediaFailure records a media backend rejection (autoplay policy,
// network failure). The engine keeps its intent state; the store is the
// source of truth for intent and the media element is merely asked to
// comply.
func (e *Engine) ReportMediaFailure(err error) {
	zlog.Warn().Msgf("player: media playback rejected: %v", err)
}

// Current returns the current track.
func (e *Engine) Current() (track.Track, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return track.Track{}, false
	}
	return *e.current, true
}

// Playlist returns a copy of the playlist context.
func (e *Engine) Playlist() []track.Track {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result := make([]track.Track, len(e.playlist))
	copy(result, e.playlist)
	return result
}

// IsPlaying reports the playback intent.
func (e *Engine) IsPlaying() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.playing
}

// Volume returns the stored volume.
func (e *Engine) Volume() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.volume
}

// Progress returns the progress percentage.
func (e *Engine) Progress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.progress
}

// HasPendingSeek reports whether a seek is waiting to be consumed.
func (e *Engine) HasPendingSeek() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seek != nil
}

// State returns the collapsed playback state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	switch {
	case e.current == nil:
		return StateIdle
	case e.playing:
		return StatePlaying
	default:
		return StatePaused
	}
}

// Close releases the engine and its event channel. Safe to call while
// public operations are still emitting; safe to call twice.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.cancel()
	close(e.eventCh)
}

// eventLocked builds an event from current state.
// Must be called with the lock held.
func (e *Engine) eventLocked(t EventType) Event {
	var state State
	switch {
	case e.current == nil:
		state = StateIdle
	case e.playing:
		state = StatePlaying
	default:
		state = StatePaused
	}
	return Event{
		Type:     t,
		Track:    e.current,
		State:    state,
		Volume:   e.volume,
		Progress: e.progress,
	}
}

// send delivers an event without blocking. A slow observer drops events;
// observers reconcile from engine getters, events are only wake-ups.
// The read lock keeps Close from closing the channel mid-send.
func (e *Engine) send(ev Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	select {
	case e.eventCh <- ev:
	case <-e.ctx.Done():
	default:
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
