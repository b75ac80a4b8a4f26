package music

import (
	"context"
	"errors"
	"log"
)

var (
	ErrNotConnected   = errors.New("not connected to a voice channel")
	ErrNothingPlaying = errors.New("nothing is currently playing")
	ErrNothingPaused  = errors.New("nothing is paused")
	ErrAlreadyPaused  = errors.New("playback is already paused")
	ErrAlreadyPlaying = errors.New("playback is already running")
	ErrVoiceBusy      = errors.New("already connected to another voice channel")
)

// Store persists per-guild playback settings and history. Implemented by
// internal/storage; nil disables persistence.
type Store interface {
	GetVolumePercent(guildID string) (int, bool)
	SetVolumePercent(guildID string, percent int) error
	AppendTrackHistory(guildID, title, url, requestedBy string) error
}

// Notifier delivers "now playing" announcements. Delivery failures are the
// notifier's problem; the manager never checks them.
type Notifier interface {
	NowPlaying(textChannelID string, track Track)
}

type advanceRequest struct {
	guildID       string
	textChannelID string
}

// Manager coordinates playback across guilds: it owns the state registry and
// the advance state machine that chains one track into the next.
type Manager struct {
	registry *Registry
	gateway  Gateway
	extract  Extractor
	store    Store
	notifier Notifier
	advance  chan advanceRequest
}

func NewManager(gw Gateway, ex Extractor, store Store) *Manager {
	return &Manager{
		registry: NewRegistry(),
		gateway:  gw,
		extract:  ex,
		store:    store,
		advance:  make(chan advanceRequest, 64),
	}
}

func (m *Manager) SetNotifier(n Notifier) { m.notifier = n }

// Run is the manager's dispatch loop. All advance work executes here, on one
// goroutine, so two advances for the same guild can never interleave between
// the render-state check and the render start. Blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.advance:
			m.playNext(req.guildID, req.textChannelID)
		}
	}
}

// Advance schedules an advance for a guild. Safe to call from any goroutine,
// including the render goroutine's completion callback. This is the handoff
// back into the dispatch loop. The send blocks when the buffer is full; a
// dropped continuation would stall the guild's queue until the next user
// action, so callers wait instead.
func (m *Manager) Advance(guildID, textChannelID string) {
	m.advance <- advanceRequest{guildID: guildID, textChannelID: textChannelID}
}

func (m *Manager) stateFor(guildID string) *GuildState {
	st, created := m.registry.GetOrCreate(guildID)
	if created && m.store != nil {
		if percent, ok := m.store.GetVolumePercent(guildID); ok {
			// Stored records are not trusted; clamp like SetVolumePercent.
			clamped := min(200, max(0, percent))
			st.mu.Lock()
			st.volume = float64(clamped) / 100
			st.mu.Unlock()
		}
	}
	return st
}

// Enqueue resolves query into a track and appends it to the guild's queue.
// Returns the track and the queue length after the append. Extraction runs on
// the caller's goroutine; a failed extraction leaves the queue untouched.
func (m *Manager) Enqueue(guildID, query, requestedBy, textChannelID string) (Track, int, error) {
	track, err := m.extract.Extract(query, requestedBy)
	if err != nil {
		return Track{}, 0, err
	}

	st := m.stateFor(guildID)
	st.mu.Lock()
	st.queue = append(st.queue, track)
	queueLen := len(st.queue)
	st.mu.Unlock()

	log.Printf("[INFO] Queued %q (pos %d) | guild=%s requested_by=%s", track.Title, queueLen, guildID, requestedBy)

	if m.gateway.RenderState(guildID) == RenderIdle {
		m.Advance(guildID, textChannelID)
	}
	return track, queueLen, nil
}

// playNext is the advance step: pop the queue head and start rendering it.
// Idempotent: a no-op while a render is active or the queue is empty. Only
// ever called from the dispatch loop.
func (m *Manager) playNext(guildID, textChannelID string) {
	st := m.stateFor(guildID)
	defer func() {
		if r := recover(); r != nil {
			st.mu.Lock()
			st.nowPlaying = nil
			st.mu.Unlock()
			log.Printf("[ERR] Panic while advancing | guild=%s: %v", guildID, r)
		}
	}()

	if !m.gateway.IsConnected(guildID) {
		st.mu.Lock()
		st.nowPlaying = nil
		st.mu.Unlock()
		return
	}

	st.mu.Lock()
	if m.gateway.RenderState(guildID) != RenderIdle {
		st.mu.Unlock()
		return
	}
	if len(st.queue) == 0 {
		st.nowPlaying = nil
		st.mu.Unlock()
		return
	}
	track := st.queue[0]
	st.queue = st.queue[1:]
	st.nowPlaying = &track
	volume := st.volume
	st.mu.Unlock()

	onComplete := func(err error) {
		if err != nil {
			log.Printf("[ERR] Playback ended with error | guild=%s track=%q: %v", guildID, track.Title, err)
		}
		// Runs on the render goroutine; never touch state from here.
		m.Advance(guildID, textChannelID)
	}

	if err := m.gateway.StartRender(guildID, track.StreamURL, volume, onComplete); err != nil {
		// The enqueue already succeeded, so nobody is waiting on this error.
		// Log and keep the queue moving.
		log.Printf("[ERR] Failed to start playback, skipping track | guild=%s track=%q: %v", guildID, track.Title, err)
		m.playNext(guildID, textChannelID)
		return
	}

	// A Stop between the pop above and the render becoming active sees an
	// idle gateway and skips StopRender. Re-check the slot now that the
	// render is visible: if the stop cleared it, tear the render down.
	st.mu.Lock()
	stopped := st.nowPlaying == nil || *st.nowPlaying != track
	st.mu.Unlock()
	if stopped {
		log.Printf("[INFO] Stop intervened during render start, tearing down | guild=%s track=%q", guildID, track.Title)
		m.gateway.StopRender(guildID)
		return
	}

	log.Printf("[INFO] Now playing %q | guild=%s", track.Title, guildID)

	if m.store != nil {
		if err := m.store.AppendTrackHistory(guildID, track.Title, track.WebpageURL, track.RequestedBy); err != nil {
			log.Printf("[WARN] Failed to record track history | guild=%s: %v", guildID, err)
		}
	}
	if m.notifier != nil && textChannelID != "" {
		m.notifier.NowPlaying(textChannelID, track)
	}
}

// Connect joins the given voice channel, or returns ErrVoiceBusy when already
// connected elsewhere. Moving an existing connection is the HTTP surface's
// job (see Bot.EnsureVoice); the chat surface refuses instead.
func (m *Manager) Connect(guildID, channelID string) error {
	if m.gateway.IsConnected(guildID) {
		if m.gateway.ChannelID(guildID) != channelID {
			return ErrVoiceBusy
		}
		return nil
	}
	return m.gateway.Connect(guildID, channelID)
}

func (m *Manager) Pause(guildID string) error {
	if !m.gateway.IsConnected(guildID) {
		return ErrNotConnected
	}
	switch m.gateway.RenderState(guildID) {
	case RenderPaused:
		return ErrAlreadyPaused
	case RenderPlaying:
		m.gateway.Pause(guildID)
		return nil
	default:
		return ErrNothingPlaying
	}
}

func (m *Manager) Resume(guildID string) error {
	if !m.gateway.IsConnected(guildID) {
		return ErrNotConnected
	}
	switch m.gateway.RenderState(guildID) {
	case RenderPaused:
		m.gateway.Resume(guildID)
		return nil
	case RenderPlaying:
		return ErrAlreadyPlaying
	default:
		return ErrNothingPaused
	}
}

// Skip stops the active render; the completion callback then advances to the
// next track. Skip never pops the queue itself. allowPaused lets the chat
// surface skip a paused track (the HTTP surface requires strictly playing).
func (m *Manager) Skip(guildID string, allowPaused bool) error {
	if !m.gateway.IsConnected(guildID) {
		return ErrNotConnected
	}
	switch m.gateway.RenderState(guildID) {
	case RenderPlaying:
	case RenderPaused:
		if !allowPaused {
			return ErrNothingPlaying
		}
	default:
		return ErrNothingPlaying
	}
	m.gateway.StopRender(guildID)
	return nil
}

// Stop clears the queue and now-playing slot, then stops any active render.
// State is cleared first so the completion callback lands on an empty queue
// instead of racing the clear.
func (m *Manager) Stop(guildID string) {
	st := m.stateFor(guildID)
	st.mu.Lock()
	st.queue = nil
	st.nowPlaying = nil
	st.mu.Unlock()

	if m.gateway.RenderState(guildID) != RenderIdle {
		m.gateway.StopRender(guildID)
	}
}

// Leave stops playback and disconnects from voice.
func (m *Manager) Leave(guildID string) error {
	m.Stop(guildID)
	if !m.gateway.IsConnected(guildID) {
		return ErrNotConnected
	}
	return m.gateway.Disconnect(guildID)
}

// SetVolumePercent clamps percent to [0, 200], stores it as a fraction and
// returns the clamped value. Does not touch an active render; see
// ApplyVolumeToActive.
func (m *Manager) SetVolumePercent(guildID string, percent int) int {
	clamped := min(200, max(0, percent))

	st := m.stateFor(guildID)
	st.mu.Lock()
	st.volume = float64(clamped) / 100
	st.mu.Unlock()

	if m.store != nil {
		if err := m.store.SetVolumePercent(guildID, clamped); err != nil {
			log.Printf("[WARN] Failed to persist volume | guild=%s: %v", guildID, err)
		}
	}
	return clamped
}

func (m *Manager) GetVolumePercent(guildID string) int {
	st := m.stateFor(guildID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return volumePercent(st.volume)
}

// ApplyVolumeToActive pushes the stored volume into a live render, if one is
// active. Reports whether it applied.
func (m *Manager) ApplyVolumeToActive(guildID string) bool {
	st := m.stateFor(guildID)
	st.mu.Lock()
	fraction := st.volume
	st.mu.Unlock()
	return m.gateway.SetLiveVolume(guildID, fraction)
}

// Snapshot returns the guild's now-playing track, queued tracks and volume
// percent.
func (m *Manager) Snapshot(guildID string) (*Track, []Track, int) {
	return m.stateFor(guildID).Snapshot()
}
