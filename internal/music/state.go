package music

import (
	"slices"
	"sync"
)

// GuildState is the per-guild playback state. The mutex guards queue and
// nowPlaying as a single unit; it is never held across I/O.
type GuildState struct {
	mu         sync.Mutex
	queue      []Track
	nowPlaying *Track
	volume     float64 // fraction, 0.0..2.0
}

func newGuildState() *GuildState {
	return &GuildState{volume: 1.0}
}

// Snapshot returns copies of the current track and queue plus the volume
// percent, all read under the state lock.
func (st *GuildState) Snapshot() (*Track, []Track, int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var now *Track
	if st.nowPlaying != nil {
		t := *st.nowPlaying
		now = &t
	}
	return now, slices.Clone(st.queue), volumePercent(st.volume)
}

// Registry maps guild IDs to their playback state. States are created on
// first access and live for the whole process; stop/leave only clears their
// contents.
type Registry struct {
	mu     sync.Mutex
	states map[string]*GuildState
}

func NewRegistry() *Registry {
	return &Registry{states: make(map[string]*GuildState)}
}

// GetOrCreate returns the state for guildID, creating it if needed. The
// second result reports whether a fresh state was created.
func (r *Registry) GetOrCreate(guildID string) (*GuildState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.states[guildID]; ok {
		return st, false
	}
	st := newGuildState()
	r.states[guildID] = st
	return st, true
}

func volumePercent(fraction float64) int {
	return int(fraction*100 + 0.5)
}
