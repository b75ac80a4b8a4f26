package music

// RenderState reports what the voice gateway is doing for a guild.
type RenderState int

const (
	RenderIdle RenderState = iota
	RenderPlaying
	RenderPaused
)

func (s RenderState) String() string {
	switch s {
	case RenderPlaying:
		return "playing"
	case RenderPaused:
		return "paused"
	default:
		return "idle"
	}
}

// Gateway is the voice-side collaborator: connection lifecycle plus the
// render lifecycle for one audio stream per guild. RenderState is the
// authoritative answer to "is something playing"; the manager's nowPlaying
// slot only mirrors it for queue accounting.
//
// The onComplete callback passed to StartRender is invoked exactly once, from
// the render goroutine, when the stream ends or fails. Implementations must
// not call back into the Manager directly from that goroutine; the Manager
// marshals the continuation onto its own dispatch loop.
type Gateway interface {
	IsConnected(guildID string) bool
	ChannelID(guildID string) string
	Connect(guildID, channelID string) error
	Move(guildID, channelID string) error
	Disconnect(guildID string) error

	RenderState(guildID string) RenderState
	StartRender(guildID, streamURL string, volume float64, onComplete func(error)) error
	Pause(guildID string)
	Resume(guildID string)
	StopRender(guildID string)
	SetLiveVolume(guildID string, fraction float64) bool
}

// Extractor resolves a URL or free-text query into a playable Track. The
// call blocks (network, possibly an external helper process) and must never
// run on the manager's dispatch loop.
type Extractor interface {
	Extract(query, requestedBy string) (Track, error)
}
