package discord

import (
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"

	"groovebox/internal/music"
)

// VoiceGateway owns one voice connection and at most one render goroutine
// per guild, behind the music.Gateway interface.
type VoiceGateway struct {
	session *discordgo.Session

	mu     sync.Mutex
	guilds map[string]*voiceSession
}

type voiceSession struct {
	vc     *discordgo.VoiceConnection
	render *renderControl
	state  music.RenderState
}

func NewVoiceGateway(session *discordgo.Session) *VoiceGateway {
	return &VoiceGateway{
		session: session,
		guilds:  make(map[string]*voiceSession),
	}
}

func (g *VoiceGateway) IsConnected(guildID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	vs, ok := g.guilds[guildID]
	return ok && vs.vc != nil
}

func (g *VoiceGateway) ChannelID(guildID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	vs, ok := g.guilds[guildID]
	if !ok || vs.vc == nil {
		return ""
	}
	return vs.vc.ChannelID
}

func (g *VoiceGateway) Connect(guildID, channelID string) error {
	vc, err := g.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("voice join error: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.guilds[guildID] = &voiceSession{vc: vc, state: music.RenderIdle}
	return nil
}

// Move rejoins the target channel without dropping the render goroutine; the
// voice connection object survives the channel change.
func (g *VoiceGateway) Move(guildID, channelID string) error {
	g.mu.Lock()
	vs, ok := g.guilds[guildID]
	g.mu.Unlock()

	if !ok || vs.vc == nil {
		return g.Connect(guildID, channelID)
	}
	if err := vs.vc.ChangeChannel(channelID, false, true); err != nil {
		return fmt.Errorf("voice move error: %w", err)
	}
	return nil
}

func (g *VoiceGateway) Disconnect(guildID string) error {
	g.mu.Lock()
	vs, ok := g.guilds[guildID]
	if ok {
		delete(g.guilds, guildID)
	}
	g.mu.Unlock()

	if !ok {
		return nil
	}
	if vs.render != nil {
		vs.render.requestStop()
	}
	if vs.vc != nil {
		if err := vs.vc.Disconnect(); err != nil {
			return fmt.Errorf("voice disconnect error: %w", err)
		}
	}
	return nil
}

func (g *VoiceGateway) RenderState(guildID string) music.RenderState {
	g.mu.Lock()
	defer g.mu.Unlock()

	vs, ok := g.guilds[guildID]
	if !ok {
		return music.RenderIdle
	}
	return vs.state
}

// spawnStream is swapped out in tests.
var spawnStream = ffmpegStream

// StartRender launches ffmpeg and the encode loop for one stream. onComplete
// fires exactly once from the render goroutine, with nil when the stream
// drained or was stopped and an error otherwise. The process spawn happens
// outside the gateway lock so a slow spawn in one guild never blocks state
// queries for the others.
func (g *VoiceGateway) StartRender(guildID, streamURL string, volume float64, onComplete func(error)) error {
	g.mu.Lock()
	vs, ok := g.guilds[guildID]
	if !ok || vs.vc == nil {
		g.mu.Unlock()
		return fmt.Errorf("no voice connection for guild %s", guildID)
	}
	if vs.state != music.RenderIdle {
		g.mu.Unlock()
		return fmt.Errorf("render already active for guild %s", guildID)
	}
	g.mu.Unlock()

	stream, cleanup, err := spawnStream(streamURL)
	if err != nil {
		return fmt.Errorf("stream open error: %w", err)
	}

	// Re-check: the connection may have dropped or another render started
	// while the process was spawning.
	g.mu.Lock()
	vs, ok = g.guilds[guildID]
	if !ok || vs.vc == nil || vs.state != music.RenderIdle {
		g.mu.Unlock()
		cleanup()
		stream.Close()
		return fmt.Errorf("voice state changed while starting render for guild %s", guildID)
	}

	ctl := newRenderControl(volume)
	vs.render = ctl
	vs.state = music.RenderPlaying
	vc := vs.vc
	g.mu.Unlock()

	go func() {
		if err := vc.Speaking(true); err != nil {
			log.Printf("[WARN] discord: speaking on failed for guild %s: %v", guildID, err)
		}

		streamErr := streamToVoice(stream, ctl, vc)

		if err := vc.Speaking(false); err != nil {
			log.Printf("[WARN] discord: speaking off failed for guild %s: %v", guildID, err)
		}
		cleanup()

		g.mu.Lock()
		if cur, ok := g.guilds[guildID]; ok && cur.render == ctl {
			cur.render = nil
			cur.state = music.RenderIdle
		}
		g.mu.Unlock()

		onComplete(streamErr)
	}()

	return nil
}

func (g *VoiceGateway) Pause(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	vs, ok := g.guilds[guildID]
	if !ok || vs.render == nil || vs.state != music.RenderPlaying {
		return
	}
	vs.render.paused.Store(true)
	vs.state = music.RenderPaused
}

func (g *VoiceGateway) Resume(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	vs, ok := g.guilds[guildID]
	if !ok || vs.render == nil || vs.state != music.RenderPaused {
		return
	}
	vs.render.paused.Store(false)
	vs.state = music.RenderPlaying
}

// StopRender asks the render goroutine to exit; completion is reported
// through the onComplete callback as usual.
func (g *VoiceGateway) StopRender(guildID string) {
	g.mu.Lock()
	vs, ok := g.guilds[guildID]
	var ctl *renderControl
	if ok {
		ctl = vs.render
	}
	g.mu.Unlock()

	if ctl != nil {
		ctl.requestStop()
	}
}

func (g *VoiceGateway) SetLiveVolume(guildID string, fraction float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	vs, ok := g.guilds[guildID]
	if !ok || vs.render == nil {
		return false
	}
	vs.render.setVolume(fraction)
	return true
}
