package discord

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"groovebox/internal/music"
)

func seedVoiceSession(g *VoiceGateway, guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.guilds[guildID] = &voiceSession{vc: &discordgo.VoiceConnection{}, state: music.RenderIdle}
}

// A slow ffmpeg spawn in one guild must not block state queries for any
// other guild.
func TestSlowSpawnDoesNotBlockOtherGuilds(t *testing.T) {
	g := NewVoiceGateway(nil)
	seedVoiceSession(g, "g1")
	seedVoiceSession(g, "g2")

	entered := make(chan struct{})
	release := make(chan struct{})
	orig := spawnStream
	spawnStream = func(url string) (io.ReadCloser, func(), error) {
		close(entered)
		<-release
		return nil, nil, errors.New("spawn aborted")
	}
	t.Cleanup(func() { spawnStream = orig })

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.StartRender("g1", "stream://slow", 1.0, func(error) {})
	}()
	<-entered

	got := make(chan music.RenderState, 1)
	go func() { got <- g.RenderState("g2") }()
	select {
	case st := <-got:
		if st != music.RenderIdle {
			t.Errorf("RenderState(g2) = %v, want idle", st)
		}
	case <-time.After(time.Second):
		t.Fatal("RenderState for another guild blocked behind a slow spawn")
	}

	close(release)
	if err := <-errCh; err == nil {
		t.Fatal("expected an error from the aborted spawn")
	}
	if g.RenderState("g1") != music.RenderIdle {
		t.Error("failed spawn left the guild non-idle")
	}
}

// The connection can drop while ffmpeg is starting; the spawned process must
// be reaped and the render refused.
func TestStartRenderRechecksStateAfterSpawn(t *testing.T) {
	g := NewVoiceGateway(nil)
	seedVoiceSession(g, "g1")

	cleaned := make(chan struct{}, 1)
	orig := spawnStream
	spawnStream = func(url string) (io.ReadCloser, func(), error) {
		g.mu.Lock()
		delete(g.guilds, "g1")
		g.mu.Unlock()
		return io.NopCloser(strings.NewReader("")), func() { cleaned <- struct{}{} }, nil
	}
	t.Cleanup(func() { spawnStream = orig })

	if err := g.StartRender("g1", "stream://x", 1.0, func(error) {}); err == nil {
		t.Fatal("expected an error when the connection drops during spawn")
	}
	select {
	case <-cleaned:
	default:
		t.Error("spawned process was not cleaned up")
	}
	if g.RenderState("g1") != music.RenderIdle {
		t.Error("refused render left the guild non-idle")
	}
}
