package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"groovebox/internal/discord"
	"groovebox/internal/music"
)

type fakeDiscord struct {
	guilds        map[string]bool
	voice         map[string]bool
	ensureErr     error
	ensureCalls   int
	defaultTextCh string
}

func (f *fakeDiscord) Ready() bool                    { return true }
func (f *fakeDiscord) GuildCount() int                { return len(f.guilds) }
func (f *fakeDiscord) GuildAvailable(id string) bool  { return f.guilds[id] }
func (f *fakeDiscord) VoiceConnected(id string) bool  { return f.voice[id] }
func (f *fakeDiscord) DefaultTextChannelID(id string) string {
	return f.defaultTextCh
}
func (f *fakeDiscord) EnsureVoice(guildID, channelID string) error {
	f.ensureCalls++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.voice[guildID] = true
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	connected map[string]bool
	state     map[string]music.RenderState
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		connected: make(map[string]bool),
		state:     make(map[string]music.RenderState),
	}
}

func (g *fakeGateway) IsConnected(guildID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected[guildID]
}

func (g *fakeGateway) ChannelID(guildID string) string { return "vc-1" }

func (g *fakeGateway) Connect(guildID, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connected[guildID] = true
	return nil
}

func (g *fakeGateway) Move(guildID, channelID string) error { return nil }

func (g *fakeGateway) Disconnect(guildID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.connected, guildID)
	return nil
}

func (g *fakeGateway) RenderState(guildID string) music.RenderState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state[guildID]
}

func (g *fakeGateway) StartRender(guildID, streamURL string, volume float64, onComplete func(error)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state[guildID] = music.RenderPlaying
	return nil
}

func (g *fakeGateway) Pause(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state[guildID] = music.RenderPaused
}

func (g *fakeGateway) Resume(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state[guildID] = music.RenderPlaying
}

func (g *fakeGateway) StopRender(guildID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state[guildID] = music.RenderIdle
}

func (g *fakeGateway) SetLiveVolume(guildID string, fraction float64) bool { return false }

func (g *fakeGateway) setState(guildID string, s music.RenderState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state[guildID] = s
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(query, requestedBy string) (music.Track, error) {
	return music.Track{
		Title:       "Track " + query,
		WebpageURL:  "https://example.com/" + query,
		StreamURL:   "stream://" + query,
		RequestedBy: requestedBy,
	}, nil
}

type testEnv struct {
	server  *Server
	discord *fakeDiscord
	gateway *fakeGateway
	manager *music.Manager
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()

	gw := newFakeGateway()
	m := music.NewManager(gw, fakeExtractor{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)

	d := &fakeDiscord{
		guilds:        map[string]bool{"g1": true},
		voice:         map[string]bool{},
		defaultTextCh: "txt-1",
	}

	return &testEnv{
		server:  NewServer("127.0.0.1", 0, token, d, m),
		discord: d,
		gateway: gw,
		manager: m,
	}
}

func (e *testEnv) do(method, path, key, body string) *httptest.ResponseRecorder {
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	e.server.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON body %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthNeedsNoAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	w := env.do(http.MethodGet, "/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Fatalf("health body = %v", body)
	}
}

func TestAPIKeyEnforced(t *testing.T) {
	env := newTestEnv(t, "secret")

	if w := env.do(http.MethodGet, "/guilds/g1/queue", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodGet, "/guilds/g1/queue", "wrong", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d, want 401", w.Code)
	}
	if w := env.do(http.MethodGet, "/guilds/g1/queue", "secret", ""); w.Code != http.StatusOK {
		t.Fatalf("correct key status = %d, want 200", w.Code)
	}
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, "")

	if w := env.do(http.MethodGet, "/guilds/g1/queue", "", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth disabled", w.Code)
	}
}

func TestUnknownGuildIs404(t *testing.T) {
	env := newTestEnv(t, "")

	for _, path := range []string{"/guilds/nope/queue"} {
		if w := env.do(http.MethodGet, path, "", ""); w.Code != http.StatusNotFound {
			t.Fatalf("GET %s status = %d, want 404", path, w.Code)
		}
	}
	for _, path := range []string{"/guilds/nope/play", "/guilds/nope/pause", "/guilds/nope/stop"} {
		if w := env.do(http.MethodPost, path, "", "{}"); w.Code != http.StatusNotFound {
			t.Fatalf("POST %s status = %d, want 404", path, w.Code)
		}
	}
}

func TestPlayValidation(t *testing.T) {
	env := newTestEnv(t, "")

	if w := env.do(http.MethodPost, "/guilds/g1/play", "", "not json"); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", w.Code)
	}
	if w := env.do(http.MethodPost, "/guilds/g1/play", "", `{"requested_by":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing query status = %d, want 400", w.Code)
	}
}

func TestPlayRequiresVoice(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodPost, "/guilds/g1/play", "", `{"query":"song"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 when not in voice", w.Code)
	}
}

func TestPlayChannelErrors(t *testing.T) {
	env := newTestEnv(t, "")

	env.discord.ensureErr = discord.ErrChannelNotFound
	w := env.do(http.MethodPost, "/guilds/g1/play", "", `{"query":"song","voice_channel_id":"vc-x"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown channel status = %d, want 404", w.Code)
	}

	env.discord.ensureErr = discord.ErrChannelWrongGuild
	w = env.do(http.MethodPost, "/guilds/g1/play", "", `{"query":"song","voice_channel_id":"vc-x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("cross-guild channel status = %d, want 400", w.Code)
	}
}

func TestPlayEnqueues(t *testing.T) {
	env := newTestEnv(t, "")
	env.discord.voice["g1"] = true
	env.gateway.Connect("g1", "vc-1")

	w := env.do(http.MethodPost, "/guilds/g1/play", "", `{"query":"song","requested_by":"alice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	track, ok := body["track"].(map[string]any)
	if !ok {
		t.Fatalf("missing track in response: %v", body)
	}
	if track["title"] != "Track song" || track["requested_by"] != "alice" {
		t.Fatalf("unexpected track: %v", track)
	}
	if body["queue_length"].(float64) != 1 {
		t.Fatalf("queue_length = %v, want 1", body["queue_length"])
	}
}

func TestQueueSnapshot(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(http.MethodGet, "/guilds/g1/queue", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["now_playing"] != nil {
		t.Fatalf("now_playing = %v, want null", body["now_playing"])
	}
	if body["volume_percent"].(float64) != 100 {
		t.Fatalf("volume_percent = %v, want 100", body["volume_percent"])
	}
	if queue, ok := body["queue"].([]any); !ok || len(queue) != 0 {
		t.Fatalf("queue = %v, want empty array", body["queue"])
	}
}

func TestPauseResumeTaxonomy(t *testing.T) {
	env := newTestEnv(t, "")
	env.gateway.Connect("g1", "vc-1")

	// Nothing rendering yet.
	if w := env.do(http.MethodPost, "/guilds/g1/pause", "", ""); w.Code != http.StatusConflict {
		t.Fatalf("pause while idle status = %d, want 409", w.Code)
	}

	env.gateway.setState("g1", music.RenderPlaying)
	if w := env.do(http.MethodPost, "/guilds/g1/pause", "", ""); w.Code != http.StatusOK {
		t.Fatalf("pause status = %d, want 200", w.Code)
	}

	// Pausing an already paused render is benign.
	w := env.do(http.MethodPost, "/guilds/g1/pause", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("double pause status = %d, want 200", w.Code)
	}
	if decodeBody(t, w)["status"] != "already paused" {
		t.Fatalf("double pause body = %s", w.Body.String())
	}

	if w := env.do(http.MethodPost, "/guilds/g1/resume", "", ""); w.Code != http.StatusOK {
		t.Fatalf("resume status = %d, want 200", w.Code)
	}

	w = env.do(http.MethodPost, "/guilds/g1/resume", "", "")
	if w.Code != http.StatusOK || decodeBody(t, w)["status"] != "already playing" {
		t.Fatalf("double resume status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestSkipRequiresPlaying(t *testing.T) {
	env := newTestEnv(t, "")
	env.gateway.Connect("g1", "vc-1")

	if w := env.do(http.MethodPost, "/guilds/g1/skip", "", ""); w.Code != http.StatusConflict {
		t.Fatalf("skip while idle status = %d, want 409", w.Code)
	}

	env.gateway.setState("g1", music.RenderPaused)
	if w := env.do(http.MethodPost, "/guilds/g1/skip", "", ""); w.Code != http.StatusConflict {
		t.Fatalf("skip while paused status = %d, want 409", w.Code)
	}

	env.gateway.setState("g1", music.RenderPlaying)
	if w := env.do(http.MethodPost, "/guilds/g1/skip", "", ""); w.Code != http.StatusOK {
		t.Fatalf("skip while playing status = %d, want 200", w.Code)
	}
}

func TestStopAlwaysSucceeds(t *testing.T) {
	env := newTestEnv(t, "")

	if w := env.do(http.MethodPost, "/guilds/g1/stop", "", ""); w.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", w.Code)
	}
}
