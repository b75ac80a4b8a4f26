package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"groovebox/internal/music"
)

// Discord is what the API needs from the bot: guild lookups, voice wiring
// and announcement routing. Kept narrow so tests can fake it.
type Discord interface {
	Ready() bool
	GuildCount() int
	GuildAvailable(guildID string) bool
	VoiceConnected(guildID string) bool
	EnsureVoice(guildID, channelID string) error
	DefaultTextChannelID(guildID string) string
}

type Server struct {
	addr    string
	token   string
	discord Discord
	manager *music.Manager
	engine  *gin.Engine
}

// NewServer builds the control API. An empty token disables authentication.
func NewServer(host string, port int, token string, d Discord, m *music.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		addr:    fmt.Sprintf("%s:%d", host, port),
		token:   token,
		discord: d,
		manager: m,
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.handleHealth)

	authed := s.engine.Group("/", s.requireAPIKey)
	authed.GET("/guilds/:id/queue", s.handleQueue)
	authed.POST("/guilds/:id/play", s.handlePlay)
	authed.POST("/guilds/:id/pause", s.handlePause)
	authed.POST("/guilds/:id/resume", s.handleResume)
	authed.POST("/guilds/:id/skip", s.handleSkip)
	authed.POST("/guilds/:id/stop", s.handleStop)
}

func (s *Server) requireAPIKey(c *gin.Context) {
	if s.token == "" {
		return
	}
	if c.GetHeader("X-API-Key") != s.token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERR] Control API shutdown error: %v", err)
		}
	}()

	log.Printf("[INFO] Control API listening on %s", s.addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control API error: %w", err)
	}
	return nil
}
