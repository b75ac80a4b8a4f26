package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"groovebox/internal/discord"
	"groovebox/internal/music"
)

type trackJSON struct {
	Title       string `json:"title"`
	WebpageURL  string `json:"webpage_url"`
	RequestedBy string `json:"requested_by"`
}

func toTrackJSON(t music.Track) trackJSON {
	return trackJSON{Title: t.Title, WebpageURL: t.WebpageURL, RequestedBy: t.RequestedBy}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"discord_ready": s.discord.Ready(),
		"guild_count":   s.discord.GuildCount(),
	})
}

// guildID validates the :id path parameter against known guilds, replying
// 404 itself when the guild is unknown.
func (s *Server) guildID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !s.discord.GuildAvailable(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown guild"})
		return "", false
	}
	return id, true
}

func (s *Server) handleQueue(c *gin.Context) {
	guildID, ok := s.guildID(c)
	if !ok {
		return
	}

	nowPlaying, queue, volume := s.manager.Snapshot(guildID)

	var now *trackJSON
	if nowPlaying != nil {
		t := toTrackJSON(*nowPlaying)
		now = &t
	}
	queued := make([]trackJSON, 0, len(queue))
	for _, t := range queue {
		queued = append(queued, toTrackJSON(t))
	}

	c.JSON(http.StatusOK, gin.H{
		"now_playing":    now,
		"queue":          queued,
		"volume_percent": volume,
	})
}

type playRequest struct {
	Query          string `json:"query"`
	RequestedBy    string `json:"requested_by"`
	VoiceChannelID string `json:"voice_channel_id"`
	TextChannelID  string `json:"text_channel_id"`
}

func (s *Server) handlePlay(c *gin.Context) {
	guildID, ok := s.guildID(c)
	if !ok {
		return
	}

	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	if req.RequestedBy == "" {
		req.RequestedBy = "api"
	}

	if req.VoiceChannelID != "" {
		if err := s.discord.EnsureVoice(guildID, req.VoiceChannelID); err != nil {
			switch {
			case errors.Is(err, discord.ErrChannelNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown voice channel"})
			case errors.Is(err, discord.ErrChannelWrongGuild), errors.Is(err, discord.ErrNotVoiceChannel):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
	} else if !s.discord.VoiceConnected(guildID) {
		c.JSON(http.StatusConflict, gin.H{"error": "not connected to a voice channel"})
		return
	}

	textChannelID := req.TextChannelID
	if textChannelID == "" {
		textChannelID = s.discord.DefaultTextChannelID(guildID)
	}

	track, queueLen, err := s.manager.Enqueue(guildID, req.Query, req.RequestedBy, textChannelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"track":        toTrackJSON(track),
		"queue_length": queueLen,
	})
}

func (s *Server) handlePause(c *gin.Context) {
	guildID, ok := s.guildID(c)
	if !ok {
		return
	}

	err := s.manager.Pause(guildID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "paused"})
	case errors.Is(err, music.ErrAlreadyPaused):
		c.JSON(http.StatusOK, gin.H{"status": "already paused"})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleResume(c *gin.Context) {
	guildID, ok := s.guildID(c)
	if !ok {
		return
	}

	err := s.manager.Resume(guildID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "resumed"})
	case errors.Is(err, music.ErrAlreadyPlaying):
		c.JSON(http.StatusOK, gin.H{"status": "already playing"})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleSkip(c *gin.Context) {
	guildID, ok := s.guildID(c)
	if !ok {
		return
	}

	// Unlike the chat command, a paused track cannot be skipped here.
	if err := s.manager.Skip(guildID, false); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "skipped"})
}

func (s *Server) handleStop(c *gin.Context) {
	guildID, ok := s.guildID(c)
	if !ok {
		return
	}

	s.manager.Stop(guildID)
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
