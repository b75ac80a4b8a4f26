package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	embed "github.com/clinet/discordgo-embed"

	"groovebox/internal/command"
	musiccmd "groovebox/internal/command/music"
	"groovebox/internal/config"
	"groovebox/internal/music"
	"groovebox/internal/music/extract"
	"groovebox/internal/storage"
)

var (
	ErrGuildNotFound     = errors.New("guild not found")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrChannelWrongGuild = errors.New("channel belongs to a different guild")
	ErrNotVoiceChannel   = errors.New("channel is not a voice channel")
	ErrUserNotInVoice    = errors.New("user is not in a voice channel")
)

// Bot is the Discord side of the player: session, voice gateway and the
// playback manager built on top of them.
type Bot struct {
	dg      *discordgo.Session
	cfg     *config.Config
	gateway *VoiceGateway
	manager *music.Manager
	ready   atomic.Bool
}

func NewBot(cfg *config.Config, store *storage.Storage) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	b := &Bot{dg: dg, cfg: cfg}
	b.gateway = NewVoiceGateway(dg)
	b.manager = music.NewManager(b.gateway, extract.New(cfg.ExtractProxy), store)
	b.manager.SetNotifier(b)

	command.Register(&musiccmd.MusicCommand{Bot: b},
		command.WithGuildOnly,
		command.WithCommandLogger,
	)

	return b, nil
}

func (b *Bot) Manager() *music.Manager { return b.manager }

// Run opens the gateway session and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onInteractionCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	go b.manager.Run(ctx)

	<-ctx.Done()
	log.Println("[INFO] Shutdown signal received. Cleaning up...")
	return nil
}

func (b *Bot) Ready() bool { return b.ready.Load() }

func (b *Bot) GuildCount() int {
	if b.dg.State == nil {
		return 0
	}
	return len(b.dg.State.Guilds)
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	botInfo, err := s.User("@me")
	if err != nil {
		log.Println("[WARN] Error retrieving bot user:", err)
		return
	}

	for _, g := range r.Guilds {
		if err := b.registerCommands(g.ID); err != nil {
			log.Println("[ERR] Error registering slash commands for guild", g.ID, ":", err)
		}
	}

	b.ready.Store(true)
	log.Printf("[INFO] ✅ Discord bot %v is running.", botInfo.Username)
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	log.Printf("[INFO] Bot added to guild: %s (%s)", g.Guild.ID, g.Guild.Name)

	if err := b.registerCommands(g.Guild.ID); err != nil {
		log.Printf("[ERR] Failed to register commands for new guild %s: %v", g.Guild.ID, err)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	cmdName := i.ApplicationCommandData().Name
	cmd, ok := command.Get(cmdName)
	if !ok {
		log.Printf("[WARN] Unknown command: %s", cmdName)
		return
	}

	ctx := &command.SlashInteractionContext{Session: s, Event: i}
	if err := cmd.Run(ctx); err != nil {
		log.Println("[ERR] Error running slash command:", err)
		_ = RespondEphemeral(s, i, fmt.Sprintf("Error running command: %v", err))
	}
}

func (b *Bot) registerCommands(guildID string) error {
	appID := b.dg.State.User.ID
	if appID == "" {
		user, err := b.dg.User("@me")
		if err != nil {
			return err
		}
		appID = user.ID
	}

	for _, cmd := range command.All() {
		slash, ok := cmd.(command.SlashProvider)
		if !ok {
			continue
		}
		def := slash.SlashDefinition()
		if def == nil {
			continue
		}
		if _, err := b.dg.ApplicationCommandCreate(appID, guildID, def); err != nil {
			return fmt.Errorf("can't create command %s: %w", def.Name, err)
		}
	}
	return nil
}

// FindUserVoiceState returns the voice channel the user currently occupies.
func (b *Bot) FindUserVoiceState(guildID, userID string) (string, error) {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return "", ErrGuildNotFound
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", ErrUserNotInVoice
}

// VoiceConnected reports whether the bot holds a voice connection in the guild.
func (b *Bot) VoiceConnected(guildID string) bool {
	return b.gateway.IsConnected(guildID)
}

// GuildAvailable reports whether the bot is in the given guild.
func (b *Bot) GuildAvailable(guildID string) bool {
	_, err := b.dg.State.Guild(guildID)
	return err == nil
}

// EnsureVoice validates the channel and connects to it, moving an existing
// connection when it points elsewhere.
func (b *Bot) EnsureVoice(guildID, channelID string) error {
	channel, err := b.dg.State.Channel(channelID)
	if err != nil {
		channel, err = b.dg.Channel(channelID)
		if err != nil {
			return ErrChannelNotFound
		}
	}
	if channel.GuildID != guildID {
		return ErrChannelWrongGuild
	}
	if channel.Type != discordgo.ChannelTypeGuildVoice && channel.Type != discordgo.ChannelTypeGuildStageVoice {
		return ErrNotVoiceChannel
	}

	if b.gateway.IsConnected(guildID) {
		if b.gateway.ChannelID(guildID) == channelID {
			return nil
		}
		return b.gateway.Move(guildID, channelID)
	}
	return b.gateway.Connect(guildID, channelID)
}

// DefaultTextChannelID picks where unsolicited announcements land: the guild
// system channel when set, otherwise the first text channel.
func (b *Bot) DefaultTextChannelID(guildID string) string {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return ""
	}
	if guild.SystemChannelID != "" {
		return guild.SystemChannelID
	}
	for _, ch := range guild.Channels {
		if ch.Type == discordgo.ChannelTypeGuildText {
			return ch.ID
		}
	}
	return ""
}

// NowPlaying implements music.Notifier. Failures are logged, never returned;
// playback does not depend on announcements landing. The send runs on its own
// goroutine because the manager calls this from its dispatch loop.
func (b *Bot) NowPlaying(textChannelID string, track music.Track) {
	e := embed.NewEmbed().
		SetTitle("🎶 Now Playing").
		SetDescription(fmt.Sprintf("[%s](%s)\nRequested by %s", track.Title, track.WebpageURL, track.RequestedBy)).
		SetColor(EmbedColor).MessageEmbed
	go func() {
		if err := MessageEmbed(b.dg, textChannelID, e); err != nil {
			log.Printf("[WARN] Failed to announce track in channel %s: %v", textChannelID, err)
		}
	}()
}
