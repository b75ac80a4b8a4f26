package music

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	embed "github.com/clinet/discordgo-embed"

	"groovebox/internal/command"
	"groovebox/internal/music"
)

const EmbedColor = 0x1db954

// Bot is what the command needs from the Discord bot.
type Bot interface {
	Manager() *music.Manager
	FindUserVoiceState(guildID, userID string) (string, error)
}

// MusicCommand is the /music slash command with playback subcommands.
type MusicCommand struct {
	Bot Bot
}

func (c *MusicCommand) Name() string        { return "music" }
func (c *MusicCommand) Description() string { return "Queue and control music playback" }
func (c *MusicCommand) Aliases() []string   { return []string{} }
func (c *MusicCommand) Group() string       { return "music" }
func (c *MusicCommand) Category() string    { return "🎵 Music" }

func (c *MusicCommand) SlashDefinition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        c.Name(),
		Description: c.Description(),
		Type:        discordgo.ChatApplicationCommand,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "join",
				Description: "Join your voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "play",
				Description: "Queue a track by link or search query",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "query",
						Description: "Link to a track or a song name",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "pause",
				Description: "Pause the current track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "resume",
				Description: "Resume a paused track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "skip",
				Description: "Skip to the next queued track",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "volume",
				Description: "Set playback volume",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "percent",
						Description: "Volume percent, 0 to 200",
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop playback and clear the queue",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "leave",
				Description: "Stop playback and leave the voice channel",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "queue",
				Description: "Show the current queue",
			},
		},
	}
}

func (c *MusicCommand) Run(ctx interface{}) error {
	slash, ok := ctx.(*command.SlashInteractionContext)
	if !ok {
		return fmt.Errorf("wrong context type")
	}

	options := slash.Event.ApplicationCommandData().Options
	if len(options) == 0 {
		return fmt.Errorf("missing subcommand")
	}
	sub := options[0]

	switch sub.Name {
	case "join":
		return c.runJoin(slash)
	case "play":
		return c.runPlay(slash, sub)
	case "pause":
		return c.runPause(slash)
	case "resume":
		return c.runResume(slash)
	case "skip":
		return c.runSkip(slash)
	case "volume":
		return c.runVolume(slash, sub)
	case "stop":
		return c.runStop(slash)
	case "leave":
		return c.runLeave(slash)
	case "queue":
		return c.runQueue(slash)
	default:
		return fmt.Errorf("unknown subcommand: %s", sub.Name)
	}
}

func (c *MusicCommand) runJoin(slash *command.SlashInteractionContext) error {
	guildID := slash.Event.GuildID
	channelID, err := c.Bot.FindUserVoiceState(guildID, slash.Event.Member.User.ID)
	if err != nil {
		return respondText(slash, "🎵 You need to be in a voice channel first.")
	}

	if err := c.Bot.Manager().Connect(guildID, channelID); err != nil {
		if errors.Is(err, music.ErrVoiceBusy) {
			return respondText(slash, "🎵 I'm already playing in another voice channel.")
		}
		return respondText(slash, fmt.Sprintf("🎵 Error: %v", err))
	}
	return respondText(slash, "🎵 Joined your voice channel.")
}

func (c *MusicCommand) runPlay(slash *command.SlashInteractionContext, sub *discordgo.ApplicationCommandInteractionDataOption) error {
	guildID := slash.Event.GuildID
	member := slash.Event.Member

	var query string
	for _, opt := range sub.Options {
		if opt.Name == "query" {
			query = opt.StringValue()
		}
	}
	if strings.TrimSpace(query) == "" {
		return respondText(slash, "🎵 Error: query is required")
	}

	channelID, err := c.Bot.FindUserVoiceState(guildID, member.User.ID)
	if err != nil {
		return respondText(slash, "🎵 You need to be in a voice channel first.")
	}

	// Extraction can take seconds; defer so the interaction doesn't expire.
	if err := slash.Session.InteractionRespond(slash.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		return fmt.Errorf("failed to send deferred response: %w", err)
	}

	if err := c.Bot.Manager().Connect(guildID, channelID); err != nil {
		if errors.Is(err, music.ErrVoiceBusy) {
			return followupText(slash, "🎵 I'm already playing in another voice channel.")
		}
		return followupText(slash, fmt.Sprintf("🎵 Error: %v", err))
	}

	track, queueLen, err := c.Bot.Manager().Enqueue(guildID, query, member.User.Username, slash.Event.ChannelID)
	if err != nil {
		return followupText(slash, fmt.Sprintf("🎵 Error: failed to resolve track: %v", err))
	}

	e := embed.NewEmbed().
		SetTitle("🎵 Track Queued").
		SetDescription(fmt.Sprintf("[%s](%s)\nPosition in queue: %d", track.Title, track.WebpageURL, queueLen)).
		SetColor(EmbedColor).MessageEmbed
	_, err = slash.Session.FollowupMessageCreate(slash.Event.Interaction, false, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{e},
	})
	return err
}

func (c *MusicCommand) runPause(slash *command.SlashInteractionContext) error {
	err := c.Bot.Manager().Pause(slash.Event.GuildID)
	switch {
	case err == nil:
		return respondText(slash, "⏸️ Paused.")
	case errors.Is(err, music.ErrAlreadyPaused):
		return respondText(slash, "⏸️ Already paused.")
	case errors.Is(err, music.ErrNotConnected):
		return respondText(slash, "🎵 I'm not in a voice channel.")
	default:
		return respondText(slash, "🎵 Nothing is playing.")
	}
}

func (c *MusicCommand) runResume(slash *command.SlashInteractionContext) error {
	err := c.Bot.Manager().Resume(slash.Event.GuildID)
	switch {
	case err == nil:
		return respondText(slash, "▶️ Resumed.")
	case errors.Is(err, music.ErrAlreadyPlaying):
		return respondText(slash, "▶️ Already playing.")
	case errors.Is(err, music.ErrNotConnected):
		return respondText(slash, "🎵 I'm not in a voice channel.")
	default:
		return respondText(slash, "🎵 Nothing is paused.")
	}
}

func (c *MusicCommand) runSkip(slash *command.SlashInteractionContext) error {
	err := c.Bot.Manager().Skip(slash.Event.GuildID, true)
	switch {
	case err == nil:
		return respondText(slash, "⏭️ Skipped.")
	case errors.Is(err, music.ErrNotConnected):
		return respondText(slash, "🎵 I'm not in a voice channel.")
	default:
		return respondText(slash, "🎵 Nothing is playing.")
	}
}

func (c *MusicCommand) runVolume(slash *command.SlashInteractionContext, sub *discordgo.ApplicationCommandInteractionDataOption) error {
	guildID := slash.Event.GuildID

	var percent int
	for _, opt := range sub.Options {
		if opt.Name == "percent" {
			percent = int(opt.IntValue())
		}
	}

	clamped := c.Bot.Manager().SetVolumePercent(guildID, percent)
	applied := c.Bot.Manager().ApplyVolumeToActive(guildID)

	msg := fmt.Sprintf("🔊 Volume set to %d%%.", clamped)
	if !applied {
		msg += " Takes effect on the next track."
	}
	return respondText(slash, msg)
}

func (c *MusicCommand) runStop(slash *command.SlashInteractionContext) error {
	c.Bot.Manager().Stop(slash.Event.GuildID)
	return respondText(slash, "⏹️ Stopped and cleared the queue.")
}

func (c *MusicCommand) runLeave(slash *command.SlashInteractionContext) error {
	if err := c.Bot.Manager().Leave(slash.Event.GuildID); err != nil {
		return respondText(slash, "🎵 I'm not in a voice channel.")
	}
	return respondText(slash, "👋 Left the voice channel.")
}

func (c *MusicCommand) runQueue(slash *command.SlashInteractionContext) error {
	nowPlaying, queue, volume := c.Bot.Manager().Snapshot(slash.Event.GuildID)

	var b strings.Builder
	if nowPlaying != nil {
		fmt.Fprintf(&b, "**Now playing:** [%s](%s)\n\n", nowPlaying.Title, nowPlaying.WebpageURL)
	} else {
		b.WriteString("Nothing is playing.\n\n")
	}

	if len(queue) == 0 {
		b.WriteString("The queue is empty.")
	} else {
		shown := queue
		if len(shown) > 10 {
			shown = shown[:10]
		}
		for i, track := range shown {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, track.Title, track.WebpageURL)
		}
		if rest := len(queue) - len(shown); rest > 0 {
			fmt.Fprintf(&b, "...and %d more\n", rest)
		}
	}

	e := embed.NewEmbed().
		SetTitle("🎵 Queue").
		SetDescription(b.String()).
		SetFooter(fmt.Sprintf("Volume: %d%%", volume)).
		SetColor(EmbedColor).MessageEmbed
	return slash.Session.InteractionRespond(slash.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{e}},
	})
}

func respondText(slash *command.SlashInteractionContext, content string) error {
	return slash.Session.InteractionRespond(slash.Event.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

func followupText(slash *command.SlashInteractionContext, content string) error {
	_, err := slash.Session.FollowupMessageCreate(slash.Event.Interaction, true, &discordgo.WebhookParams{
		Content: content,
	})
	return err
}
