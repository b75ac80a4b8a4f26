package command

import (
	"log"

	"github.com/bwmarrin/discordgo"
)

type Middleware func(Command) Command

type wrappedCommand struct {
	Command
	wrap func(ctx interface{}) error
}

func (w *wrappedCommand) Run(ctx interface{}) error {
	return w.wrap(ctx)
}

func (w *wrappedCommand) SlashDefinition() *discordgo.ApplicationCommand {
	if sp, ok := w.Command.(SlashProvider); ok {
		return sp.SlashDefinition()
	}
	return nil
}

// WithGuildOnly rejects interactions outside a guild before the command runs.
func WithGuildOnly(cmd Command) Command {
	return &wrappedCommand{
		Command: cmd,
		wrap: func(ctx interface{}) error {
			if slash, ok := ctx.(*SlashInteractionContext); ok && slash.Event.GuildID == "" {
				return slash.Session.InteractionRespond(slash.Event.Interaction, &discordgo.InteractionResponse{
					Type: discordgo.InteractionResponseChannelMessageWithSource,
					Data: &discordgo.InteractionResponseData{
						Content: "You must be in a guild to use this command.",
						Flags:   discordgo.MessageFlagsEphemeral,
					},
				})
			}
			return cmd.Run(ctx)
		},
	}
}

// WithCommandLogger logs who invoked what, in which guild.
func WithCommandLogger(cmd Command) Command {
	return &wrappedCommand{
		Command: cmd,
		wrap: func(ctx interface{}) error {
			if slash, ok := ctx.(*SlashInteractionContext); ok && slash.Event.Member != nil {
				log.Printf("[INFO] command %s invoked by %s in guild %s",
					cmd.Name(), slash.Event.Member.User.Username, slash.Event.GuildID)
			}
			return cmd.Run(ctx)
		},
	}
}
