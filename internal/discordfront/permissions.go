package discordfront

import "github.com/bwmarrin/discordgo"

// RequireGuild reports whether i was issued from within a guild text
// channel rather than a DM. Playback commands are meaningless outside a
// guild's voice rooms, mirroring the original's command_handler.rs guard
// that keeps DM-only commands out of the music command set entirely.
func RequireGuild(i *discordgo.InteractionCreate) bool {
	return i.GuildID != ""
}
