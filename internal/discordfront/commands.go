package discordfront

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/cpdt/mrvn-bot/internal/coordinator"
	"github.com/cpdt/mrvn-bot/internal/queuemodel"
)

// registerCommands builds the music command surface (spec.md §6: play,
// resume, replace, pause, skip, stop, nowplaying) and wires it into router.
func (f *Frontend) registerCommands(router *CommandRouter) {
	router.RegisterCommand("play", &discordgo.ApplicationCommand{
		Name:        "play",
		Description: "Queue a song or URL to play in your voice channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "query",
				Description: "A URL or search term",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
		},
	}, f.handlePlay)

	router.RegisterCommand("resume", &discordgo.ApplicationCommand{
		Name:        "resume",
		Description: "Resume playback, or start your next queued track",
	}, f.handleResume)

	router.RegisterCommand("replace", &discordgo.ApplicationCommand{
		Name:        "replace",
		Description: "Replace your most recently queued (or now playing) track",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "query",
				Description: "A URL or search term",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
		},
	}, f.handleReplace)

	router.RegisterCommand("pause", &discordgo.ApplicationCommand{
		Name:        "pause",
		Description: "Pause the current track in your voice channel",
	}, f.handlePause)

	router.RegisterCommand("skip", &discordgo.ApplicationCommand{
		Name:        "skip",
		Description: "Vote to skip the current track",
	}, f.handleSkip)

	router.RegisterCommand("stop", &discordgo.ApplicationCommand{
		Name:        "stop",
		Description: "Vote to stop playback in your room",
	}, f.handleStop)

	router.RegisterCommand("nowplaying", &discordgo.ApplicationCommand{
		Name:        "nowplaying",
		Description: "Show the currently playing track",
	}, f.handleNowPlaying)
}

func (f *Frontend) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !RequireGuild(i) {
		RespondEphemeral(s, i, "This command only works in a server's voice channel.")
		return
	}
	query := i.ApplicationCommandData().Options[0].StringValue()
	user := callerID(i)

	resp := f.coordinator.HandlePlay(context.Background(), i.GuildID, user, query)
	f.handlePlaybackResponse(s, i, resp)
}

func (f *Frontend) handleResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !RequireGuild(i) {
		RespondEphemeral(s, i, "This command only works in a server's voice channel.")
		return
	}
	resp := f.coordinator.HandleResume(context.Background(), i.GuildID, callerID(i))
	f.handlePlaybackResponse(s, i, resp)
}

func (f *Frontend) handleReplace(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !RequireGuild(i) {
		RespondEphemeral(s, i, "This command only works in a server's voice channel.")
		return
	}
	query := i.ApplicationCommandData().Options[0].StringValue()
	resp := f.coordinator.HandleReplace(context.Background(), i.GuildID, callerID(i), query)
	f.handlePlaybackResponse(s, i, resp)
}

func (f *Frontend) handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !RequireGuild(i) {
		RespondEphemeral(s, i, "This command only works in a server's voice channel.")
		return
	}
	resp := f.coordinator.HandlePause(context.Background(), i.GuildID, callerID(i))
	RespondText(s, i, f.renderer.render(resp))
}

func (f *Frontend) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !RequireGuild(i) {
		RespondEphemeral(s, i, "This command only works in a server's voice channel.")
		return
	}
	resp := f.coordinator.HandleSkip(context.Background(), i.GuildID, callerID(i))
	RespondText(s, i, f.renderer.render(resp))
}

func (f *Frontend) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !RequireGuild(i) {
		RespondEphemeral(s, i, "This command only works in a server's voice channel.")
		return
	}
	resp := f.coordinator.HandleStop(context.Background(), i.GuildID, callerID(i))
	if resp.Kind == coordinator.RespStopSuccess {
		f.stopPlayingMessage(i.GuildID, f.roomFor(i.GuildID, callerID(i)))
	}
	RespondText(s, i, f.renderer.render(resp))
}

func (f *Frontend) handleNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !RequireGuild(i) {
		RespondEphemeral(s, i, "This command only works in a server's voice channel.")
		return
	}
	resp := f.coordinator.HandleNowPlaying(context.Background(), i.GuildID, callerID(i))
	if resp.Kind != coordinator.RespNowPlaying {
		RespondText(s, i, f.renderer.render(resp))
		return
	}
	RespondText(s, i, "Now playing — see the progress message in this channel.")
}

// handlePlaybackResponse replies to the interaction and, for responses that
// start or restart a track, (re)starts that room's progress-bar ticker.
func (f *Frontend) handlePlaybackResponse(s *discordgo.Session, i *discordgo.InteractionCreate, resp coordinator.Response) {
	RespondText(s, i, f.renderer.render(resp))

	switch resp.Kind {
	case coordinator.RespPlaying, coordinator.RespResumedQueued, coordinator.RespReplacedCurrent:
		if resp.Song != nil {
			f.startPlayingMessage(i.GuildID, i.ChannelID, *resp.Song, callerID(i))
		}
	}
}

func (f *Frontend) roomFor(server string, user queuemodel.UserID) queuemodel.RoomID {
	return f.rooms.CurrentRoom(server, user)
}

func callerID(i *discordgo.InteractionCreate) queuemodel.UserID {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
