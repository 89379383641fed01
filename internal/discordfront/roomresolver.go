package discordfront

import (
	"github.com/bwmarrin/discordgo"

	"github.com/cpdt/mrvn-bot/internal/coordinator"
	"github.com/cpdt/mrvn-bot/internal/queuemodel"
)

// RoomResolver answers the coordinator's and speaker pool's questions about
// who's connected where, backed by the command bot's gateway-tracked guild
// voice states. It requires the IntentsGuildVoiceStates intent so
// session.State stays current.
type RoomResolver struct {
	session *discordgo.Session
}

// NewRoomResolver wraps session. session must have voice-state tracking
// enabled (the default for discordgo.New sessions with State.TrackVoice).
func NewRoomResolver(session *discordgo.Session) *RoomResolver {
	return &RoomResolver{session: session}
}

var _ coordinator.RoomResolver = (*RoomResolver)(nil)

// CurrentRoom returns the voice channel user is connected to in server, or
// "" if they're not connected to any voice channel there.
func (r *RoomResolver) CurrentRoom(server coordinator.ServerID, user queuemodel.UserID) queuemodel.RoomID {
	guild, err := r.session.State.Guild(server)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == user {
			return vs.ChannelID
		}
	}
	return ""
}

// IsUserInRoom reports whether user is currently connected to room in any
// guild the bot is aware of.
func (r *RoomResolver) IsUserInRoom(user queuemodel.UserID, room queuemodel.RoomID) bool {
	for _, guild := range r.session.State.Guilds {
		for _, vs := range guild.VoiceStates {
			if vs.ChannelID == room && vs.UserID == user {
				return true
			}
		}
	}
	return false
}

// RoomParticipantCount counts members currently connected to room, excluding
// the command bot's own user. Voice bots in the room are counted.
func (r *RoomResolver) RoomParticipantCount(room queuemodel.RoomID) int {
	count := 0
	for _, guild := range r.session.State.Guilds {
		for _, vs := range guild.VoiceStates {
			if vs.ChannelID != room {
				continue
			}
			if vs.UserID == r.session.State.User.ID {
				continue
			}
			count++
		}
	}
	return count
}
