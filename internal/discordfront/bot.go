package discordfront

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cpdt/mrvn-bot/internal/config"
	"github.com/cpdt/mrvn-bot/internal/coordinator"
	"github.com/cpdt/mrvn-bot/internal/queuemodel"
)

// Frontend owns the command-bot's Discord session: it registers slash
// commands, routes interactions into the [coordinator.Coordinator], and
// manages the "now playing" progress message per room.
type Frontend struct {
	session     *discordgo.Session
	router      *CommandRouter
	coordinator *coordinator.Coordinator
	rooms       *RoomResolver
	renderer    *renderer
	progressCfg config.ProgressConfig

	mu       sync.Mutex
	playing  map[string]*PlayingMessage // "guildID|roomID" -> active ticker
	commands []*discordgo.ApplicationCommand
}

// New creates a Frontend around an already-constructed discordgo session
// (not yet opened), coordinator, and room resolver.
func New(session *discordgo.Session, c *coordinator.Coordinator, rooms *RoomResolver, progressCfg config.ProgressConfig, messages map[string]string) *Frontend {
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages

	f := &Frontend{
		session:     session,
		router:      NewCommandRouter(),
		coordinator: c,
		rooms:       rooms,
		renderer:    newRenderer(messages),
		progressCfg: progressCfg,
		playing:     make(map[string]*PlayingMessage),
	}
	f.registerCommands(f.router)
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		f.router.Handle(s, i)
	})
	return f
}

// Open connects to the Discord gateway and registers slash commands with
// the configured guild (or globally, if guildID is empty).
func (f *Frontend) Open(appID, guildID string) error {
	if err := f.session.Open(); err != nil {
		return fmt.Errorf("discordfront: open session: %w", err)
	}

	cmds := f.router.ApplicationCommands()
	registered, err := f.session.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	if err != nil {
		return fmt.Errorf("discordfront: register commands: %w", err)
	}
	f.mu.Lock()
	f.commands = registered
	f.mu.Unlock()
	slog.Info("discordfront: commands registered", "count", len(registered))
	return nil
}

// Close unregisters slash commands and closes the gateway session.
func (f *Frontend) Close(appID, guildID string) error {
	f.mu.Lock()
	for _, cmd := range f.commands {
		if err := f.session.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
			slog.Warn("discordfront: failed to delete command", "name", cmd.Name, "err", err)
		}
	}
	for _, pm := range f.playing {
		pm.Stop()
	}
	f.playing = make(map[string]*PlayingMessage)
	f.mu.Unlock()

	return f.session.Close()
}

func (f *Frontend) startPlayingMessage(guildID, channelID string, song queuemodel.SongRequest, user queuemodel.UserID) {
	room := f.rooms.CurrentRoom(guildID, user)
	if room == "" {
		return
	}
	key := guildID + "|" + room

	pm, err := StartPlayingMessage(f.session, channelID, song, time.Now(), f.progressCfg, f.renderer.overrides)
	if err != nil {
		slog.Warn("discordfront: failed to start playing message", "guild_id", guildID, "room", room, "err", err)
		return
	}

	f.mu.Lock()
	if old, ok := f.playing[key]; ok {
		old.Stop()
	}
	f.playing[key] = pm
	f.mu.Unlock()
}

func (f *Frontend) stopPlayingMessage(guildID string, room queuemodel.RoomID) {
	if room == "" {
		return
	}
	key := guildID + "|" + room

	f.mu.Lock()
	pm, ok := f.playing[key]
	if ok {
		delete(f.playing, key)
	}
	f.mu.Unlock()

	pm.Stop()
}
