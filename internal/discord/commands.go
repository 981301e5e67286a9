package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/repository"
	"github.com/intity01/sakudoko-bot/internal/session"
	"github.com/intity01/sakudoko-bot/internal/utils"
)

// buttonCooldown bounds control-button presses per user.
const buttonCooldown = 2 * time.Second

type CommandHandler struct {
	cfg      *config.Config
	repo     *repository.Repo
	sessions *session.Manager

	mu              sync.Mutex
	buttonCooldowns map[string]*rate.Limiter
}

func NewCommandHandler(cfg *config.Config, repo *repository.Repo, sessions *session.Manager) *CommandHandler {
	return &CommandHandler{
		cfg:             cfg,
		repo:            repo,
		sessions:        sessions,
		buttonCooldowns: make(map[string]*rate.Limiter),
	}
}

// Commands lists the slash command surface; the dashboard exposes the same
// list read-only.
func Commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Join your voice channel and open a request room"},
		{Name: "leave", Description: "Close the room and leave voice"},
		{
			Name:        "play",
			Description: "Queue a song (name, YouTube/Spotify link, or playlist)",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "query", Description: "song name or URL", Type: discordgo.ApplicationCommandOptionString, Required: true},
			},
		},
		{Name: "queue", Description: "Show the current queue"},
		{
			Name:        "remove",
			Description: "Remove a song from the queue",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "position", Description: "queue position (1 = next)", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
			},
		},
		{Name: "shuffle", Description: "Shuffle the queue"},
		{Name: "loop", Description: "Toggle looping the queue"},
		{Name: "autoplay", Description: "Toggle autoplay filler when the queue runs out"},
		{
			Name:        "filter",
			Description: "Set the audio filter for upcoming songs",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name: "name", Description: "filter name", Type: discordgo.ApplicationCommandOptionString, Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "none", Value: "none"},
						{Name: "bass", Value: "bass"},
						{Name: "nightcore", Value: "nightcore"},
						{Name: "pitch", Value: "pitch"},
					},
				},
			},
		},
		{Name: "sync_permissions", Description: "Re-grant room access to everyone in the voice channel"},
		{Name: "voteskip", Description: "Vote to skip the current song"},
		{Name: "pause", Description: "Pause playback"},
		{Name: "resume", Description: "Resume playback"},
		{Name: "skip", Description: "Skip the current song"},
		{
			Name:        "volume",
			Description: "Set playback volume",
			Options: []*discordgo.ApplicationCommandOption{
				{Name: "level", Description: "0-200", Type: discordgo.ApplicationCommandOptionInteger, Required: true},
			},
		},
		{Name: "nowplaying", Description: "Show the current song"},
		{
			Name:        "playlist",
			Description: "Manage saved playlists",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "save", Description: "save the current queue",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "playlist name", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "load", Description: "queue a saved playlist",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "playlist name", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "list", Description: "list your playlists"},
				{
					Type: discordgo.ApplicationCommandOptionSubCommand, Name: "delete", Description: "delete a playlist",
					Options: []*discordgo.ApplicationCommandOption{
						{Name: "name", Description: "playlist name", Type: discordgo.ApplicationCommandOptionString, Required: true},
					},
				},
			},
		},
		{Name: "history", Description: "Show recently played songs"},
	}
}

func (h *CommandHandler) RegisterCommands(s *discordgo.Session, appID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(appID, "", Commands())
	return err
}

func (h *CommandHandler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		h.handleControlButton(s, i)
		return
	case discordgo.InteractionApplicationCommand:
	default:
		return
	}
	data := i.ApplicationCommandData()
	zlog.Debug().Str("guild", i.GuildID).Str("user", userIDOf(i)).Str("command", data.Name).Msg("command received")

	switch data.Name {
	case "join":
		h.cmdJoin(s, i)
	case "leave":
		h.cmdLeave(s, i)
	case "play":
		h.cmdPlay(s, i)
	case "queue":
		h.cmdQueue(s, i)
	case "remove":
		h.cmdRemove(s, i)
	case "shuffle":
		h.cmdShuffle(s, i)
	case "loop":
		h.cmdLoop(s, i)
	case "autoplay":
		h.cmdAutoplay(s, i)
	case "filter":
		h.cmdFilter(s, i)
	case "sync_permissions":
		h.cmdSyncPermissions(s, i)
	case "voteskip":
		h.cmdVoteSkip(s, i)
	case "pause":
		h.cmdPause(s, i)
	case "resume":
		h.cmdResume(s, i)
	case "skip":
		h.cmdSkip(s, i)
	case "volume":
		h.cmdVolume(s, i)
	case "nowplaying":
		h.cmdNowPlaying(s, i)
	case "playlist":
		h.cmdPlaylist(s, i)
	case "history":
		h.cmdHistory(s, i)
	default:
		zlog.Debug().Str("command", data.Name).Msg("unknown command")
	}
}

// handleControlButton routes now-playing button presses through the same
// owner/elevated gate as the slash controls, behind a short per-user
// cooldown.
func (h *CommandHandler) handleControlButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, "music_") {
		return
	}
	sess := h.sessions.Peek(i.GuildID)
	if sess == nil || sess.RoomChannelID() == "" {
		h.reply(s, i, "No active room.", true)
		return
	}
	userID := userIDOf(i)
	if !sess.CanControl(userID) {
		h.reply(s, i, "Only the room owner or an admin can use the controls.", true)
		return
	}
	if !h.buttonLimiter(userID).Allow() {
		h.reply(s, i, "Give the buttons a couple of seconds between presses.", true)
		return
	}

	zlog.Debug().Str("guild", i.GuildID).Str("user", userID).Str("control", customID).Msg("control button pressed")
	msg := applyControl(sess, customID)
	if msg == "" {
		return
	}
	h.reply(s, i, msg, true)
}

func (h *CommandHandler) buttonLimiter(userID string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	lim, ok := h.buttonCooldowns[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(buttonCooldown), 1)
		h.buttonCooldowns[userID] = lim
	}
	return lim
}

func userIDOf(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func displayNameOf(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		if i.Member.Nick != "" {
			return i.Member.Nick
		}
		if i.Member.User != nil {
			return i.Member.User.Username
		}
	}
	if i.User != nil {
		return i.User.Username
	}
	return "unknown"
}

func (h *CommandHandler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: flags},
	}); err != nil {
		zlog.Warn().Err(err).Str("guild", i.GuildID).Msg("reply failed")
	}
}

func (h *CommandHandler) replyEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	}); err != nil {
		zlog.Warn().Err(err).Str("guild", i.GuildID).Msg("embed reply failed")
	}
}

func (h *CommandHandler) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		zlog.Warn().Err(err).Str("guild", i.GuildID).Msg("defer reply failed")
	}
}

func (h *CommandHandler) editReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		zlog.Warn().Err(err).Str("guild", i.GuildID).Msg("edit reply failed")
	}
}

func userInVoice(s *discordgo.Session, guildID, userID string) (string, bool) {
	g, _ := s.State.Guild(guildID)
	if g == nil {
		g, _ = s.Guild(guildID)
	}
	if g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// activeSession returns the guild's session only when a room is open.
func (h *CommandHandler) activeSession(s *discordgo.Session, i *discordgo.InteractionCreate) *session.Session {
	sess := h.sessions.Peek(i.GuildID)
	if sess == nil || sess.RoomChannelID() == "" {
		h.reply(s, i, "No active room. Use /join first.", true)
		return nil
	}
	return sess
}

// controlSession is activeSession plus the owner/elevated gate.
func (h *CommandHandler) controlSession(s *discordgo.Session, i *discordgo.InteractionCreate) *session.Session {
	sess := h.activeSession(s, i)
	if sess == nil {
		return nil
	}
	if !sess.CanControl(userIDOf(i)) {
		h.reply(s, i, "Only the room owner or an admin can do that.", true)
		return nil
	}
	return sess
}

func (h *CommandHandler) cmdJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := userIDOf(i)
	chID, ok := userInVoice(s, i.GuildID, userID)
	if !ok {
		h.reply(s, i, "Join a voice channel first.", true)
		return
	}

	h.deferReply(s, i)
	sess := h.sessions.Get(i.GuildID)
	room, err := sess.OpenRoom(context.Background(), userID, chID)
	switch {
	case errors.Is(err, session.ErrPermissionDenied):
		h.editReply(s, i, "This room belongs to someone else.")
	case err != nil:
		zlog.Error().Err(err).Str("guild", i.GuildID).Msg("open room failed")
		h.editReply(s, i, "Couldn't open a room, try again.")
	default:
		h.editReply(s, i, fmt.Sprintf("Room is open: <#%s>. Post song requests there.", room))
	}
}

func (h *CommandHandler) cmdLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	h.reply(s, i, "Closing the room. Thanks for listening!", false)
	sess.Close(context.Background())
}

func (h *CommandHandler) cmdPlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	userID := userIDOf(i)
	query := strings.TrimSpace(i.ApplicationCommandData().Options[0].StringValue())
	if query == "" {
		h.reply(s, i, "Give me something to play.", true)
		return
	}
	chID, ok := userInVoice(s, i.GuildID, userID)
	if !ok {
		h.reply(s, i, "Join a voice channel first.", true)
		return
	}

	h.deferReply(s, i)
	sess := h.sessions.Get(i.GuildID)
	if sess.RoomChannelID() == "" {
		if _, err := sess.OpenRoom(context.Background(), userID, chID); err != nil {
			if errors.Is(err, session.ErrPermissionDenied) {
				h.editReply(s, i, "This room belongs to someone else.")
			} else {
				zlog.Error().Err(err).Str("guild", i.GuildID).Msg("open room failed")
				h.editReply(s, i, "Couldn't open a room, try again.")
			}
			return
		}
	}

	out, err := sess.HandleRequest(context.Background(), query, userID, displayNameOf(i))
	h.editReply(s, i, requestMessage(out, err))
}

func requestMessage(out session.RequestOutcome, err error) string {
	switch {
	case errors.Is(err, session.ErrCooldown):
		return "Slow down a little between requests."
	case errors.Is(err, session.ErrNotFound):
		return "Couldn't find anything for that."
	case err != nil:
		return "Something went wrong with that request."
	case out.PlaylistTitle != "":
		return fmt.Sprintf("Queued %d songs from **%s**.", out.Queued, utils.EscapeMd(out.PlaylistTitle))
	default:
		return fmt.Sprintf("**%s** added to the queue.", utils.EscapeMd(out.Title))
	}
}

func (h *CommandHandler) cmdQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.activeSession(s, i)
	if sess == nil {
		return
	}
	h.replyEmbed(s, i, queueEmbed(h.cfg, sess))
}

func (h *CommandHandler) cmdRemove(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	pos := int(i.ApplicationCommandData().Options[0].IntValue())
	removed, ok := sess.Remove(pos)
	if !ok {
		h.reply(s, i, "No song at that position.", true)
		return
	}
	h.reply(s, i, fmt.Sprintf("Removed **%s**.", utils.EscapeMd(removed.DisplayTitle())), false)
}

func (h *CommandHandler) cmdShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	if !sess.Shuffle() {
		h.reply(s, i, "Not enough songs to shuffle.", true)
		return
	}
	h.reply(s, i, "Queue shuffled. 🔀", false)
}

func (h *CommandHandler) cmdLoop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	if sess.ToggleLoop() {
		h.reply(s, i, "Loop enabled. 🔁", false)
	} else {
		h.reply(s, i, "Loop disabled.", false)
	}
}

func (h *CommandHandler) cmdAutoplay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	if sess.ToggleAutoPlay() {
		h.reply(s, i, "Autoplay enabled. I'll keep the music going.", false)
	} else {
		h.reply(s, i, "Autoplay disabled.", false)
	}
}

func (h *CommandHandler) cmdFilter(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	name := i.ApplicationCommandData().Options[0].StringValue()
	f, err := sess.SetFilter(name)
	if err != nil {
		h.reply(s, i, "Unknown filter. Pick one of: none, bass, nightcore, pitch.", true)
		return
	}
	if f == session.FilterNone {
		h.reply(s, i, "Filter cleared for upcoming songs.", false)
	} else {
		h.reply(s, i, fmt.Sprintf("Filter **%s** will apply from the next song.", f), false)
	}
}

func (h *CommandHandler) cmdSyncPermissions(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.activeSession(s, i)
	if sess == nil {
		return
	}
	err := sess.SyncPermissions(context.Background())
	switch {
	case errors.Is(err, session.ErrRateLimited):
		h.reply(s, i, "Permissions were synced recently, try again in a bit.", true)
	case err != nil:
		zlog.Warn().Err(err).Str("guild", i.GuildID).Msg("sync permissions failed")
		h.reply(s, i, "Couldn't sync permissions for everyone.", true)
	default:
		h.reply(s, i, "Room access synced with the voice channel. ✅", false)
	}
}

func (h *CommandHandler) cmdVoteSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.activeSession(s, i)
	if sess == nil {
		return
	}
	out, err := sess.VoteSkip(userIDOf(i))
	if err != nil {
		h.reply(s, i, "Nothing is playing.", true)
		return
	}
	if out.Met {
		if err := sess.Skip(); err != nil {
			h.reply(s, i, "Vote passed but the song already ended.", false)
			return
		}
		h.reply(s, i, "Vote passed, skipping! ⏭️", false)
		return
	}
	h.reply(s, i, fmt.Sprintf("Skip vote registered: %d/%d.", out.Votes, out.Quorum), false)
}

func (h *CommandHandler) cmdPause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	if err := sess.Pause(); err != nil {
		h.reply(s, i, "Nothing is playing.", true)
		return
	}
	h.reply(s, i, "Paused. ⏸️", false)
}

func (h *CommandHandler) cmdResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	if err := sess.Resume(); err != nil {
		h.reply(s, i, "Nothing is playing.", true)
		return
	}
	h.reply(s, i, "Resumed. ▶️", false)
}

func (h *CommandHandler) cmdSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	if err := sess.Skip(); err != nil {
		h.reply(s, i, "Nothing is playing.", true)
		return
	}
	h.reply(s, i, "Skipped. ⏭️", false)
}

func (h *CommandHandler) cmdVolume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.controlSession(s, i)
	if sess == nil {
		return
	}
	level := int(i.ApplicationCommandData().Options[0].IntValue())
	if err := sess.SetVolume(level); err != nil {
		h.reply(s, i, "Volume goes from 0 to 200.", true)
		return
	}
	h.reply(s, i, fmt.Sprintf("Volume set to %d%%.", level), false)
}

func (h *CommandHandler) cmdNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sess := h.activeSession(s, i)
	if sess == nil {
		return
	}
	track, requester := sess.NowPlaying()
	if track == nil {
		h.reply(s, i, "Nothing is playing.", true)
		return
	}
	h.replyEmbed(s, i, nowPlayingEmbed(h.cfg, track, requester))
}

func (h *CommandHandler) cmdPlaylist(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if h.repo == nil {
		h.reply(s, i, "Playlists aren't available.", true)
		return
	}
	sub := i.ApplicationCommandData().Options[0]
	userID := userIDOf(i)
	ctx := context.Background()

	switch sub.Name {
	case "save":
		sess := h.activeSession(s, i)
		if sess == nil {
			return
		}
		name := sub.Options[0].StringValue()
		var songs []repository.PlaylistSong
		if track, _ := sess.NowPlaying(); track != nil {
			songs = append(songs, repository.PlaylistSong{Title: track.Title, URL: track.PageURL})
		}
		for _, e := range sess.QueueSnapshot() {
			url := e.Query
			if e.Track != nil && e.Track.PageURL != "" {
				url = e.Track.PageURL
			}
			songs = append(songs, repository.PlaylistSong{Title: e.DisplayTitle(), URL: url})
		}
		if len(songs) == 0 {
			h.reply(s, i, "Nothing to save, the queue is empty.", true)
			return
		}
		if err := h.repo.SavePlaylist(ctx, i.GuildID, userID, name, songs); err != nil {
			zlog.Error().Err(err).Str("guild", i.GuildID).Msg("playlist save failed")
			h.reply(s, i, "Couldn't save the playlist.", true)
			return
		}
		h.reply(s, i, fmt.Sprintf("Saved **%s** with %d songs.", utils.EscapeMd(name), len(songs)), false)

	case "load":
		name := sub.Options[0].StringValue()
		songs, err := h.repo.LoadPlaylist(ctx, i.GuildID, userID, name)
		if err != nil {
			zlog.Error().Err(err).Str("guild", i.GuildID).Msg("playlist load failed")
			h.reply(s, i, "Couldn't load the playlist.", true)
			return
		}
		if songs == nil {
			h.reply(s, i, "No playlist by that name.", true)
			return
		}
		chID, ok := userInVoice(s, i.GuildID, userID)
		if !ok {
			h.reply(s, i, "Join a voice channel first.", true)
			return
		}
		h.deferReply(s, i)
		sess := h.sessions.Get(i.GuildID)
		if sess.RoomChannelID() == "" {
			if _, err := sess.OpenRoom(ctx, userID, chID); err != nil {
				h.editReply(s, i, "Couldn't open a room, try again.")
				return
			}
		}
		entries := make([]session.QueueEntry, 0, len(songs))
		for _, song := range songs {
			entries = append(entries, session.QueueEntry{
				Query:         song.URL,
				Title:         song.Title,
				RequesterID:   userID,
				RequesterName: displayNameOf(i),
			})
		}
		if err := sess.Enqueue(entries...); err != nil {
			h.editReply(s, i, "Couldn't queue the playlist.")
			return
		}
		h.editReply(s, i, fmt.Sprintf("Queued %d songs from **%s**.", len(entries), utils.EscapeMd(name)))

	case "list":
		names, err := h.repo.ListPlaylists(ctx, i.GuildID, userID)
		if err != nil {
			zlog.Error().Err(err).Str("guild", i.GuildID).Msg("playlist list failed")
			h.reply(s, i, "Couldn't list playlists.", true)
			return
		}
		if len(names) == 0 {
			h.reply(s, i, "You have no saved playlists here.", true)
			return
		}
		h.reply(s, i, "Your playlists: "+utils.EscapeMd(strings.Join(names, ", ")), true)

	case "delete":
		name := sub.Options[0].StringValue()
		found, err := h.repo.DeletePlaylist(ctx, i.GuildID, userID, name)
		if err != nil {
			zlog.Error().Err(err).Str("guild", i.GuildID).Msg("playlist delete failed")
			h.reply(s, i, "Couldn't delete the playlist.", true)
			return
		}
		if !found {
			h.reply(s, i, "No playlist by that name.", true)
			return
		}
		h.reply(s, i, fmt.Sprintf("Deleted **%s**.", utils.EscapeMd(name)), false)
	}
}

func (h *CommandHandler) cmdHistory(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if h.repo == nil {
		h.reply(s, i, "History isn't available.", true)
		return
	}
	entries, err := h.repo.GetSongHistory(context.Background(), i.GuildID, 10)
	if err != nil {
		zlog.Error().Err(err).Str("guild", i.GuildID).Msg("history fetch failed")
		h.reply(s, i, "Couldn't fetch history.", true)
		return
	}
	titles := make([]string, 0, len(entries))
	for _, e := range entries {
		titles = append(titles, fmt.Sprintf("%s (by %s)", e.Title, e.RequestedByName))
	}
	h.replyEmbed(s, i, historyEmbed(h.cfg, titles))
}
