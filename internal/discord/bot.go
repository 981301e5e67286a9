package discord

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/dashboard"
	"github.com/intity01/sakudoko-bot/internal/repository"
	"github.com/intity01/sakudoko-bot/internal/resolver"
	"github.com/intity01/sakudoko-bot/internal/session"
)

// Bot wires discordgo to the per-guild orchestrators.
type Bot struct {
	cfg      *config.Config
	repo     *repository.Repo
	sessions *session.Manager
	cmd      *CommandHandler

	mu sync.Mutex
	dg *discordgo.Session
}

// NewBot builds the bot and its session registry. The gateway and the
// per-guild transports are bound to the discordgo session lazily during
// Run, before any handler can fire.
func NewBot(cfg *config.Config, repo *repository.Repo, res session.TrackResolver) *Bot {
	b := &Bot{cfg: cfg, repo: repo}
	b.sessions = session.NewManager(cfg, &lazyGateway{bot: b}, res, repo, func(guildID string) session.AudioTransport {
		return NewVoiceTransport(b.discord(), guildID)
	})
	b.cmd = NewCommandHandler(cfg, repo, b.sessions)
	return b
}

func (b *Bot) discord() *discordgo.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dg
}

// lazyGateway defers gateway construction until the discordgo session
// exists. Session creation only happens from event handlers, which can
// only fire after Run has stored it.
type lazyGateway struct {
	bot  *Bot
	once sync.Once
	gw   *Gateway
}

func (l *lazyGateway) gateway() *Gateway {
	l.once.Do(func() { l.gw = NewGateway(l.bot.cfg, l.bot.discord()) })
	return l.gw
}

func (l *lazyGateway) CreateRoomChannel(ctx context.Context, guildID, voiceChannelID, ownerID string) (string, error) {
	return l.gateway().CreateRoomChannel(ctx, guildID, voiceChannelID, ownerID)
}

func (l *lazyGateway) DeleteChannel(ctx context.Context, channelID string) error {
	return l.gateway().DeleteChannel(ctx, channelID)
}

func (l *lazyGateway) GrantAccess(ctx context.Context, guildID, voiceChannelID, roomChannelID string) error {
	return l.gateway().GrantAccess(ctx, guildID, voiceChannelID, roomChannelID)
}

func (l *lazyGateway) EligibleOccupants(guildID, voiceChannelID string) []string {
	return l.gateway().EligibleOccupants(guildID, voiceChannelID)
}

func (l *lazyGateway) IsElevated(guildID, userID string) bool {
	return l.gateway().IsElevated(guildID, userID)
}

func (l *lazyGateway) Announce(channelID, message string) {
	l.gateway().Announce(channelID, message)
}

func (l *lazyGateway) UpdateNowPlaying(channelID string, track *resolver.TrackInfo, requester string) {
	l.gateway().UpdateNowPlaying(channelID, track, requester)
}

func (l *lazyGateway) ClearNowPlaying(channelID string) {
	l.gateway().ClearNowPlaying(channelID)
}

// Run connects to Discord and blocks until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return err
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b.mu.Lock()
	b.dg = dg
	b.mu.Unlock()

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		zlog.Info().Str("user", s.State.User.Username).Int("guilds", len(s.State.Guilds)).Msg("connected to discord")
		if err := b.cmd.RegisterCommands(s, s.State.User.ID); err != nil {
			zlog.Error().Err(err).Msg("command registration failed")
		}
	})
	dg.AddHandler(b.cmd.HandleInteraction)
	dg.AddHandler(b.handleRoomMessage)
	dg.AddHandler(b.handleVoiceState)

	if err := dg.Open(); err != nil {
		return err
	}
	defer dg.Close()

	<-ctx.Done()

	// Tear every room down cleanly before dropping the gateway.
	for _, g := range dg.State.Guilds {
		if sess := b.sessions.Peek(g.ID); sess != nil {
			sess.Close(context.Background())
		}
	}
	return nil
}

// handleRoomMessage treats any message in a guild's room channel as a song
// request.
func (b *Bot) handleRoomMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	sess := b.sessions.Peek(m.GuildID)
	if sess == nil || sess.RoomChannelID() != m.ChannelID {
		return
	}
	query := strings.TrimSpace(m.Content)
	if query == "" || strings.HasPrefix(query, "#") {
		return
	}

	name := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	}

	out, err := sess.HandleChatRequest(context.Background(), query, m.Author.ID, name)
	if errors.Is(err, session.ErrPermissionDenied) {
		// Someone else's room; drop the message instead of replying.
		if derr := s.ChannelMessageDelete(m.ChannelID, m.ID); derr != nil {
			zlog.Debug().Err(derr).Str("channel", m.ChannelID).Msg("request message delete failed")
		}
		return
	}
	reply := requestMessage(out, err)
	if _, err := s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		zlog.Warn().Err(err).Str("channel", m.ChannelID).Msg("request reply failed")
	}
}

// handleVoiceState watches for the bot being removed from voice outside of
// /leave and runs teardown without re-disconnecting.
func (b *Bot) handleVoiceState(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.UserID != s.State.User.ID {
		return
	}
	if vs.ChannelID != "" {
		return
	}
	// BeforeUpdate is nil when the state cache never saw the bot in voice.
	if vs.BeforeUpdate == nil || vs.BeforeUpdate.ChannelID == "" {
		return
	}
	sess := b.sessions.Peek(vs.GuildID)
	if sess == nil || sess.RoomChannelID() == "" {
		return
	}
	sess.HandleVoiceDrop(context.Background())
}

// Status feeds the dashboard.
func (b *Bot) Status() dashboard.Status {
	b.mu.Lock()
	dg := b.dg
	b.mu.Unlock()
	if dg == nil {
		return dashboard.Status{}
	}

	users := 0
	for _, g := range dg.State.Guilds {
		users += g.MemberCount
	}
	return dashboard.Status{
		Online:    dg.DataReady,
		LatencyMS: int(dg.HeartbeatLatency().Milliseconds()),
		Servers:   len(dg.State.Guilds),
		Users:     users,
	}
}
