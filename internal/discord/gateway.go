package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/resolver"
)

// Gateway adapts discordgo to what the orchestrator needs from the chat
// platform: room channels, occupancy reads, role checks, announcements.
type Gateway struct {
	cfg *config.Config
	dg  *discordgo.Session

	mu         sync.Mutex
	nowPlaying map[string]string // room channel id -> message id
}

func NewGateway(cfg *config.Config, dg *discordgo.Session) *Gateway {
	return &Gateway{cfg: cfg, dg: dg, nowPlaying: make(map[string]string)}
}

// CreateRoomChannel creates the scoped text channel, hidden from everyone
// except the bot and the voice channel's current occupants.
func (g *Gateway) CreateRoomChannel(_ context.Context, guildID, voiceChannelID, ownerID string) (string, error) {
	voice, err := g.dg.Channel(voiceChannelID)
	if err != nil {
		return "", fmt.Errorf("voice channel lookup: %w", err)
	}

	memberPerms := int64(discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory)

	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID, // @everyone shares the guild id
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: int64(discordgo.PermissionViewChannel),
		},
		{
			ID:    g.dg.State.User.ID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberPerms | int64(discordgo.PermissionManageChannels),
		},
	}
	for _, userID := range g.occupants(guildID, voiceChannelID, false) {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    userID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: memberPerms,
		})
	}

	ch, err := g.dg.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 "music-" + voice.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                "Song requests for the voice channel. Post a name, link, or playlist.",
		PermissionOverwrites: overwrites,
		ParentID:             voice.ParentID,
	})
	if err != nil {
		return "", fmt.Errorf("room channel create: %w", err)
	}

	zlog.Info().Str("guild", guildID).Str("room", ch.ID).Str("owner", ownerID).Msg("room channel created")
	return ch.ID, nil
}

func (g *Gateway) DeleteChannel(_ context.Context, channelID string) error {
	_, err := g.dg.ChannelDelete(channelID)
	return err
}

// GrantAccess re-grants room visibility to every current non-bot occupant.
func (g *Gateway) GrantAccess(_ context.Context, guildID, voiceChannelID, roomChannelID string) error {
	memberPerms := int64(discordgo.PermissionViewChannel |
		discordgo.PermissionSendMessages |
		discordgo.PermissionReadMessageHistory)

	var firstErr error
	for _, userID := range g.occupants(guildID, voiceChannelID, false) {
		err := g.dg.ChannelPermissionSet(roomChannelID, userID, discordgo.PermissionOverwriteTypeMember, memberPerms, 0)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("grant access for %s: %w", userID, err)
		}
	}
	return firstErr
}

// EligibleOccupants returns non-bot occupants who are neither self-muted
// nor self-deafened, read live from gateway state.
func (g *Gateway) EligibleOccupants(guildID, voiceChannelID string) []string {
	return g.occupants(guildID, voiceChannelID, true)
}

func (g *Gateway) occupants(guildID, voiceChannelID string, activeOnly bool) []string {
	guild, err := g.dg.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil
	}
	var out []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != voiceChannelID {
			continue
		}
		if activeOnly && (vs.SelfMute || vs.SelfDeaf) {
			continue
		}
		m, err := g.dg.State.Member(guildID, vs.UserID)
		if err != nil || m == nil || m.User == nil || m.User.Bot {
			continue
		}
		out = append(out, vs.UserID)
	}
	return out
}

// IsElevated reports whether the user holds an administrator-grade role or
// is the configured bot admin.
func (g *Gateway) IsElevated(guildID, userID string) bool {
	if g.cfg.AdminUserID != "" && userID == g.cfg.AdminUserID {
		return true
	}
	guild, err := g.dg.State.Guild(guildID)
	if err != nil || guild == nil {
		return false
	}
	if guild.OwnerID == userID {
		return true
	}
	member, err := g.dg.State.Member(guildID, userID)
	if err != nil || member == nil {
		return false
	}
	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID != roleID {
				continue
			}
			if role.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0 {
				return true
			}
		}
	}
	return false
}

func (g *Gateway) Announce(channelID, message string) {
	if _, err := g.dg.ChannelMessageSend(channelID, message); err != nil {
		zlog.Warn().Err(err).Str("channel", channelID).Msg("announce failed")
	}
}

// UpdateNowPlaying edits the room's persistent now-playing message in
// place, creating it on first use. The message carries the control
// buttons.
func (g *Gateway) UpdateNowPlaying(channelID string, track *resolver.TrackInfo, requester string) {
	embed := nowPlayingEmbed(g.cfg, track, requester)
	components := controlComponents()

	g.mu.Lock()
	msgID := g.nowPlaying[channelID]
	g.mu.Unlock()

	if msgID != "" {
		_, err := g.dg.ChannelMessageEditComplex(&discordgo.MessageEdit{
			ID:         msgID,
			Channel:    channelID,
			Embeds:     &[]*discordgo.MessageEmbed{embed},
			Components: &components,
		})
		if err == nil {
			return
		}
		// The message was deleted externally; fall through and recreate.
	}

	msg, err := g.dg.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	})
	if err != nil {
		zlog.Warn().Err(err).Str("channel", channelID).Msg("now playing message send failed")
		return
	}
	g.mu.Lock()
	g.nowPlaying[channelID] = msg.ID
	g.mu.Unlock()
}

func (g *Gateway) ClearNowPlaying(channelID string) {
	g.mu.Lock()
	msgID := g.nowPlaying[channelID]
	delete(g.nowPlaying, channelID)
	g.mu.Unlock()

	if msgID == "" {
		return
	}
	if err := g.dg.ChannelMessageDelete(channelID, msgID); err != nil {
		zlog.Debug().Err(err).Str("channel", channelID).Msg("now playing message delete failed")
	}
}
