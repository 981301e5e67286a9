package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/resolver"
	"github.com/intity01/sakudoko-bot/internal/session"
	"github.com/intity01/sakudoko-bot/internal/utils"
)

func trackLink(title, pageURL string) string {
	if pageURL == "" {
		return utils.EscapeMd(title)
	}
	return fmt.Sprintf("[%s](%s)", utils.EscapeMd(title), pageURL)
}

func nowPlayingEmbed(cfg *config.Config, track *resolver.TrackInfo, requester string) *discordgo.MessageEmbed {
	dur := "live"
	if !track.Live && track.DurationSec > 0 {
		dur = utils.PrettyTime(track.DurationSec)
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: fmt.Sprintf("**%s** `[ %s ]`\nRequested by: %s", trackLink(track.Title, track.PageURL), dur, utils.EscapeMd(requester)),
		Color:       cfg.NowPlayingColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text:    cfg.EmbedFooterText,
			IconURL: cfg.EmbedFooterIcon,
		},
	}
	if track.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: track.Thumbnail}
	} else if cfg.EmbedThumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: cfg.EmbedThumbnail}
	}
	return embed
}

func queueEmbed(cfg *config.Config, sess *session.Session) *discordgo.MessageEmbed {
	cur, requester := sess.NowPlaying()
	entries := sess.QueueSnapshot()

	var b strings.Builder
	if cur != nil {
		fmt.Fprintf(&b, "**%s**\nRequested by: %s\n\n", trackLink(cur.Title, cur.PageURL), utils.EscapeMd(requester))
	} else {
		b.WriteString("Nothing playing right now.\n\n")
	}
	if len(entries) == 0 {
		b.WriteString("The queue is empty.")
	} else {
		const maxShown = 15
		for i, e := range entries {
			if i == maxShown {
				fmt.Fprintf(&b, "…and %d more", len(entries)-maxShown)
				break
			}
			fmt.Fprintf(&b, "`%d.` %s\n", i+1, utils.EscapeMd(e.DisplayTitle()))
		}
	}

	flags := []string{}
	if sess.LoopEnabled() {
		flags = append(flags, "loop 🔁")
	}
	if sess.AutoPlayEnabled() {
		flags = append(flags, "autoplay ▶️")
	}
	if f := sess.Filter(); f != session.FilterNone {
		flags = append(flags, "filter: "+string(f))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Queue",
		Description: b.String(),
		Color:       cfg.NowPlayingColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text:    cfg.EmbedFooterText,
			IconURL: cfg.EmbedFooterIcon,
		},
	}
	if len(flags) > 0 {
		embed.Fields = []*discordgo.MessageEmbedField{
			{Name: "Modes", Value: strings.Join(flags, " · ")},
		}
	}
	return embed
}

func historyEmbed(cfg *config.Config, titles []string) *discordgo.MessageEmbed {
	var b strings.Builder
	if len(titles) == 0 {
		b.WriteString("No songs played yet.")
	}
	for i, t := range titles {
		fmt.Fprintf(&b, "`%d.` %s\n", i+1, utils.EscapeMd(t))
	}
	return &discordgo.MessageEmbed{
		Title:       "Recently Played",
		Description: b.String(),
		Color:       cfg.NowPlayingColor,
	}
}
