package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/intity01/sakudoko-bot/internal/session"
)

// Custom ids carried on the now-playing message buttons.
const (
	controlPause      = "music_pause"
	controlResume     = "music_resume"
	controlSkip       = "music_skip"
	controlVolumeDown = "music_vol_down"
	controlVolumeUp   = "music_vol_up"
	controlLeave      = "music_leave"
)

const volumeStep = 10

// controlComponents builds the button rows attached to the now-playing
// message.
func controlComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "⏸️ Pause", Style: discordgo.SecondaryButton, CustomID: controlPause},
			discordgo.Button{Label: "▶️ Resume", Style: discordgo.SuccessButton, CustomID: controlResume},
			discordgo.Button{Label: "⏭️ Skip", Style: discordgo.PrimaryButton, CustomID: controlSkip},
			discordgo.Button{Label: "🔉 Vol-", Style: discordgo.SecondaryButton, CustomID: controlVolumeDown},
			discordgo.Button{Label: "🔊 Vol+", Style: discordgo.SecondaryButton, CustomID: controlVolumeUp},
		}},
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "🚪 Leave", Style: discordgo.DangerButton, CustomID: controlLeave},
		}},
	}
}

// playbackControls is the slice of the session the buttons act on.
type playbackControls interface {
	Pause() error
	Resume() error
	Skip() error
	Volume() int
	SetVolume(v int) error
	Close(ctx context.Context)
}

// applyControl performs one button action and returns the user-facing
// reply, empty for an unknown custom id.
func applyControl(sess playbackControls, customID string) string {
	switch customID {
	case controlPause:
		if err := sess.Pause(); err != nil {
			return "Nothing is playing."
		}
		return "Paused. ⏸️"
	case controlResume:
		if err := sess.Resume(); err != nil {
			return "Nothing is playing."
		}
		return "Resumed. ▶️"
	case controlSkip:
		if err := sess.Skip(); err != nil {
			return "Nothing is playing."
		}
		return "Skipped. ⏭️"
	case controlVolumeDown:
		return stepVolume(sess, -volumeStep)
	case controlVolumeUp:
		return stepVolume(sess, volumeStep)
	case controlLeave:
		sess.Close(context.Background())
		return "Closing the room. Thanks for listening!"
	}
	return ""
}

func stepVolume(sess playbackControls, delta int) string {
	v := sess.Volume() + delta
	if v < 0 {
		v = 0
	}
	if v > session.MaxVolume {
		v = session.MaxVolume
	}
	if err := sess.SetVolume(v); err != nil {
		return "Couldn't change the volume."
	}
	return fmt.Sprintf("Volume set to %d%%.", v)
}
