package discord

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"
	"layeh.com/gopus"

	"github.com/intity01/sakudoko-bot/internal/session"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz
)

// filterArgs maps the selectable filters to ffmpeg audio filter chains.
var filterArgs = map[session.Filter]string{
	session.FilterBass:      "bass=g=10",
	session.FilterNightcore: "asetrate=44100*1.25,aresample=44100,atempo=1.1",
	session.FilterPitch:     "asetrate=44100*1.15,aresample=44100",
}

// VoiceTransport streams a resolved source URL into a guild's voice
// connection. ffmpeg decodes to raw PCM, gain is applied per frame so
// volume changes and fades land mid-stream, then frames are opus-encoded
// and pushed to Discord.
type VoiceTransport struct {
	dg      *discordgo.Session
	guildID string

	gainBits uint64 // atomic float64 bits
	paused   atomic.Bool

	mu     sync.Mutex
	vc     *discordgo.VoiceConnection
	cancel context.CancelFunc
}

func NewVoiceTransport(dg *discordgo.Session, guildID string) *VoiceTransport {
	t := &VoiceTransport{dg: dg, guildID: guildID}
	t.SetGain(1.0)
	return t
}

func (t *VoiceTransport) Connect(ctx context.Context, guildID, voiceChannelID string) error {
	t.mu.Lock()
	old := t.vc
	t.vc = nil
	t.mu.Unlock()

	if old != nil {
		_ = old.Speaking(false)
		_ = old.Disconnect()
	}

	vc, err := t.dg.ChannelVoiceJoin(guildID, voiceChannelID, false, true)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.vc = vc
	t.mu.Unlock()
	return nil
}

func (t *VoiceTransport) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	atomic.StoreUint64(&t.gainBits, math.Float64bits(gain))
}

func (t *VoiceTransport) gain() float64 {
	return math.Float64frombits(atomic.LoadUint64(&t.gainBits))
}

func (t *VoiceTransport) Pause()  { t.paused.Store(true) }
func (t *VoiceTransport) Resume() { t.paused.Store(false) }

// Start launches ffmpeg on the stream URL and begins pushing opus frames.
// The returned channel receives exactly one value when the stream ends.
func (t *VoiceTransport) Start(ctx context.Context, streamURL string, filter session.Filter) (<-chan error, error) {
	t.mu.Lock()
	vc := t.vc
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.mu.Unlock()

	if vc == nil {
		return nil, errors.New("voice not connected")
	}

	args := []string{
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", streamURL,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-loglevel", "warning",
	}
	if af, ok := filterArgs[filter]; ok {
		args = append(args, "-af", af)
	}
	args = append(args, "pipe:1")

	streamCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(streamCtx, "ffmpeg", args...)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	t.paused.Store(false)
	done := make(chan error, 1)
	go t.stream(streamCtx, cmd, pipe, vc, done)
	return done, nil
}

func (t *VoiceTransport) stream(ctx context.Context, cmd *exec.Cmd, pipe io.ReadCloser, vc *discordgo.VoiceConnection, done chan<- error) {
	defer func() {
		_ = pipe.Close()
		_ = cmd.Wait()
		_ = vc.Speaking(false)
	}()

	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		done <- err
		return
	}
	_ = vc.Speaking(true)

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		if ctx.Err() != nil {
			done <- nil
			return
		}
		if t.paused.Load() {
			select {
			case <-ctx.Done():
				done <- nil
				return
			case <-time.After(20 * time.Millisecond):
			}
			continue
		}

		if _, err := io.ReadFull(pipe, pcmBuf); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				done <- nil
			} else {
				done <- err
			}
			return
		}

		g := t.gain()
		for i := range intBuf {
			s := float64(int16(binary.LittleEndian.Uint16(pcmBuf[i*2:i*2+2]))) * g
			if s > math.MaxInt16 {
				s = math.MaxInt16
			} else if s < math.MinInt16 {
				s = math.MinInt16
			}
			intBuf[i] = int16(s)
		}

		opus, err := enc.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			done <- err
			return
		}

		select {
		case <-ctx.Done():
			done <- nil
			return
		case vc.OpusSend <- opus:
		}
	}
}

// Stop ends the active stream. The completion channel still fires.
func (t *VoiceTransport) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (t *VoiceTransport) Disconnect() {
	t.Stop()

	t.mu.Lock()
	vc := t.vc
	t.vc = nil
	t.mu.Unlock()
	if vc == nil {
		return
	}

	_ = vc.Speaking(false)
	if err := vc.Disconnect(); err != nil {
		zlog.Warn().Err(err).Str("guild", t.guildID).Msg("voice disconnect failed")
	}
}
