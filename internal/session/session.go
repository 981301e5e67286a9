package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/intity01/sakudoko-bot/internal/config"
	"github.com/intity01/sakudoko-bot/internal/repository"
	"github.com/intity01/sakudoko-bot/internal/resolver"
)

const (
	DefaultVolume = 100
	MaxVolume     = 200

	fadeSteps    = 10
	fadeStepWait = 50 * time.Millisecond
)

// Session is the per-guild orchestrator. All mutable state lives behind mu;
// network calls (gateway, transport, resolver) happen outside the lock and
// state is rechecked after reacquiring it.
type Session struct {
	cfg       *config.Config
	guildID   string
	gateway   RoomGateway
	transport AudioTransport
	resolver  TrackResolver
	repo      *repository.Repo
	onClose   func(guildID string)

	mu               sync.Mutex
	queue            Queue
	status           Status
	current          *resolver.TrackInfo
	currentRequester string
	loopEnabled      bool
	autoPlay         bool
	filter           Filter
	volume           int
	votes            map[string]struct{}
	roomChannelID    string
	voiceChannelID   string
	ownerID          string
	lastActivity     time.Time
	warningSent      bool
	closed           bool

	cooldowns   map[string]*rate.Limiter
	syncLimiter *rate.Limiter

	trigger   chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once

	// test seams
	nowFn   func() time.Time
	sleepFn func(time.Duration)
}

func newSession(cfg *config.Config, guildID string, gw RoomGateway, tr AudioTransport, res TrackResolver, repo *repository.Repo, onClose func(string)) *Session {
	s := &Session{
		cfg:         cfg,
		guildID:     guildID,
		gateway:     gw,
		transport:   tr,
		resolver:    res,
		repo:        repo,
		onClose:     onClose,
		status:      StatusIdle,
		filter:      FilterNone,
		volume:      DefaultVolume,
		votes:       make(map[string]struct{}),
		cooldowns:   make(map[string]*rate.Limiter),
		syncLimiter: rate.NewLimiter(rate.Every(cfg.SyncCooldown), 1),
		trigger:     make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
		nowFn:       time.Now,
		sleepFn:     time.Sleep,
	}
	s.lastActivity = s.nowFn()
	if repo != nil {
		if set, err := repo.GetSettings(context.Background(), guildID); err == nil && set != nil {
			s.volume = set.DefaultVolume
			if f, err := ParseFilter(set.DefaultFilter); err == nil {
				s.filter = f
			}
		}
	}
	go s.runSequencer()
	go s.runWatchdog()
	return s
}

func (s *Session) GuildID() string { return s.guildID }

// RequestOutcome reports what a request queued.
type RequestOutcome struct {
	Queued        int
	Title         string
	PlaylistTitle string
}

// HandleRequest resolves a free-text query or URL and queues the result.
// Per-user cooldown bounds request spam.
func (s *Session) HandleRequest(ctx context.Context, query, requesterID, requesterName string) (RequestOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return RequestOutcome{}, ErrClosed
	}
	lim, ok := s.cooldowns[requesterID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(s.cfg.RequestCooldown), 1)
		s.cooldowns[requesterID] = lim
	}
	if !lim.Allow() {
		s.mu.Unlock()
		return RequestOutcome{}, ErrCooldown
	}
	s.mu.Unlock()

	res := s.resolver.Resolve(ctx, query)
	if !res.Found() {
		return RequestOutcome{}, fmt.Errorf("%w: %s", ErrNotFound, query)
	}

	var (
		entries []QueueEntry
		out     RequestOutcome
	)
	if res.Playlist != nil {
		for _, e := range res.Playlist.Entries {
			entries = append(entries, QueueEntry{
				Query:         e.Query,
				Title:         e.Title,
				RequesterID:   requesterID,
				RequesterName: requesterName,
				Track:         e.Track,
			})
		}
		out = RequestOutcome{Queued: len(entries), PlaylistTitle: res.Playlist.Title}
	} else {
		entries = []QueueEntry{{
			Query:         query,
			Title:         res.Track.Title,
			RequesterID:   requesterID,
			RequesterName: requesterName,
			Track:         res.Track,
		}}
		out = RequestOutcome{Queued: 1, Title: res.Track.Title}
	}

	if err := s.Enqueue(entries...); err != nil {
		return RequestOutcome{}, err
	}
	return out, nil
}

// HandleChatRequest is HandleRequest behind the room ownership policy:
// once the room has an owner, only the owner or an elevated user may post
// requests in the room channel.
func (s *Session) HandleChatRequest(ctx context.Context, query, requesterID, requesterName string) (RequestOutcome, error) {
	if !s.CanControl(requesterID) {
		return RequestOutcome{}, ErrPermissionDenied
	}
	return s.HandleRequest(ctx, query, requesterID, requesterName)
}

// Enqueue appends entries, resets the idle clock, and wakes the sequencer.
func (s *Session) Enqueue(entries ...QueueEntry) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue.Enqueue(entries...)
	s.touchLocked()
	s.mu.Unlock()

	s.wake()
	return nil
}

// touchLocked resets the inactivity clock and the warning flag.
func (s *Session) touchLocked() {
	s.lastActivity = s.nowFn()
	s.warningSent = false
}

func (s *Session) wake() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// QueueSnapshot returns the pending entries in order.
func (s *Session) QueueSnapshot() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Snapshot()
}

// Remove drops the queued entry at a 1-based position.
func (s *Session) Remove(pos int) (QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.RemoveAt(pos)
}

// Shuffle randomizes the pending queue.
func (s *Session) Shuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Shuffle()
}

func (s *Session) ToggleLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopEnabled = !s.loopEnabled
	return s.loopEnabled
}

func (s *Session) ToggleAutoPlay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoPlay = !s.autoPlay
	return s.autoPlay
}

// SetFilter validates and stores the filter for the next started track.
// The in-flight track is never touched.
func (s *Session) SetFilter(name string) (Filter, error) {
	f, err := ParseFilter(name)
	if err != nil {
		return FilterNone, err
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	return f, nil
}

// SetVolume stores the target volume and applies it to the live stream.
func (s *Session) SetVolume(v int) error {
	if v < 0 || v > MaxVolume {
		return ErrVolumeRange
	}
	s.mu.Lock()
	s.volume = v
	playing := s.status == StatusPlaying
	s.mu.Unlock()

	if playing {
		s.transport.SetGain(float64(v) / 100.0)
	}
	return nil
}

func (s *Session) Pause() error {
	s.mu.Lock()
	playing := s.status == StatusPlaying
	s.mu.Unlock()
	if !playing {
		return ErrNothingPlaying
	}
	s.transport.Pause()
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	playing := s.status == StatusPlaying
	s.mu.Unlock()
	if !playing {
		return ErrNothingPlaying
	}
	s.transport.Resume()
	return nil
}

// Skip stops the current track. The transport's completion signal drives
// the advance, so skipping never double-steps the sequencer.
func (s *Session) Skip() error {
	s.mu.Lock()
	playing := s.status == StatusPlaying
	s.mu.Unlock()
	if !playing {
		return ErrNothingPlaying
	}
	s.fadeTo(0)
	s.transport.Stop()
	return nil
}

// fadeTo ramps the live gain toward target in fixed bounded steps.
func (s *Session) fadeTo(target float64) {
	s.mu.Lock()
	from := float64(s.volume) / 100.0
	s.mu.Unlock()
	if target > 0 {
		from = 0
	}
	for i := 1; i <= fadeSteps; i++ {
		g := from + (target-from)*float64(i)/fadeSteps
		s.transport.SetGain(g)
		s.sleepFn(fadeStepWait)
	}
}

// NowPlaying returns the active track and its requester, or nil.
func (s *Session) NowPlaying() (*resolver.TrackInfo, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.currentRequester
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) LoopEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loopEnabled
}

func (s *Session) AutoPlayEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoPlay
}

func (s *Session) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Session) saveHistory(track *resolver.TrackInfo, entry QueueEntry) {
	if s.repo == nil || track == nil {
		return
	}
	err := s.repo.AddSongHistory(context.Background(), &repository.HistoryEntry{
		GuildID:         s.guildID,
		Title:           track.Title,
		URL:             track.PageURL,
		DurationSec:     track.DurationSec,
		RequestedBy:     entry.RequesterID,
		RequestedByName: entry.RequesterName,
	})
	if err != nil {
		zlog.Warn().Err(err).Str("guild", s.guildID).Msg("history save failed")
	}
}
