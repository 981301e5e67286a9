package session

import (
	"context"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// OpenRoom binds the session to a voice channel and its scoped text room.
// Re-entry by the current owner returns the existing room; anyone else
// needs an elevated role and takes ownership over.
func (s *Session) OpenRoom(ctx context.Context, userID, voiceChannelID string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if s.roomChannelID != "" {
		room := s.roomChannelID
		if s.ownerID == "" || s.ownerID == userID {
			s.ownerID = userID
			s.mu.Unlock()
			return room, nil
		}
		elevated := s.gateway.IsElevated(s.guildID, userID)
		if !elevated {
			s.mu.Unlock()
			return "", ErrPermissionDenied
		}
		s.ownerID = userID
		s.mu.Unlock()
		zlog.Info().Str("guild", s.guildID).Str("user", userID).Msg("room ownership taken over")
		return room, nil
	}
	s.mu.Unlock()

	room, err := s.gateway.CreateRoomChannel(ctx, s.guildID, voiceChannelID, userID)
	if err != nil {
		return "", err
	}
	if err := s.transport.Connect(ctx, s.guildID, voiceChannelID); err != nil {
		_ = s.gateway.DeleteChannel(ctx, room)
		return "", err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.transport.Disconnect()
		_ = s.gateway.DeleteChannel(ctx, room)
		return "", ErrClosed
	}
	if s.roomChannelID != "" {
		// Lost the race against a concurrent open; keep the first room.
		existing := s.roomChannelID
		s.mu.Unlock()
		s.transport.Disconnect()
		_ = s.gateway.DeleteChannel(ctx, room)
		return existing, nil
	}
	s.roomChannelID = room
	s.voiceChannelID = voiceChannelID
	s.ownerID = userID
	s.touchLocked()
	s.mu.Unlock()

	zlog.Info().Str("guild", s.guildID).Str("room", room).Str("owner", userID).Msg("room opened")
	return room, nil
}

// RoomChannelID returns the bound text channel, empty when no room exists.
func (s *Session) RoomChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomChannelID
}

func (s *Session) VoiceChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voiceChannelID
}

func (s *Session) OwnerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerID
}

// CanControl reports whether the user may use owner-gated controls.
func (s *Session) CanControl(userID string) bool {
	s.mu.Lock()
	owner := s.ownerID
	s.mu.Unlock()
	if owner == "" || owner == userID {
		return true
	}
	return s.gateway.IsElevated(s.guildID, userID)
}

// SyncPermissions re-grants room access to the voice channel's occupants.
// Rate limited per guild.
func (s *Session) SyncPermissions(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.roomChannelID == "" {
		s.mu.Unlock()
		return ErrNoRoom
	}
	room, voice := s.roomChannelID, s.voiceChannelID
	s.mu.Unlock()

	if !s.syncLimiter.Allow() {
		return ErrRateLimited
	}
	return s.gateway.GrantAccess(ctx, s.guildID, voice, room)
}

// Close tears the room down: stop playback, disconnect voice, delete the
// room channel, reset state, deregister. Safe to call twice.
func (s *Session) Close(ctx context.Context) {
	s.close(ctx, true)
}

// HandleVoiceDrop runs teardown after the voice connection was severed
// externally. The transport disconnect is skipped so a dead connection is
// not torn twice.
func (s *Session) HandleVoiceDrop(ctx context.Context) {
	zlog.Info().Str("guild", s.guildID).Msg("voice connection dropped externally, closing room")
	s.close(ctx, false)
}

func (s *Session) close(ctx context.Context, disconnectVoice bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	room := s.roomChannelID
	s.queue.Clear()
	s.current = nil
	s.currentRequester = ""
	s.status = StatusIdle
	s.loopEnabled = false
	s.autoPlay = false
	s.filter = FilterNone
	s.votes = make(map[string]struct{})
	s.roomChannelID = ""
	s.voiceChannelID = ""
	s.ownerID = ""
	s.mu.Unlock()

	s.closeOnce.Do(func() { close(s.closeCh) })

	s.transport.Stop()
	if disconnectVoice {
		s.transport.Disconnect()
	}
	if room != "" {
		s.gateway.ClearNowPlaying(room)
		if err := s.gateway.DeleteChannel(ctx, room); err != nil {
			zlog.Warn().Err(err).Str("guild", s.guildID).Str("room", room).Msg("room channel delete failed")
		}
	}
	if s.onClose != nil {
		s.onClose(s.guildID)
	}
	zlog.Info().Str("guild", s.guildID).Msg("room closed")
}

// runWatchdog periodically measures idle time, warns once per idle period,
// and tears the room down at the full timeout.
func (s *Session) runWatchdog() {
	t := time.NewTicker(s.cfg.WatchdogTick)
	defer t.Stop()
	for {
		select {
		case <-s.closeCh:
			return
		case <-t.C:
			s.checkIdle()
		}
	}
}

func (s *Session) checkIdle() {
	s.mu.Lock()
	if s.closed || s.status == StatusPlaying || s.queue.Len() > 0 {
		s.mu.Unlock()
		return
	}
	idle := s.nowFn().Sub(s.lastActivity)
	room := s.roomChannelID

	if idle >= s.cfg.Timeout {
		s.mu.Unlock()
		zlog.Info().Str("guild", s.guildID).Dur("idle", idle).Msg("inactivity timeout, closing room")
		s.close(context.Background(), true)
		return
	}

	warn := room != "" && !s.warningSent && idle >= s.cfg.Timeout-s.cfg.WarningWindow
	if warn {
		s.warningSent = true
	}
	s.mu.Unlock()

	if warn {
		remaining := s.cfg.Timeout - idle
		s.gateway.Announce(room, "No activity detected. Leaving the voice channel in "+remaining.Round(time.Second).String()+" unless something gets queued.")
	}
}
