package session

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// runSequencer serializes every advance. Entry points only poke the trigger
// channel; the loop itself is the single writer of playback transitions.
func (s *Session) runSequencer() {
	for {
		select {
		case <-s.closeCh:
			return
		case <-s.trigger:
			s.advance()
		}
	}
}

// advance drains the queue into playback. Each iteration re-examines state
// under the lock: completion callbacks, timers, and user commands may have
// interleaved while the previous iteration was off doing network work.
func (s *Session) advance() {
	for {
		s.mu.Lock()
		if s.closed || s.status == StatusPlaying {
			s.mu.Unlock()
			return
		}

		entry, ok := s.queue.DequeueFront()
		if !ok {
			if s.autoPlay {
				s.status = StatusAutoPlay
				s.mu.Unlock()
				if s.queueFiller() {
					continue
				}
				s.mu.Lock()
				if s.status == StatusAutoPlay {
					s.status = StatusIdle
				}
				s.mu.Unlock()
				return
			}
			s.status = StatusIdle
			s.mu.Unlock()
			return
		}

		// Loop mode re-appends at dequeue time, before playback starts.
		// The copy is dropped again if the track fails to play, so a dead
		// query does not cycle forever.
		looped := s.loopEnabled
		if looped {
			s.queue.Enqueue(entry)
		}
		s.status = StatusResolving
		filter := s.filter
		volume := s.volume
		s.mu.Unlock()

		track := entry.Track
		if track == nil || track.StreamURL == "" {
			res := s.resolver.Resolve(context.Background(), entry.Query)
			track = res.Track
			if track == nil && res.Playlist != nil && len(res.Playlist.Entries) > 0 {
				// A queued entry that unexpectedly resolves to a playlist
				// plays its first element; the rest joins the queue.
				first := res.Playlist.Entries[0]
				track = first.Track
				if track == nil {
					entry.Query = first.Query
				}
				rest := res.Playlist.Entries[1:]
				s.mu.Lock()
				for _, e := range rest {
					s.queue.Enqueue(QueueEntry{
						Query:         e.Query,
						Title:         e.Title,
						RequesterID:   entry.RequesterID,
						RequesterName: entry.RequesterName,
						Track:         e.Track,
					})
				}
				s.mu.Unlock()
			}
		}
		if track == nil || track.StreamURL == "" {
			zlog.Warn().Str("guild", s.guildID).Str("query", entry.Query).Msg("resolution failed, skipping entry")
			s.dropLoopedCopy(looped, entry)
			continue
		}

		done, err := s.transport.Start(context.Background(), track.StreamURL, filter)
		if err != nil {
			zlog.Error().Err(err).Str("guild", s.guildID).Str("title", track.Title).Msg("playback start failed, skipping entry")
			s.dropLoopedCopy(looped, entry)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.transport.Stop()
			return
		}
		s.status = StatusPlaying
		s.current = track
		s.currentRequester = entry.RequesterName
		s.votes = make(map[string]struct{})
		s.touchLocked()
		room := s.roomChannelID
		s.mu.Unlock()

		zlog.Info().Str("guild", s.guildID).Str("title", track.Title).Msg("now playing")
		go s.watchCompletion(done)
		go s.fadeTo(float64(volume) / 100.0)

		if room != "" {
			s.gateway.UpdateNowPlaying(room, track, entry.RequesterName)
		}
		s.saveHistory(track, entry)
		return
	}
}

// dropLoopedCopy removes the loop re-append of an entry that failed to
// play.
func (s *Session) dropLoopedCopy(looped bool, entry QueueEntry) {
	if !looped {
		return
	}
	s.mu.Lock()
	s.queue.RemoveLastMatch(entry.Query)
	s.mu.Unlock()
}

// queueFiller asks the resolver for autoplay filler and queues it.
func (s *Session) queueFiller() bool {
	query, ok := s.resolver.FillerQuery(context.Background())
	if !ok {
		return false
	}

	s.mu.Lock()
	if s.closed || s.status != StatusAutoPlay {
		s.mu.Unlock()
		return false
	}
	s.status = StatusIdle
	s.queue.Enqueue(QueueEntry{Query: query, RequesterName: "autoplay"})
	s.mu.Unlock()

	zlog.Info().Str("guild", s.guildID).Str("query", query).Msg("autoplay filler queued")
	return true
}

// watchCompletion waits for the transport to finish the active track and
// re-enters the sequencer. Errors advance exactly like natural completion.
func (s *Session) watchCompletion(done <-chan error) {
	select {
	case <-s.closeCh:
		return
	case err := <-done:
		if err != nil {
			zlog.Error().Err(err).Str("guild", s.guildID).Msg("playback ended with error")
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.currentRequester = ""
	s.votes = make(map[string]struct{})
	s.status = StatusIdle
	s.touchLocked()
	s.mu.Unlock()

	s.wake()
}
