package session

// VoteOutcome reports the tally after one vote.
type VoteOutcome struct {
	Votes  int
	Quorum int
	Met    bool
}

// VoteSkip registers a skip vote. Quorum is recomputed from live eligible
// occupancy on every call. When quorum is met the vote set is cleared and
// the caller performs the skip.
func (s *Session) VoteSkip(voterID string) (VoteOutcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return VoteOutcome{}, ErrClosed
	}
	if s.status != StatusPlaying {
		s.mu.Unlock()
		return VoteOutcome{}, ErrNothingPlaying
	}
	voice := s.voiceChannelID
	s.mu.Unlock()

	eligible := len(s.gateway.EligibleOccupants(s.guildID, voice))
	quorum := eligible / 2
	if quorum < 1 {
		quorum = 1
	}

	s.mu.Lock()
	if s.closed || s.status != StatusPlaying {
		s.mu.Unlock()
		return VoteOutcome{}, ErrNothingPlaying
	}
	s.votes[voterID] = struct{}{}
	votes := len(s.votes)
	met := votes >= quorum
	if met {
		s.votes = make(map[string]struct{})
	}
	s.mu.Unlock()

	return VoteOutcome{Votes: votes, Quorum: quorum, Met: met}, nil
}
