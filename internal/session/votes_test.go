package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedHarness(t *testing.T, eligible int) *harness {
	t.Helper()
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	h.gw.mu.Lock()
	for i := 0; i < eligible; i++ {
		h.gw.eligible = append(h.gw.eligible, fmt.Sprintf("u%d", i))
	}
	h.gw.mu.Unlock()

	h.rs.track("qa", "Track A")
	require.NoError(t, h.s.Enqueue(entryFor("qa")))
	h.awaitStart(t)
	h.awaitStatus(t, StatusPlaying)
	return h
}

func TestVoteSkipQuorum(t *testing.T) {
	cases := []struct {
		eligible int
		quorum   int
	}{
		{0, 1},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{5, 2},
		{7, 3},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("eligible=%d", c.eligible), func(t *testing.T) {
			h := startedHarness(t, c.eligible)

			for v := 1; v < c.quorum; v++ {
				out, err := h.s.VoteSkip(fmt.Sprintf("voter-%d", v))
				require.NoError(t, err)
				assert.Equal(t, c.quorum, out.Quorum)
				assert.False(t, out.Met, "vote %d of %d", v, c.quorum)
			}
			out, err := h.s.VoteSkip("voter-final")
			require.NoError(t, err)
			assert.True(t, out.Met)
			assert.Equal(t, c.quorum, out.Votes)
		})
	}
}

func TestVoteSkipDuplicateVoterCountsOnce(t *testing.T) {
	h := startedHarness(t, 4) // quorum 2

	out, err := h.s.VoteSkip("v1")
	require.NoError(t, err)
	assert.False(t, out.Met)

	out, err = h.s.VoteSkip("v1")
	require.NoError(t, err)
	assert.False(t, out.Met)
	assert.Equal(t, 1, out.Votes)

	out, err = h.s.VoteSkip("v2")
	require.NoError(t, err)
	assert.True(t, out.Met)
}

func TestVoteSetClearedAfterSuccess(t *testing.T) {
	h := startedHarness(t, 4) // quorum 2

	_, err := h.s.VoteSkip("v1")
	require.NoError(t, err)
	out, err := h.s.VoteSkip("v2")
	require.NoError(t, err)
	require.True(t, out.Met)

	// A fresh round starts from zero.
	out, err = h.s.VoteSkip("v3")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Votes)
	assert.False(t, out.Met)
}

func TestVoteSkipRequiresPlayback(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.VoteSkip("v1")
	assert.ErrorIs(t, err, ErrNothingPlaying)
}

func TestVoteSetClearedOnTrackAdvance(t *testing.T) {
	h := startedHarness(t, 4)
	h.rs.track("qb", "Track B")
	require.NoError(t, h.s.Enqueue(entryFor("qb")))

	_, err := h.s.VoteSkip("v1")
	require.NoError(t, err)

	h.tr.finish(nil)
	h.awaitStart(t)
	h.awaitStatus(t, StatusPlaying)

	out, err := h.s.VoteSkip("v2")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Votes)
}
