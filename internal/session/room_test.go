package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRoomCreatesAndIsIdempotentForOwner(t *testing.T) {
	h := newHarness(t)

	room, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", room)
	assert.Equal(t, "owner", h.s.OwnerID())
	assert.Equal(t, 1, h.tr.connects)

	again, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)
	assert.Equal(t, room, again)
	assert.Equal(t, 1, h.tr.connects)
}

func TestOpenRoomTakeover(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	_, err = h.s.OpenRoom(context.Background(), "intruder", "voice-1")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, "owner", h.s.OwnerID())

	h.gw.mu.Lock()
	h.gw.elevated["admin"] = true
	h.gw.mu.Unlock()

	room, err := h.s.OpenRoom(context.Background(), "admin", "voice-1")
	require.NoError(t, err)
	assert.Equal(t, "room-1", room)
	assert.Equal(t, "admin", h.s.OwnerID())
}

func TestCanControl(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	h.gw.mu.Lock()
	h.gw.elevated["admin"] = true
	h.gw.mu.Unlock()

	assert.True(t, h.s.CanControl("owner"))
	assert.True(t, h.s.CanControl("admin"))
	assert.False(t, h.s.CanControl("random"))
}

func TestChatRequestHonorsRoomOwnership(t *testing.T) {
	h := newHarness(t)
	h.rs.track("a song", "A Song")
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	_, err = h.s.HandleChatRequest(context.Background(), "a song", "stranger", "Stranger")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, h.s.QueueSnapshot())
	h.rs.mu.Lock()
	assert.Empty(t, h.rs.calls)
	h.rs.mu.Unlock()

	out, err := h.s.HandleChatRequest(context.Background(), "a song", "owner", "Owner")
	require.NoError(t, err)
	assert.Equal(t, "A Song", out.Title)

	h.gw.mu.Lock()
	h.gw.elevated["admin"] = true
	h.gw.mu.Unlock()

	_, err = h.s.HandleChatRequest(context.Background(), "a song", "admin", "Admin")
	assert.NoError(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	h.s.Close(context.Background())
	h.s.Close(context.Background())

	assert.Equal(t, 1, h.tr.disconnects)
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	assert.Equal(t, []string{"room-1"}, h.gw.deleted)
}

func TestCloseResetsState(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)
	h.s.ToggleLoop()
	h.s.ToggleAutoPlay()
	require.NoError(t, h.s.Enqueue(entryFor("broken")))

	h.s.Close(context.Background())

	assert.Empty(t, h.s.QueueSnapshot())
	assert.False(t, h.s.LoopEnabled())
	assert.False(t, h.s.AutoPlayEnabled())
	assert.Equal(t, FilterNone, h.s.Filter())
	assert.Empty(t, h.s.OwnerID())
	assert.Empty(t, h.s.RoomChannelID())
	assert.ErrorIs(t, h.s.Enqueue(entryFor("q")), ErrClosed)
}

func TestVoiceDropSkipsDisconnect(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	h.s.HandleVoiceDrop(context.Background())

	assert.Zero(t, h.tr.disconnects)
	h.gw.mu.Lock()
	defer h.gw.mu.Unlock()
	assert.Equal(t, []string{"room-1"}, h.gw.deleted)
}

func TestSyncPermissionsRateLimited(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.s.SyncPermissions(context.Background()), ErrNoRoom)

	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	require.NoError(t, h.s.SyncPermissions(context.Background()))
	assert.ErrorIs(t, h.s.SyncPermissions(context.Background()), ErrRateLimited)

	time.Sleep(60 * time.Millisecond)
	assert.NoError(t, h.s.SyncPermissions(context.Background()))
}

func TestWatchdogWarnsOnceThenTearsDown(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	base := time.Now()
	idle := time.Duration(0)
	h.s.mu.Lock()
	h.s.nowFn = func() time.Time { return base.Add(idle) }
	h.s.lastActivity = base
	h.s.mu.Unlock()

	// Under the warning threshold nothing happens.
	idle = 200 * time.Second
	h.s.checkIdle()
	assert.Zero(t, h.gw.announceCount())

	// Past timeout-warning_window: exactly one warning, on repeat too.
	idle = 245 * time.Second
	h.s.checkIdle()
	assert.Equal(t, 1, h.gw.announceCount())
	idle = 270 * time.Second
	h.s.checkIdle()
	assert.Equal(t, 1, h.gw.announceCount())

	// Full timeout: teardown.
	idle = 301 * time.Second
	h.s.checkIdle()
	h.gw.mu.Lock()
	deleted := len(h.gw.deleted)
	h.gw.mu.Unlock()
	assert.Equal(t, 1, deleted)
	assert.Empty(t, h.s.RoomChannelID())
}

func TestWatchdogActivityResetsWarning(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)

	base := time.Now()
	idle := time.Duration(0)
	h.s.mu.Lock()
	h.s.nowFn = func() time.Time { return base.Add(idle) }
	h.s.lastActivity = base
	h.s.mu.Unlock()

	idle = 250 * time.Second
	h.s.checkIdle()
	require.Equal(t, 1, h.gw.announceCount())

	// Queue activity restarts the window and re-arms the warning. Wait for
	// the failed entry to drain so checkIdle sees an empty queue again.
	require.NoError(t, h.s.Enqueue(entryFor("broken")))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.rs.mu.Lock()
		resolved := len(h.rs.calls) > 0
		h.rs.mu.Unlock()
		if resolved && len(h.s.QueueSnapshot()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Empty(t, h.s.QueueSnapshot())
	h.awaitStatus(t, StatusIdle)

	idle = 255 * time.Second
	h.s.checkIdle()
	assert.Equal(t, 1, h.gw.announceCount())

	idle = 500 * time.Second
	h.s.checkIdle()
	assert.Equal(t, 2, h.gw.announceCount())
}

func TestWatchdogIgnoresIdleWhilePlaying(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.OpenRoom(context.Background(), "owner", "voice-1")
	require.NoError(t, err)
	h.rs.track("qa", "Track A")
	require.NoError(t, h.s.Enqueue(entryFor("qa")))
	h.awaitStart(t)
	h.awaitStatus(t, StatusPlaying)

	base := time.Now()
	h.s.mu.Lock()
	h.s.nowFn = func() time.Time { return base.Add(time.Hour) }
	h.s.mu.Unlock()

	h.s.checkIdle()
	assert.NotEmpty(t, h.s.RoomChannelID())
	assert.Zero(t, h.gw.announceCount())
}
